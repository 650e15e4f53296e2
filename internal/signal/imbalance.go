package signal

import (
	"pmarb/internal/book"
	"pmarb/pkg/types"
)

// ImbalanceParams tunes the book-imbalance detector.
type ImbalanceParams struct {
	BullishThreshold float64
	BearishThreshold float64
	DepthPct         float64
	MinDepthUsd      float64
	Sensitivity      float64
}

// DefaultImbalanceParams returns the standard thresholds.
func DefaultImbalanceParams() ImbalanceParams {
	return ImbalanceParams{
		BullishThreshold: 0.65,
		BearishThreshold: 0.35,
		DepthPct:         0.05,
		MinDepthUsd:      500,
		Sensitivity:      0.20,
	}
}

const maxImbalanceEdge = 0.15

// EvaluateImbalance runs the book-imbalance algorithm against one book.
func EvaluateImbalance(b *book.Book, p ImbalanceParams) (types.Signal, bool) {
	if !b.IsSynced() {
		return types.Signal{}, false
	}

	bidVol := b.BidDepth(p.DepthPct)
	askVol := b.AskDepth(p.DepthPct)
	total := bidVol + askVol
	if total < p.MinDepthUsd {
		return types.Signal{}, false
	}

	imbalance := bidVol / total

	var direction types.Direction
	var edge, strength float64

	switch {
	case imbalance > p.BullishThreshold:
		direction = types.DirectionBuyYes
		edge = (imbalance - 0.5) * p.Sensitivity
		strength = (imbalance - p.BullishThreshold) / (1 - p.BullishThreshold)
	case imbalance < p.BearishThreshold:
		direction = types.DirectionBuyNo
		edge = (0.5 - imbalance) * p.Sensitivity
		strength = (p.BearishThreshold - imbalance) / p.BearishThreshold
	default:
		return types.Signal{}, false
	}

	if strength > 1 {
		strength = 1
	}
	if strength < 0 {
		strength = 0
	}
	if edge > maxImbalanceEdge {
		edge = maxImbalanceEdge
	}

	bid, _ := b.BestBid()
	ask, _ := b.BestAsk()
	spread, _ := b.Spread()

	return types.Signal{
		Type:         types.SignalBookImbalance,
		Direction:    direction,
		Platform:     b.Platform(),
		MarketID:     b.MarketID(),
		EdgeEstimate: edge,
		Strength:     strength,
		Metadata: map[string]any{
			"imbalance": imbalance,
			"bid_vol":   bidVol,
			"ask_vol":   askVol,
			"best_bid":  bid,
			"best_ask":  ask,
			"spread":    spread,
		},
		CreatedAt: now(),
	}, true
}
