package signal

import (
	"pmarb/internal/book"
	"pmarb/pkg/types"
)

// ArbParams tunes the cross-venue arbitrage detector.
type ArbParams struct {
	PolyFee     float64
	KalshiFee   float64
	MinSpread   float64
}

const spreadTolerance = 1e-9

// DefaultArbParams returns the standard fee constants and threshold.
func DefaultArbParams() ArbParams {
	return ArbParams{
		PolyFee:   0.02,
		KalshiFee: 0.07,
		MinSpread: 0.015,
	}
}

// EvaluateArb runs the cross-venue arbitrage algorithm against a matched
// pair of books for the same event.
func EvaluateArb(polyBook, kalshiBook *book.Book, polyID, kalshiID string, p ArbParams) (types.Signal, bool) {
	if polyBook == nil || kalshiBook == nil || !polyBook.IsSynced() || !kalshiBook.IsSynced() {
		return types.Signal{}, false
	}

	polyBid, okPB := polyBook.BestBid()
	polyAsk, okPA := polyBook.BestAsk()
	kalshiBid, okKB := kalshiBook.BestBid()
	kalshiAsk, okKA := kalshiBook.BestAsk()
	if !okPB || !okPA || !okKB || !okKA {
		return types.Signal{}, false
	}

	sPolyBuy := kalshiBid - polyAsk - p.PolyFee - p.KalshiFee
	sKalshiBuy := polyBid - kalshiAsk - p.KalshiFee - p.PolyFee

	best := sPolyBuy
	buyPlatform, sellPlatform := types.PlatformPolymarket, types.PlatformKalshi
	buyID, sellID := polyID, kalshiID
	buyPrice, sellPrice := polyAsk, kalshiBid

	if sKalshiBuy > best {
		best = sKalshiBuy
		buyPlatform, sellPlatform = types.PlatformKalshi, types.PlatformPolymarket
		buyID, sellID = kalshiID, polyID
		buyPrice, sellPrice = kalshiAsk, polyBid
	}

	// Inclusive lower bound; the tolerance absorbs float64 rounding in the
	// fee-adjusted spread so a spread equal to MinSpread still fires.
	if best < p.MinSpread-spreadTolerance {
		return types.Signal{}, false
	}

	strength := best / (5 * p.MinSpread)
	if strength > 1 {
		strength = 1
	}

	return types.Signal{
		Type:         types.SignalCrossExchangeArb,
		Direction:    types.DirectionBuyYes,
		Platform:     buyPlatform,
		MarketID:     buyID,
		EdgeEstimate: best,
		Strength:     strength,
		Metadata: map[string]any{
			"buy_platform":  buyPlatform,
			"sell_platform": sellPlatform,
			"buy_market_id": buyID,
			"sell_market_id": sellID,
			"buy_price":     buyPrice,
			"sell_price":    sellPrice,
		},
		CreatedAt: now(),
	}, true
}
