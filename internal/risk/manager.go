// Package risk implements the stateful pre-trade gate: duplicate-position
// check, daily-loss halt, minimum-edge floor, fractional-Kelly sizing,
// per-position cap, and total-exposure cap, applied in that fixed order.
// Not internally synchronized for concurrent callers. The supervisor
// enforces single-writer discipline by driving every Check / RecordOpen
// / RecordClose call from one goroutine's signal-handling path.
package risk

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"pmarb/pkg/types"
)

// Config holds the caps and sizing parameters read from the environment:
// BANKROLL_USD, KELLY_FRACTION, MAX_POSITION_FRACTION,
// MAX_TOTAL_EXPOSURE, MIN_EDGE_THRESHOLD, MAX_DAILY_LOSS_USD.
type Config struct {
	Bankroll           float64
	KellyFraction      float64
	MaxPositionFraction float64
	MaxTotalExposure   float64
	MinEdgeThreshold   float64
	MaxDailyLossUsd    float64
}

// Manager is the risk gate. One instance per process.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	bankroll      float64
	openPositions map[string]float64 // market_id -> usd at risk
	totalExposure float64

	dailyPnl     float64
	dailyPnlDate string // YYYY-MM-DD UTC
}

// New creates a Manager seeded with cfg.Bankroll.
func New(cfg Config, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:           cfg,
		logger:        logger.With("component", "risk-manager"),
		bankroll:      cfg.Bankroll,
		openPositions: make(map[string]float64),
		dailyPnlDate:  time.Now().UTC().Format("2006-01-02"),
	}
}

func (m *Manager) resetDailyPnlIfNewDay() {
	today := time.Now().UTC().Format("2006-01-02")
	if today != m.dailyPnlDate {
		m.dailyPnl = 0
		m.dailyPnlDate = today
	}
}

// Check runs the full 7-step gate against a candidate signal.
func (m *Manager) Check(sig types.Signal) types.Decision {
	var trace []string
	log := func(s string) { trace = append(trace, s) }

	// 1. Duplicate position.
	if _, exists := m.openPositions[sig.MarketID]; exists {
		log("rejected: already in position")
		return types.Decision{Approved: false, Reason: "already in position", CheckLog: trace}
	}

	// 2. Daily-loss halt.
	m.resetDailyPnlIfNewDay()
	if m.cfg.MaxDailyLossUsd > 0 && m.dailyPnl <= -m.cfg.MaxDailyLossUsd {
		log("rejected: daily loss limit hit")
		return types.Decision{Approved: false, Reason: "daily loss limit hit", CheckLog: trace}
	}

	// 3. Edge floor.
	if sig.EdgeEstimate < m.cfg.MinEdgeThreshold {
		log("rejected: edge below threshold")
		return types.Decision{Approved: false, Reason: "edge below threshold", CheckLog: trace}
	}

	// 4. Kelly sizing.
	entry := m.entryPrice(sig)
	b := (1 - entry) / entry
	p := entry + sig.EdgeEstimate
	if p > 0.99 {
		p = 0.99
	}
	q := 1 - p
	kelly := (b*p - q) / b
	if kelly < 0 {
		kelly = 0
	}
	fractional := kelly * m.cfg.KellyFraction
	log(fmt.Sprintf("kelly=%.4f fractional=%.4f entry=%.4f", kelly, fractional, entry))

	// 5. Per-position cap.
	rawPos := fractional * m.bankroll
	posCap := m.cfg.MaxPositionFraction * m.bankroll
	pos := rawPos
	if pos > posCap {
		pos = posCap
	}
	if pos <= 0 {
		log("rejected: zero size")
		return types.Decision{Approved: false, Reason: "zero size", CheckLog: trace}
	}

	// 6. Total-exposure cap.
	remaining := m.cfg.MaxTotalExposure*m.bankroll - m.totalExposure
	if remaining <= 0 {
		log("rejected: total exposure cap reached")
		return types.Decision{Approved: false, Reason: "total exposure cap reached", CheckLog: trace}
	}
	if pos > remaining {
		pos = remaining
	}

	return types.Decision{
		Approved:        true,
		PositionSizeUSD: decimal.NewFromFloat(pos),
		KellyFraction:   kelly,
		CheckLog:        trace,
	}
}

// entryPrice derives the entry price estimate for Kelly sizing, using
// best_bid for both directions (see DESIGN.md for the rationale).
func (m *Manager) entryPrice(sig types.Signal) float64 {
	bestBid := 0.55
	if sig.Direction == types.DirectionBuyYes {
		bestBid = 0.45
	}
	if v, ok := sig.Metadata["best_bid"]; ok {
		if f, ok := v.(float64); ok {
			bestBid = f
		}
	}

	entry := bestBid
	if sig.Direction == types.DirectionBuyNo {
		entry = 1 - clamp(bestBid, 0.01, 0.99)
	} else {
		entry = clamp(bestBid, 0.01, 0.99)
	}
	return entry
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RecordOpen marks size USD at risk for marketID and adds it to total
// exposure. Call only after a Decision with Approved=true has been acted
// on (an order was actually submitted).
func (m *Manager) RecordOpen(marketID string, sizeUSD float64) {
	m.openPositions[marketID] = sizeUSD
	m.totalExposure += sizeUSD
}

// RecordClose removes marketID's open position, applies pnl to the
// daily and overall bankroll figures.
func (m *Manager) RecordClose(marketID string, pnl float64) {
	m.resetDailyPnlIfNewDay()
	if size, ok := m.openPositions[marketID]; ok {
		m.totalExposure -= size
		delete(m.openPositions, marketID)
	}
	m.dailyPnl += pnl
	m.bankroll += pnl
}

// UpdateBankroll hard-sets the bankroll (external deposit/withdrawal).
func (m *Manager) UpdateBankroll(newBankroll float64) {
	m.bankroll = newBankroll
}

// Bankroll returns the current bankroll.
func (m *Manager) Bankroll() float64 { return m.bankroll }

// TotalExposure returns current USD at risk across all open positions.
func (m *Manager) TotalExposure() float64 { return m.totalExposure }

// OpenPositionCount returns the number of markets currently held.
func (m *Manager) OpenPositionCount() int { return len(m.openPositions) }

// DailyPnl returns the running daily PnL (resetting first if a new UTC
// day has started).
func (m *Manager) DailyPnl() float64 {
	m.resetDailyPnlIfNewDay()
	return m.dailyPnl
}
