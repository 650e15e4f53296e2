package risk

import (
	"io"
	"log/slog"
	"testing"

	"pmarb/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func defaultCfg() Config {
	return Config{
		Bankroll:            1000,
		KellyFraction:       0.25,
		MaxPositionFraction: 0.08,
		MaxTotalExposure:    0.25,
		MinEdgeThreshold:    0.015,
		MaxDailyLossUsd:     50,
	}
}

func TestCheckApprovesAndSizesKelly(t *testing.T) {
	t.Parallel()

	// S6: entry=0.45, kelly≈0.109, fractional≈0.027, pos=$27
	m := New(defaultCfg(), testLogger())
	sig := types.Signal{
		MarketID:     "K-TEST",
		Direction:    types.DirectionBuyYes,
		EdgeEstimate: 0.06,
		Metadata:     map[string]any{"best_bid": 0.45},
	}

	d := m.Check(sig)
	if !d.Approved {
		t.Fatalf("expected approval, got rejection: %s", d.Reason)
	}
	got, _ := d.PositionSizeUSD.Float64()
	if diff := got - 27.0; diff > 0.5 || diff < -0.5 {
		t.Errorf("position size = %v, want ~27", got)
	}
}

func TestCheckRejectsDuplicatePosition(t *testing.T) {
	t.Parallel()

	m := New(defaultCfg(), testLogger())
	m.RecordOpen("K-TEST", 27)

	d := m.Check(types.Signal{MarketID: "K-TEST", EdgeEstimate: 0.06, Direction: types.DirectionBuyYes})
	if d.Approved || d.Reason != "already in position" {
		t.Fatalf("expected duplicate-position rejection, got %+v", d)
	}
}

func TestCheckRejectsOnDailyLossHalt(t *testing.T) {
	t.Parallel()

	// S7: daily_pnl=-60, max_daily_loss=$50
	m := New(defaultCfg(), testLogger())
	m.RecordOpen("OTHER", 10)
	m.RecordClose("OTHER", -60)

	d := m.Check(types.Signal{MarketID: "K-TEST", EdgeEstimate: 0.06, Direction: types.DirectionBuyYes})
	if d.Approved || d.Reason != "daily loss limit hit" {
		t.Fatalf("expected daily-loss rejection, got %+v", d)
	}
}

func TestCheckRejectsBelowEdgeFloor(t *testing.T) {
	t.Parallel()

	m := New(defaultCfg(), testLogger())
	d := m.Check(types.Signal{MarketID: "K-TEST", EdgeEstimate: 0.001, Direction: types.DirectionBuyYes})
	if d.Approved || d.Reason != "edge below threshold" {
		t.Fatalf("expected edge-floor rejection, got %+v", d)
	}
}

func TestCheckCapsAtMaxPositionFraction(t *testing.T) {
	t.Parallel()

	cfg := defaultCfg()
	cfg.KellyFraction = 1.0 // force raw kelly size above the position cap
	m := New(cfg, testLogger())

	d := m.Check(types.Signal{MarketID: "K-TEST", EdgeEstimate: 0.3, Direction: types.DirectionBuyYes, Metadata: map[string]any{"best_bid": 0.45}})
	if !d.Approved {
		t.Fatalf("expected approval, got %+v", d)
	}
	got, _ := d.PositionSizeUSD.Float64()
	cap := cfg.MaxPositionFraction * cfg.Bankroll
	if got > cap+1e-6 {
		t.Errorf("position size %v exceeds cap %v", got, cap)
	}
}

func TestCheckRejectsWhenTotalExposureExhausted(t *testing.T) {
	t.Parallel()

	cfg := defaultCfg()
	m := New(cfg, testLogger())
	m.RecordOpen("A", cfg.MaxTotalExposure*cfg.Bankroll)

	d := m.Check(types.Signal{MarketID: "B", EdgeEstimate: 0.06, Direction: types.DirectionBuyYes})
	if d.Approved || d.Reason != "total exposure cap reached" {
		t.Fatalf("expected exposure-cap rejection, got %+v", d)
	}
}

func TestRecordCloseUpdatesBankrollAndExposure(t *testing.T) {
	t.Parallel()

	m := New(defaultCfg(), testLogger())
	m.RecordOpen("K-TEST", 50)
	if m.TotalExposure() != 50 {
		t.Fatalf("exposure = %v, want 50", m.TotalExposure())
	}

	m.RecordClose("K-TEST", 12.5)
	if m.TotalExposure() != 0 {
		t.Errorf("exposure after close = %v, want 0", m.TotalExposure())
	}
	if m.Bankroll() != 1012.5 {
		t.Errorf("bankroll after close = %v, want 1012.5", m.Bankroll())
	}
	if m.OpenPositionCount() != 0 {
		t.Errorf("open positions = %v, want 0", m.OpenPositionCount())
	}
}
