package signal

import (
	"io"
	"log/slog"
	"testing"

	"pmarb/internal/book"
	"pmarb/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mkBook(platform types.Platform, id string, bids, asks []book.Level) *book.Book {
	b := book.New(platform, id)
	b.ApplySnapshot(bids, asks)
	return b
}

func TestEvaluateImbalanceFires(t *testing.T) {
	t.Parallel()

	// S3: bid_vol=1100, ask_vol=300, imbalance≈0.786
	b := mkBook(types.PlatformKalshi, "K-TEST",
		[]book.Level{{Price: 0.50, Size: 600}, {Price: 0.49, Size: 500}},
		[]book.Level{{Price: 0.51, Size: 200}, {Price: 0.52, Size: 100}},
	)

	sig, ok := EvaluateImbalance(b, DefaultImbalanceParams())
	if !ok {
		t.Fatal("expected a signal")
	}
	if sig.Direction != types.DirectionBuyYes {
		t.Errorf("direction = %v, want BUY_YES", sig.Direction)
	}
	wantEdge := 0.0572
	if diff := sig.EdgeEstimate - wantEdge; diff > 1e-3 || diff < -1e-3 {
		t.Errorf("edge = %v, want ~%v", sig.EdgeEstimate, wantEdge)
	}
	wantStrength := 0.389
	if diff := sig.Strength - wantStrength; diff > 1e-2 || diff < -1e-2 {
		t.Errorf("strength = %v, want ~%v", sig.Strength, wantStrength)
	}
}

func TestEvaluateImbalanceBelowMinDepth(t *testing.T) {
	t.Parallel()

	b := mkBook(types.PlatformKalshi, "K-TEST",
		[]book.Level{{Price: 0.50, Size: 10}},
		[]book.Level{{Price: 0.51, Size: 1}},
	)
	if _, ok := EvaluateImbalance(b, DefaultImbalanceParams()); ok {
		t.Fatal("expected no signal below minDepthUsd")
	}
}

func TestEvaluateImbalanceUnsynced(t *testing.T) {
	t.Parallel()
	b := book.New(types.PlatformKalshi, "K-TEST")
	if _, ok := EvaluateImbalance(b, DefaultImbalanceParams()); ok {
		t.Fatal("expected no signal on unsynced book")
	}
}

func TestEvaluateImbalanceAtThresholdEmitsNothing(t *testing.T) {
	t.Parallel()
	// imbalance exactly 0.65 must not fire (strictly greater required).
	b := mkBook(types.PlatformKalshi, "K-TEST",
		[]book.Level{{Price: 0.50, Size: 650}},
		[]book.Level{{Price: 0.51, Size: 350}},
	)
	if _, ok := EvaluateImbalance(b, DefaultImbalanceParams()); ok {
		t.Fatal("expected no signal exactly at threshold")
	}
}

func TestEvaluateArbNoEdge(t *testing.T) {
	t.Parallel()

	// S4: no signal, best=-0.02 < minSpread
	poly := mkBook(types.PlatformPolymarket, "P1", []book.Level{{Price: 0.47, Size: 100}}, []book.Level{{Price: 0.48, Size: 100}})
	kalshi := mkBook(types.PlatformKalshi, "K1", []book.Level{{Price: 0.55, Size: 100}}, []book.Level{{Price: 0.60, Size: 100}})

	if _, ok := EvaluateArb(poly, kalshi, "P1", "K1", DefaultArbParams()); ok {
		t.Fatal("expected no arb signal for S4 fixture")
	}
}

func TestEvaluateArbFires(t *testing.T) {
	t.Parallel()

	// S5: poly ask=0.40, kalshi bid=0.55, best=0.06, strength=0.8
	poly := mkBook(types.PlatformPolymarket, "P1", []book.Level{{Price: 0.39, Size: 100}}, []book.Level{{Price: 0.40, Size: 100}})
	kalshi := mkBook(types.PlatformKalshi, "K1", []book.Level{{Price: 0.55, Size: 100}}, []book.Level{{Price: 0.61, Size: 100}})

	sig, ok := EvaluateArb(poly, kalshi, "P1", "K1", DefaultArbParams())
	if !ok {
		t.Fatal("expected arb signal for S5 fixture")
	}
	if diff := sig.EdgeEstimate - 0.06; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("edge = %v, want 0.06", sig.EdgeEstimate)
	}
	if diff := sig.Strength - 0.8; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("strength = %v, want 0.8", sig.Strength)
	}
	if sig.Platform != types.PlatformPolymarket {
		t.Errorf("platform = %v, want polymarket (the buy leg)", sig.Platform)
	}
}

func TestEvaluateArbInclusiveAtMinSpread(t *testing.T) {
	t.Parallel()

	params := DefaultArbParams()
	// construct so best == minSpread exactly: kalshi_bid - poly_ask - fees == 0.015
	poly := mkBook(types.PlatformPolymarket, "P1", []book.Level{{Price: 0.01, Size: 100}}, []book.Level{{Price: 0.40, Size: 100}})
	kalshiBid := 0.40 + params.PolyFee + params.KalshiFee + params.MinSpread
	kalshi := mkBook(types.PlatformKalshi, "K1", []book.Level{{Price: kalshiBid, Size: 100}}, []book.Level{{Price: 0.99, Size: 100}})

	if _, ok := EvaluateArb(poly, kalshi, "P1", "K1", params); !ok {
		t.Fatal("expected arb signal when best exactly equals minSpread (inclusive boundary)")
	}
}

func TestEngineEvaluateAllRanksByStrength(t *testing.T) {
	t.Parallel()

	e := New(DefaultImbalanceParams(), DefaultArbParams(), testLogger())

	strong := mkBook(types.PlatformKalshi, "K-STRONG",
		[]book.Level{{Price: 0.50, Size: 900}},
		[]book.Level{{Price: 0.51, Size: 100}},
	)
	weak := mkBook(types.PlatformKalshi, "K-WEAK",
		[]book.Level{{Price: 0.50, Size: 660}},
		[]book.Level{{Price: 0.51, Size: 340}},
	)
	e.RegisterBook(strong)
	e.RegisterBook(weak)

	var captured []types.Signal
	e.AddCallback(func(s []types.Signal) { captured = s })

	out := e.EvaluateAll()
	if len(out) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(out))
	}
	if out[0].Strength < out[1].Strength {
		t.Errorf("expected signals sorted by strength descending: %+v", out)
	}
	if len(captured) != 2 {
		t.Errorf("expected callback to receive 2 signals, got %d", len(captured))
	}
}

func TestEngineEvaluateAllPersistsFiredTrue(t *testing.T) {
	t.Parallel()

	e := New(DefaultImbalanceParams(), DefaultArbParams(), testLogger())
	e.RegisterBook(mkBook(types.PlatformKalshi, "K-TEST",
		[]book.Level{{Price: 0.50, Size: 900}},
		[]book.Level{{Price: 0.51, Size: 100}},
	))

	var persisted []types.Signal
	e.SetPersist(func(s types.Signal) error {
		persisted = append(persisted, s)
		return nil
	})

	var captured []types.Signal
	e.AddCallback(func(s []types.Signal) { captured = s })

	out := e.EvaluateAll()
	if len(out) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(out))
	}
	if !out[0].Fired {
		t.Error("EvaluateAll's return value should have Fired=true")
	}
	if len(persisted) != 1 || !persisted[0].Fired {
		t.Fatalf("expected the persisted signal to have Fired=true, got %+v", persisted)
	}
	if len(captured) != 1 || !captured[0].Fired {
		t.Fatalf("expected the callback-visible signal to have Fired=true, got %+v", captured)
	}
}
