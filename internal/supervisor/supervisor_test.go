package supervisor

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"pmarb/internal/book"
	"pmarb/internal/config"
	"pmarb/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Kalshi.Enabled = false
	cfg.Polymarket.Enabled = false
	cfg.Store.EventDbPath = filepath.Join(dir, "events.db")
	cfg.Store.RecordingDir = filepath.Join(dir, "recordings")
	cfg.Store.RiskStatePath = filepath.Join(dir, "risk_state.json")
	return cfg
}

// TestEngineSignalsPersistAsFired exercises the real engine -> persist ->
// event store wiring built in New, rather than constructing a Signal by
// hand and calling eventstore.LogSignal directly. It guards against the
// fired column silently staying false end to end.
func TestEngineSignalsPersistAsFired(t *testing.T) {
	t.Parallel()

	sup, err := New(testConfig(t), testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sup.store.Close()
	defer sup.recorder.Close()

	b := book.New(types.PlatformKalshi, "K-TEST")
	b.ApplySnapshot(
		[]book.Level{{Price: 0.50, Size: 900}},
		[]book.Level{{Price: 0.51, Size: 100}},
	)
	sup.engine.RegisterBook(b)

	out := sup.engine.EvaluateAll()
	if len(out) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(out))
	}

	// A profitable pnl row for the same market makes GetSignalHitRate
	// return exactly 1.0 only if the persisted row's fired column is 1;
	// if it were stuck at 0 (the bug this test guards against), the
	// fired-signal count would be 0 and the rate would come back 0.
	if err := sup.store.LogPnl("K-TEST", types.PlatformKalshi, 0.5, 0.6, 10, 5, 60); err != nil {
		t.Fatalf("LogPnl: %v", err)
	}

	rate, err := sup.store.GetSignalHitRate(types.SignalBookImbalance)
	if err != nil {
		t.Fatalf("GetSignalHitRate: %v", err)
	}
	if rate != 1.0 {
		t.Errorf("hit rate = %v, want 1.0 (persisted signal's fired column did not end up true)", rate)
	}
}

// TestHandleSignalsDoesNotNeedFiredReassignment documents that the
// signals handleSignals receives already have Fired=true set by
// Engine.EvaluateAll, since it runs only via the engine callback.
func TestHandleSignalsDoesNotNeedFiredReassignment(t *testing.T) {
	t.Parallel()

	sup, err := New(testConfig(t), testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sup.store.Close()
	defer sup.recorder.Close()

	b := book.New(types.PlatformKalshi, "K-CB")
	b.ApplySnapshot(
		[]book.Level{{Price: 0.50, Size: 900}},
		[]book.Level{{Price: 0.51, Size: 100}},
	)
	sup.engine.RegisterBook(b)

	var seenFired bool
	sup.engine.AddCallback(func(signals []types.Signal) {
		for _, s := range signals {
			seenFired = seenFired || s.Fired
		}
	})

	sup.engine.EvaluateAll()
	if !seenFired {
		t.Fatal("expected handleSignals-equivalent callback to observe Fired=true")
	}
}
