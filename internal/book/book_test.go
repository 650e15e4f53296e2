package book

import (
	"testing"

	"pmarb/pkg/types"
)

func TestApplySnapshotNormalization(t *testing.T) {
	t.Parallel()

	b := New(types.PlatformKalshi, "K-TEST")
	// yes:[[55,200],[54,300]] -> canonical bids 0.55:200, 0.54:300
	// no:[[40,100]] -> canonical ask (100-40)/100=0.60:100
	b.ApplySnapshot(
		[]Level{{Price: 0.55, Size: 200}, {Price: 0.54, Size: 300}},
		[]Level{{Price: 0.60, Size: 100}},
	)

	bid, ok := b.BestBid()
	if !ok || bid != 0.55 {
		t.Fatalf("best bid = %v, %v, want 0.55", bid, ok)
	}
	ask, ok := b.BestAsk()
	if !ok || ask != 0.60 {
		t.Fatalf("best ask = %v, %v, want 0.60", ask, ok)
	}
	spread, _ := b.Spread()
	if diff := spread - 0.05; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("spread = %v, want 0.05", spread)
	}
	mid, _ := b.Mid()
	if mid != 0.575 {
		t.Fatalf("mid = %v, want 0.575", mid)
	}
	if !b.IsSynced() {
		t.Fatal("expected isSynced=true after snapshot")
	}
}

func TestApplyDeltaRemovesLevel(t *testing.T) {
	t.Parallel()

	b := New(types.PlatformKalshi, "K-TEST")
	b.ApplySnapshot(
		[]Level{{Price: 0.55, Size: 200}, {Price: 0.54, Size: 300}},
		[]Level{{Price: 0.60, Size: 100}},
	)

	// delta {side:no, price:40, delta:-100} -> ask level 0.60 removed (S2)
	b.ApplyDeltaIncrement(types.SideAsk, 0.60, -100)

	if _, ok := b.BestAsk(); ok {
		t.Fatal("expected no ask after removing the only level")
	}
	mid, ok := b.Mid()
	if !ok || mid != 0.55 {
		t.Fatalf("mid = %v, %v, want 0.55 (single-sided)", mid, ok)
	}
}

func TestApplyDeltaAbsoluteSet(t *testing.T) {
	t.Parallel()

	b := New(types.PlatformPolymarket, "P-TEST")
	b.ApplyDelta(types.SideBid, 0.40, 100)
	if s := b.Snapshot(); len(s.Bids) != 1 || s.Bids[0].Size != 100 {
		t.Fatalf("unexpected bids: %+v", s.Bids)
	}

	b.ApplyDelta(types.SideBid, 0.40, 0)
	if s := b.Snapshot(); len(s.Bids) != 0 {
		t.Fatalf("expected level removed, got %+v", s.Bids)
	}
}

func TestNoNonPositiveLevelsSurviveSnapshot(t *testing.T) {
	t.Parallel()

	b := New(types.PlatformKalshi, "K-TEST")
	b.ApplySnapshot(
		[]Level{{Price: 0.5, Size: 0}, {Price: 0.4, Size: -5}, {Price: 0.3, Size: 10}},
		nil,
	)
	snap := b.Snapshot()
	if len(snap.Bids) != 1 || snap.Bids[0].Price != 0.3 {
		t.Fatalf("expected only the positive-size level to survive, got %+v", snap.Bids)
	}
}

func TestImbalance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		bids   []Level
		asks   []Level
		pct    float64
		want   float64
	}{
		{
			name: "book-imbalance fixture (S3)",
			bids: []Level{{Price: 0.50, Size: 600}, {Price: 0.49, Size: 500}},
			asks: []Level{{Price: 0.51, Size: 200}, {Price: 0.52, Size: 100}},
			pct:  0.05,
			want: 1100.0 / 1400.0,
		},
		{
			name: "empty book defaults to 0.5",
			bids: nil,
			asks: nil,
			pct:  0.05,
			want: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := New(types.PlatformKalshi, "K-TEST")
			b.ApplySnapshot(tt.bids, tt.asks)
			got := b.Imbalance(tt.pct)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Imbalance() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCallbackFanOutSurvivesPanic(t *testing.T) {
	t.Parallel()

	b := New(types.PlatformKalshi, "K-TEST")
	var calledSecond bool
	b.AddCallback(func(*Book) { panic("boom") })
	b.AddCallback(func(*Book) { calledSecond = true })

	b.ApplyDelta(types.SideBid, 0.5, 10)

	if !calledSecond {
		t.Fatal("expected second callback to run despite first panicking")
	}
}

func TestDeltaBeforeSnapshotLeavesBookUnsynced(t *testing.T) {
	t.Parallel()

	b := New(types.PlatformPolymarket, "P-TEST")
	b.ApplyDelta(types.SideBid, 0.4, 50)
	if b.IsSynced() {
		t.Fatal("expected isSynced=false until a snapshot is applied")
	}
}
