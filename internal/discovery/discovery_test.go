package discovery

import (
	"testing"
	"time"
)

func TestMatchArbPairsMatchesBySimilarityAndDate(t *testing.T) {
	t.Parallel()

	end := time.Date(2026, 11, 3, 0, 0, 0, 0, time.UTC)
	kalshi := []Market{
		{Platform: "kalshi", MarketID: "PRES-2026", Question: "Will the Democratic candidate win the 2026 election?", ResolutionAt: end},
		{Platform: "kalshi", MarketID: "WEATHER-NYC", Question: "Will it snow in New York tomorrow?", ResolutionAt: end.Add(-400 * 24 * time.Hour)},
	}
	poly := []Market{
		{Platform: "polymarket", MarketID: "0xabc", YesTokenID: "123", Question: "Democratic candidate wins 2026 election", ResolutionAt: end.Add(2 * time.Hour)},
		{Platform: "polymarket", MarketID: "0xdef", YesTokenID: "456", Question: "Super Bowl winner 2027", ResolutionAt: end},
	}

	pairs := MatchArbPairs(kalshi, poly)
	if len(pairs) != 1 {
		t.Fatalf("expected exactly 1 matched pair, got %d: %+v", len(pairs), pairs)
	}
	if pairs[0].Kalshi.MarketID != "PRES-2026" || pairs[0].Polymarket.MarketID != "0xabc" {
		t.Errorf("unexpected pairing: %+v", pairs[0])
	}
}

func TestMatchArbPairsSkipsOutsideDateWindow(t *testing.T) {
	t.Parallel()

	far := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	kalshi := []Market{{Platform: "kalshi", MarketID: "K1", Question: "election winner 2026", ResolutionAt: far}}
	poly := []Market{{Platform: "polymarket", MarketID: "P1", Question: "election winner 2026", ResolutionAt: far.Add(10 * 24 * time.Hour)}}

	pairs := MatchArbPairs(kalshi, poly)
	if len(pairs) != 0 {
		t.Fatalf("expected no match outside the date window, got %+v", pairs)
	}
}

func TestQuestionSimilarityIdentical(t *testing.T) {
	t.Parallel()
	if got := questionSimilarity("Will it rain tomorrow", "will it rain tomorrow"); got != 1.0 {
		t.Errorf("similarity = %v, want 1.0", got)
	}
}

func TestFirstTokenID(t *testing.T) {
	t.Parallel()
	if got := firstTokenID(`["111","222"]`); got != "111" {
		t.Errorf("firstTokenID = %q, want 111", got)
	}
}
