// Package discovery lists tradable markets on each venue, then
// heuristically pairs markets resolving the same event by question-text
// similarity and resolution-date proximity.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Market is a venue-agnostic summary of one tradable market, enough to
// drive matching and adapter subscription.
type Market struct {
	Platform     string
	MarketID     string // Kalshi ticker, or Polymarket condition id
	YesTokenID   string // Polymarket only; empty for Kalshi
	Question     string
	ResolutionAt time.Time
}

// Pair is a matched cross-venue arb candidate.
type Pair struct {
	Kalshi     Market
	Polymarket Market
}

const (
	kalshiMarketsURL     = "https://trading-api.kalshi.com/trade-api/v2/markets"
	polymarketGammaURL   = "https://gamma-api.polymarket.com/markets"
	matchWindow          = 48 * time.Hour
)

// Client polls both venues' discovery REST endpoints, rate-limited to
// stay well clear of either venue's published request budget.
type Client struct {
	http    *resty.Client
	limiter *tokenBucket
	logger  *slog.Logger
}

// New builds a discovery client with a bounded HTTP timeout and a
// 1-request-per-second poll budget with a small burst allowance.
func New(logger *slog.Logger) *Client {
	return &Client{
		http: resty.New().
			SetTimeout(15 * time.Second).
			SetRetryCount(2),
		limiter: newTokenBucket(5, 1),
		logger:  logger.With("component", "discovery"),
	}
}

type kalshiMarketsResponse struct {
	Markets []struct {
		Ticker       string    `json:"ticker"`
		Title        string    `json:"title"`
		Status       string    `json:"status"`
		CloseTime    time.Time `json:"close_time"`
	} `json:"markets"`
}

// FetchKalshi enumerates active Kalshi markets.
func (c *Client) FetchKalshi(ctx context.Context) ([]Market, error) {
	if err := c.limiter.wait(ctx); err != nil {
		return nil, fmt.Errorf("fetch kalshi markets: %w", err)
	}

	var out kalshiMarketsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("status", "open").
		SetResult(&out).
		Get(kalshiMarketsURL)
	if err != nil {
		return nil, fmt.Errorf("fetch kalshi markets: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch kalshi markets: status %d", resp.StatusCode())
	}

	markets := make([]Market, 0, len(out.Markets))
	for _, m := range out.Markets {
		if m.Status != "open" && m.Status != "" {
			continue
		}
		markets = append(markets, Market{
			Platform:     "kalshi",
			MarketID:     m.Ticker,
			Question:     m.Title,
			ResolutionAt: m.CloseTime,
		})
	}
	return markets, nil
}

type gammaMarket struct {
	ConditionID string `json:"conditionId"`
	Question    string `json:"question"`
	EndDate     string `json:"endDate"`
	ClobTokenIDs string `json:"clobTokenIds"`
	Active      bool   `json:"active"`
	Closed      bool   `json:"closed"`
}

// FetchPolymarket enumerates active Polymarket Gamma markets.
func (c *Client) FetchPolymarket(ctx context.Context) ([]Market, error) {
	if err := c.limiter.wait(ctx); err != nil {
		return nil, fmt.Errorf("fetch polymarket markets: %w", err)
	}

	var out []gammaMarket
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("active", "true").
		SetQueryParam("closed", "false").
		SetResult(&out).
		Get(polymarketGammaURL)
	if err != nil {
		return nil, fmt.Errorf("fetch polymarket markets: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch polymarket markets: status %d", resp.StatusCode())
	}

	markets := make([]Market, 0, len(out))
	for _, m := range out {
		if !m.Active || m.Closed {
			continue
		}
		end, _ := time.Parse(time.RFC3339, m.EndDate)
		yesToken := firstTokenID(m.ClobTokenIDs)
		markets = append(markets, Market{
			Platform:     "polymarket",
			MarketID:     m.ConditionID,
			YesTokenID:   yesToken,
			Question:     m.Question,
			ResolutionAt: end,
		})
	}
	return markets, nil
}

// firstTokenID extracts the first id out of a JSON-array-as-string field
// like `["123","456"]`, matching the Gamma API's quirky encoding.
func firstTokenID(raw string) string {
	s := strings.Trim(raw, "[]")
	parts := strings.Split(s, ",")
	if len(parts) == 0 {
		return ""
	}
	return strings.Trim(strings.TrimSpace(parts[0]), `"`)
}

// MatchArbPairs heuristically pairs Kalshi and Polymarket markets that
// resolve the same event: normalized question-text overlap plus a
// resolution-date proximity window.
func MatchArbPairs(kalshiMarkets, polyMarkets []Market) []Pair {
	var pairs []Pair
	for _, k := range kalshiMarkets {
		best := -1
		bestScore := 0.0
		for i, p := range polyMarkets {
			if k.ResolutionAt.IsZero() || p.ResolutionAt.IsZero() {
				continue
			}
			delta := k.ResolutionAt.Sub(p.ResolutionAt)
			if delta < 0 {
				delta = -delta
			}
			if delta > matchWindow {
				continue
			}
			score := questionSimilarity(k.Question, p.Question)
			if score > bestScore {
				bestScore = score
				best = i
			}
		}
		if best >= 0 && bestScore >= 0.5 {
			pairs = append(pairs, Pair{Kalshi: k, Polymarket: polyMarkets[best]})
		}
	}
	return pairs
}

// questionSimilarity is a Jaccard index over normalized word sets:
// cheap, dependency-free, and good enough to rank candidates within the
// date window.
func questionSimilarity(a, b string) float64 {
	wordsA := normalizedWords(a)
	wordsB := normalizedWords(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	setB := make(map[string]bool, len(wordsB))
	for _, w := range wordsB {
		setB[w] = true
	}

	var intersection int
	seen := make(map[string]bool)
	for _, w := range wordsA {
		if seen[w] {
			continue
		}
		seen[w] = true
		if setB[w] {
			intersection++
		}
	}

	union := len(seen)
	for w := range setB {
		if !seen[w] {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "will": true, "be": true, "in": true,
	"on": true, "of": true, "to": true, "by": true, "is": true, "at": true,
}

func normalizedWords(s string) []string {
	s = strings.ToLower(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f == "" || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}
