package venue

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"pmarb/internal/book"
	"pmarb/pkg/types"
)

const (
	kalshiProdURL = "wss://trading-api.kalshi.com/trade-api/ws/v2"
	kalshiDemoURL = "wss://demo-api.kalshi.co/trade-api/ws/v2"
	kalshiWSPath  = "/trade-api/ws/v2"
)

// KalshiAdapter implements Adapter for the regulated centralized exchange:
// a YES-bid-ladder + NO-bid-ladder book, HMAC-signed WS upgrade.
type KalshiAdapter struct {
	url    string
	auth   *kalshiAuth
	logger *slog.Logger

	cmdID int

	books    map[string]*book.Book // market_ticker -> book
	callback func(*book.Book)
}

// NewKalshiAdapter builds an adapter. demo selects the sandbox endpoint;
// accessKey/secret may be empty (config validation allows this against the
// demo endpoint); the runner then dials without auth headers, which Kalshi
// will reject.
func NewKalshiAdapter(demo bool, accessKey, secret string, logger *slog.Logger, onUpdate func(*book.Book)) *KalshiAdapter {
	url := kalshiProdURL
	if demo {
		url = kalshiDemoURL
	}
	return &KalshiAdapter{
		url:      url,
		auth:     newKalshiAuth(accessKey, secret, kalshiWSPath),
		logger:   logger.With("component", "venue-kalshi"),
		books:    make(map[string]*book.Book),
		callback: onUpdate,
	}
}

// Book returns (creating if absent) the canonical book for a market
// ticker, registering the supervisor's update callback on creation.
func (k *KalshiAdapter) Book(marketTicker string) *book.Book {
	if b, ok := k.books[marketTicker]; ok {
		return b
	}
	b := book.New(types.PlatformKalshi, marketTicker)
	if k.callback != nil {
		b.AddCallback(k.callback)
	}
	k.books[marketTicker] = b
	return b
}

func (k *KalshiAdapter) WSURL() string { return k.url }

func (k *KalshiAdapter) AuthHeaders() (http.Header, error) {
	return k.auth.headers()
}

type kalshiSubscribeParams struct {
	Channels      []string `json:"channels"`
	MarketTickers []string `json:"market_tickers"`
}

type kalshiSubscribeCmd struct {
	ID     int                   `json:"id"`
	Cmd    string                `json:"cmd"`
	Params kalshiSubscribeParams `json:"params"`
}

func (k *KalshiAdapter) SendSubscribe(conn *websocket.Conn, marketIDs []string) error {
	k.cmdID++
	cmd := kalshiSubscribeCmd{
		ID:  k.cmdID,
		Cmd: "subscribe",
		Params: kalshiSubscribeParams{
			Channels:      []string{"orderbook_delta"},
			MarketTickers: marketIDs,
		},
	}
	return conn.WriteJSON(cmd)
}

type kalshiEnvelope struct {
	Type string          `json:"type"`
	Msg  json.RawMessage `json:"msg"`
}

type kalshiSnapshotMsg struct {
	MarketTicker string      `json:"market_ticker"`
	Yes          [][2]int64  `json:"yes"`
	No           [][2]int64  `json:"no"`
}

type kalshiDeltaMsg struct {
	MarketTicker string `json:"market_ticker"`
	Price        int64  `json:"price"`
	Delta        int64  `json:"delta"`
	Side         string `json:"side"`
}

func (k *KalshiAdapter) HandleMessage(raw []byte) {
	var env kalshiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		k.logger.Debug("malformed frame", "err", err)
		return
	}

	switch env.Type {
	case "orderbook_snapshot":
		var m kalshiSnapshotMsg
		if err := json.Unmarshal(env.Msg, &m); err != nil {
			k.logger.Debug("malformed snapshot", "err", err)
			return
		}
		b := k.Book(m.MarketTicker)
		bids := make([]book.Level, 0, len(m.Yes))
		for _, lvl := range m.Yes {
			bids = append(bids, book.Level{Price: float64(lvl[0]) / 100.0, Size: float64(lvl[1])})
		}
		asks := make([]book.Level, 0, len(m.No))
		for _, lvl := range m.No {
			asks = append(asks, book.Level{Price: (100.0 - float64(lvl[0])) / 100.0, Size: float64(lvl[1])})
		}
		b.ApplySnapshot(bids, asks)

	case "orderbook_delta":
		var m kalshiDeltaMsg
		if err := json.Unmarshal(env.Msg, &m); err != nil {
			k.logger.Debug("malformed delta", "err", err)
			return
		}
		b := k.Book(m.MarketTicker)
		switch m.Side {
		case "yes":
			b.ApplyDeltaIncrement(types.SideBid, float64(m.Price)/100.0, float64(m.Delta))
		case "no":
			b.ApplyDeltaIncrement(types.SideAsk, (100.0-float64(m.Price))/100.0, float64(m.Delta))
		default:
			k.logger.Debug("unknown delta side", "side", m.Side)
		}

	case "subscribed", "error":
		k.logger.Debug("control frame", "type", env.Type)

	default:
		k.logger.Debug("unhandled frame type", "type", env.Type)
	}
}
