package venue

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"pmarb/internal/book"
	"pmarb/pkg/types"
)

const polymarketURL = "wss://ws-subscriptions-clob.polymarket.com/ws/"

// PolymarketAdapter implements Adapter for the decentralized CLOB: no
// auth for public book data, BUY/SELL price_change events keyed by
// per-outcome token id. Only the YES token of each market is tracked.
type PolymarketAdapter struct {
	logger *slog.Logger

	tokenToMarket map[string]string // YES token id -> market_id
	books         map[string]*book.Book
	callback      func(*book.Book)
}

// NewPolymarketAdapter builds an adapter. Register markets with
// RegisterMarket before Run starts so subscribe frames include their
// tokens.
func NewPolymarketAdapter(logger *slog.Logger, onUpdate func(*book.Book)) *PolymarketAdapter {
	return &PolymarketAdapter{
		logger:        logger.With("component", "venue-polymarket"),
		tokenToMarket: make(map[string]string),
		books:         make(map[string]*book.Book),
		callback:      onUpdate,
	}
}

// RegisterMarket maps a market's YES token id to its market_id and
// creates the corresponding canonical book.
func (p *PolymarketAdapter) RegisterMarket(marketID, yesTokenID string) *book.Book {
	p.tokenToMarket[yesTokenID] = marketID
	b := book.New(types.PlatformPolymarket, marketID)
	if p.callback != nil {
		b.AddCallback(p.callback)
	}
	p.books[marketID] = b
	return b
}

func (p *PolymarketAdapter) Book(marketID string) *book.Book { return p.books[marketID] }

func (p *PolymarketAdapter) WSURL() string { return polymarketURL }

// AuthHeaders returns no headers: public market data requires none.
func (p *PolymarketAdapter) AuthHeaders() (http.Header, error) { return http.Header{}, nil }

type polymarketSubscribeMsg struct {
	AssetsIDs []string `json:"assets_ids"`
	Type      string   `json:"type"`
}

func (p *PolymarketAdapter) SendSubscribe(conn *websocket.Conn, marketIDs []string) error {
	tokens := make([]string, 0, len(marketIDs))
	for token, marketID := range p.tokenToMarket {
		for _, m := range marketIDs {
			if m == marketID {
				tokens = append(tokens, token)
			}
		}
	}
	return conn.WriteJSON(polymarketSubscribeMsg{AssetsIDs: tokens, Type: "Market"})
}

type polymarketEnvelope struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
}

type polymarketLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type polymarketBookMsg struct {
	EventType string            `json:"event_type"`
	AssetID   string            `json:"asset_id"`
	Bids      []polymarketLevel `json:"bids"`
	Asks      []polymarketLevel `json:"asks"`
}

type polymarketChange struct {
	Side  string `json:"side"`
	Price string `json:"price"`
	Size  string `json:"size"`
}

type polymarketPriceChangeMsg struct {
	EventType string             `json:"event_type"`
	AssetID   string             `json:"asset_id"`
	Changes   []polymarketChange `json:"changes"`
}

// HandleMessage dispatches a single frame, or each element of a frame
// that arrived as a JSON array (the venue sends both shapes).
func (p *PolymarketAdapter) HandleMessage(raw []byte) {
	trimmed := skipWhitespace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(raw, &batch); err != nil {
			p.logger.Debug("malformed batch frame", "err", err)
			return
		}
		for _, item := range batch {
			p.handleOne(item)
		}
		return
	}
	p.handleOne(raw)
}

func (p *PolymarketAdapter) handleOne(raw []byte) {
	var env polymarketEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		p.logger.Debug("malformed frame", "err", err)
		return
	}

	marketID, known := p.tokenToMarket[env.AssetID]
	if !known {
		return
	}
	b := p.books[marketID]
	if b == nil {
		return
	}

	switch env.EventType {
	case "book":
		var m polymarketBookMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			p.logger.Debug("malformed book frame", "err", err)
			return
		}
		bids := make([]book.Level, 0, len(m.Bids))
		for _, lvl := range m.Bids {
			bids = append(bids, book.Level{Price: parseDecimal(lvl.Price), Size: parseDecimal(lvl.Size)})
		}
		asks := make([]book.Level, 0, len(m.Asks))
		for _, lvl := range m.Asks {
			asks = append(asks, book.Level{Price: parseDecimal(lvl.Price), Size: parseDecimal(lvl.Size)})
		}
		b.ApplySnapshot(bids, asks)

	case "price_change":
		var m polymarketPriceChangeMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			p.logger.Debug("malformed price_change frame", "err", err)
			return
		}
		for _, c := range m.Changes {
			price := parseDecimal(c.Price)
			size := parseDecimal(c.Size)
			switch c.Side {
			case "BUY":
				b.ApplyDelta(types.SideBid, price, size)
			case "SELL":
				b.ApplyDelta(types.SideAsk, price, size)
			default:
				p.logger.Debug("unknown change side", "side", c.Side)
			}
		}

	default:
		p.logger.Debug("unhandled event type", "type", env.EventType)
	}
}

func parseDecimal(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func skipWhitespace(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t' || b[i] == '\n' || b[i] == '\r') {
		i++
	}
	return b[i:]
}
