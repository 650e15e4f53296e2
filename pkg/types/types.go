// Package types holds the vocabulary shared across every package in this
// module: venues, sides, signals, orders, and the decisions the risk gate
// returns. Keeping these in one leaf package avoids import cycles between
// venue, signal, risk, and eventstore.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Platform identifies a venue.
type Platform string

const (
	PlatformKalshi     Platform = "kalshi"
	PlatformPolymarket Platform = "polymarket"
)

// Side of a canonical book level.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// Direction a signal recommends acting in.
type Direction string

const (
	DirectionBuyYes Direction = "BUY_YES"
	DirectionBuyNo  Direction = "BUY_NO"
	DirectionSkip   Direction = "SKIP"
)

// SignalType names the detector that produced a Signal.
type SignalType string

const (
	SignalCrossExchangeArb SignalType = "cross_exchange_arb"
	SignalBookImbalance    SignalType = "book_imbalance"
)

// OrderStatus tracks an order's lifecycle in the event store.
type OrderStatus string

const (
	OrderOpen    OrderStatus = "OPEN"
	OrderFilled  OrderStatus = "FILLED"
	OrderPartial OrderStatus = "PARTIAL"
	OrderCancel  OrderStatus = "CANCELLED"
	OrderFailed  OrderStatus = "FAILED"
)

// BookKey identifies a single market's book across venues.
type BookKey struct {
	Platform Platform
	MarketID string
}

// Signal is the immutable record a detector emits.
type Signal struct {
	Type         SignalType
	Direction    Direction
	Platform     Platform
	MarketID     string
	EdgeEstimate float64
	Strength     float64
	Metadata     map[string]any
	CreatedAt    time.Time
	Fired        bool // set true by Engine.EvaluateAll for every signal it emits
}

// Order is a placement intent, and later a tracked record once submitted.
type Order struct {
	RowID         int64
	MarketID      string
	Platform      Platform
	Side          Direction
	ExpectedPrice float64
	SizeUSD       decimal.Decimal
	OrderID       string
	Status        OrderStatus
	DryRun        bool
}

// Decision is the risk gate's verdict on a candidate Signal.
type Decision struct {
	Approved        bool
	Reason          string
	PositionSizeUSD decimal.Decimal
	KellyFraction   float64
	CheckLog        []string
}

// Result is what an external placement port returns after attempting an order.
type Result struct {
	OrderID string
	Status  OrderStatus
	Err     error
}
