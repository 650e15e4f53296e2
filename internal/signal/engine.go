// Package signal implements the detector registry and the two concrete
// detectors (book imbalance, cross-venue arbitrage) run against the live
// order books.
package signal

import (
	"log/slog"
	"sort"
	"time"

	"pmarb/internal/book"
	"pmarb/pkg/types"
)

// arbPair is a cross-venue registration: the same event's two legs.
type arbPair struct {
	polyBook    *book.Book
	kalshiBook  *book.Book
	polyID      string
	kalshiID    string
}

// Engine is the registry of books and arb pairs; EvaluateAll runs every
// detector, ranks the results, and fans them out to registered callbacks.
type Engine struct {
	logger *slog.Logger

	imbalanceBooks []*book.Book
	arbPairs       []arbPair

	imbalance ImbalanceParams
	arb       ArbParams

	callbacks []func([]types.Signal)
	persist   func(types.Signal) error
}

// New creates an Engine with the given detector parameters.
func New(imbalance ImbalanceParams, arb ArbParams, logger *slog.Logger) *Engine {
	return &Engine{
		logger:    logger.With("component", "signal-engine"),
		imbalance: imbalance,
		arb:       arb,
	}
}

// RegisterBook includes book b in every imbalance pass.
func (e *Engine) RegisterBook(b *book.Book) {
	e.imbalanceBooks = append(e.imbalanceBooks, b)
}

// RegisterArbPair includes the pair in every cross-venue pass.
func (e *Engine) RegisterArbPair(polyBook, kalshiBook *book.Book, polyID, kalshiID string) {
	e.arbPairs = append(e.arbPairs, arbPair{polyBook: polyBook, kalshiBook: kalshiBook, polyID: polyID, kalshiID: kalshiID})
}

// AddCallback registers a function invoked with the full ranked signal
// list at the end of every EvaluateAll call.
func (e *Engine) AddCallback(fn func([]types.Signal)) {
	e.callbacks = append(e.callbacks, fn)
}

// SetPersist wires a sink (typically eventstore.LogSignal) called once
// per emitted signal, with Fired already true, before callbacks run.
func (e *Engine) SetPersist(fn func(types.Signal) error) {
	e.persist = fn
}

// EvaluateAll runs the imbalance detector over every registered book and
// the arbitrage detector over every registered pair, sorts the union by
// strength descending, persists and fans out the result.
func (e *Engine) EvaluateAll() []types.Signal {
	var out []types.Signal

	for _, b := range e.imbalanceBooks {
		if sig, ok := EvaluateImbalance(b, e.imbalance); ok {
			out = append(out, sig)
		}
	}
	for _, p := range e.arbPairs {
		if sig, ok := EvaluateArb(p.polyBook, p.kalshiBook, p.polyID, p.kalshiID, e.arb); ok {
			out = append(out, sig)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Strength > out[j].Strength })

	// Every signal returned from evaluation is considered fired: mark it
	// on the slice itself (not a range-loop copy) so both the persisted
	// row and whatever callbacks see below agree.
	for i := range out {
		out[i].Fired = true
	}

	if e.persist != nil {
		for _, s := range out {
			if err := e.persist(s); err != nil {
				e.logger.Warn("signal persist failed", "err", err)
			}
		}
	}

	for _, cb := range e.callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("signal callback panicked", "recovered", r)
				}
			}()
			cb(out)
		}()
	}

	return out
}

func now() time.Time { return time.Now().UTC() }
