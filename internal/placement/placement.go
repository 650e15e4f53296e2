// Package placement defines the external order-placement port. Real
// REST clients for either venue live outside this module; this package
// only exposes the interface the risk-approved path calls and a
// dry-run stub that satisfies it for local/demo running.
package placement

import (
	"log/slog"

	"github.com/google/uuid"

	"pmarb/pkg/types"
)

// Port is the single operation external placement clients must satisfy.
type Port interface {
	Place(order types.Order) (types.Result, error)
}

// DryRunPort simulates instant fills without contacting any venue.
type DryRunPort struct {
	logger *slog.Logger
}

// NewDryRunPort builds a DryRunPort.
func NewDryRunPort(logger *slog.Logger) *DryRunPort {
	return &DryRunPort{logger: logger.With("component", "placement-dryrun")}
}

// Place synthesizes a successful fill without any network call.
func (p *DryRunPort) Place(order types.Order) (types.Result, error) {
	id := "dryrun-" + uuid.NewString()
	p.logger.Info("dry-run order placed", "market_id", order.MarketID, "platform", order.Platform, "order_id", id)
	return types.Result{OrderID: id, Status: types.OrderFilled}, nil
}
