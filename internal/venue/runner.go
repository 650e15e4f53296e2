package venue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Spec-mandated transport timeouts (§4.2 / §6), deliberately different
// from a single-feed tuning: these apply uniformly to both venues.
const (
	pingInterval     = 20 * time.Second
	pingTimeout      = 15 * time.Second
	closeTimeout     = 5 * time.Second
	initialBackoff   = 1 * time.Second
	maxBackoff       = 64 * time.Second
)

// Runner drives one Adapter's connection lifecycle: dial, auth, subscribe,
// read loop, exponential-backoff reconnect. One Runner owns exactly one
// goroutine when Run is called from the supervisor.
type Runner struct {
	adapter Adapter
	logger  *slog.Logger

	mu        sync.Mutex
	marketIDs []string
	stopped   bool
}

// New creates a Runner for the given adapter.
func New(adapter Adapter, logger *slog.Logger) *Runner {
	return &Runner{
		adapter: adapter,
		logger:  logger.With("component", "venue-runner"),
	}
}

// Subscribe registers additional market/asset IDs. Safe to call before or
// after Run starts; a resubscribe only takes effect on the next connect.
func (r *Runner) Subscribe(marketIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.marketIDs = append(r.marketIDs, marketIDs...)
}

// Stop requests the run loop to exit after the current message or sleep.
func (r *Runner) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
}

func (r *Runner) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func (r *Runner) snapshotMarketIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(r.marketIDs))
	copy(ids, r.marketIDs)
	return ids
}

// Run connects and consumes frames until ctx is cancelled or Stop is
// called, reconnecting with exponential backoff on any non-clean exit.
// The backoff resets to its initial value after every clean connect,
// which is the one deliberate correction from the pattern this is
// grounded on (see DESIGN.md).
func (r *Runner) Run(ctx context.Context) {
	backoff := initialBackoff

	for {
		if ctx.Err() != nil || r.isStopped() {
			return
		}

		connectedCleanly, err := r.connectAndRead(ctx)
		if err != nil {
			r.logger.Warn("connection error, reconnecting", "err", err, "backoff", backoff)
		}

		if connectedCleanly {
			backoff = initialBackoff
		}

		if ctx.Err() != nil || r.isStopped() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// connectAndRead dials once, subscribes, and reads until the socket
// closes. The bool return reports whether at least one full connect +
// subscribe succeeded (used to decide whether to reset backoff).
func (r *Runner) connectAndRead(ctx context.Context) (bool, error) {
	headers, err := r.adapter.AuthHeaders()
	if err != nil {
		return false, fmt.Errorf("build auth headers: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: closeTimeout}
	conn, _, err := dialer.DialContext(ctx, r.adapter.WSURL(), headers)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(pingInterval + pingTimeout)); err != nil {
		return false, fmt.Errorf("set read deadline: %w", err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pingInterval + pingTimeout))
	})

	if err := r.adapter.SendSubscribe(conn, r.snapshotMarketIDs()); err != nil {
		return false, fmt.Errorf("send subscribe: %w", err)
	}

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go r.pingLoop(pingCtx, conn)

	connected := true
	for {
		if ctx.Err() != nil || r.isStopped() {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(closeTimeout))
			return connected, nil
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return connected, fmt.Errorf("read: %w", err)
		}

		r.adapter.HandleMessage(data)
	}
}

func (r *Runner) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pingTimeout))
		}
	}
}
