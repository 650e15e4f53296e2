// Package supervisor assembles every component and drives the live
// loop's goroutines with a New/Start/Stop/WaitGroup/context lifecycle,
// one goroutine per venue adapter rather than per market (see
// DESIGN.md for the rationale).
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pmarb/internal/alert"
	"pmarb/internal/book"
	"pmarb/internal/config"
	"pmarb/internal/discovery"
	"pmarb/internal/eventstore"
	"pmarb/internal/placement"
	"pmarb/internal/recorder"
	"pmarb/internal/risk"
	"pmarb/internal/signal"
	"pmarb/internal/venue"
	"pmarb/pkg/types"
)

// Supervisor wires venue adapters, the recorder, the signal engine, the
// risk manager, and the placement port together and owns their
// goroutines for the life of the process.
type Supervisor struct {
	cfg    config.Config
	logger *slog.Logger

	kalshi     *venue.KalshiAdapter
	kalshiRun  *venue.Runner
	poly       *venue.PolymarketAdapter
	polyRun    *venue.Runner

	recorder *recorder.Recorder
	store    *eventstore.Store
	engine   *signal.Engine
	riskMgr  *risk.Manager
	sink     alert.Sink
	port     placement.Port

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs every component but does not yet connect to any venue
// or start any goroutine.
func New(cfg config.Config, logger *slog.Logger) (*Supervisor, error) {
	store, err := eventstore.Open(cfg.Store.EventDbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}

	rec := recorder.New(cfg.Store.RecordingDir, cfg.Store.Compress, logger)

	riskMgr := risk.New(risk.Config{
		Bankroll:            cfg.Risk.BankrollUsd,
		KellyFraction:       cfg.Risk.KellyFraction,
		MaxPositionFraction: cfg.Risk.MaxPositionFraction,
		MaxTotalExposure:    cfg.Risk.MaxTotalExposure,
		MinEdgeThreshold:    cfg.Risk.MinEdgeThreshold,
		MaxDailyLossUsd:     cfg.Risk.MaxDailyLossUsd,
	}, logger)
	if cfg.Store.RiskStatePath != "" {
		if err := riskMgr.LoadState(cfg.Store.RiskStatePath); err != nil {
			logger.Warn("risk state reload failed, starting fresh", "err", err)
		}
	}

	engine := signal.New(signal.DefaultImbalanceParams(), signal.DefaultArbParams(), logger)
	engine.SetPersist(func(s types.Signal) error {
		_, err := store.LogSignal(s)
		return err
	})

	var port placement.Port = placement.NewDryRunPort(logger)

	s := &Supervisor{
		cfg:      cfg,
		logger:   logger.With("component", "supervisor"),
		recorder: rec,
		store:    store,
		engine:   engine,
		riskMgr:  riskMgr,
		sink:     alert.NewLogSink(logger),
		port:     port,
	}

	onBookUpdate := func(b *book.Book) {
		rec.OnUpdate(b)
		s.engine.EvaluateAll()
	}

	if cfg.Kalshi.Enabled {
		s.kalshi = venue.NewKalshiAdapter(cfg.Kalshi.Demo, cfg.Kalshi.AccessKey, cfg.Kalshi.Secret, logger, onBookUpdate)
		s.kalshiRun = venue.New(s.kalshi, logger)
	}
	if cfg.Polymarket.Enabled {
		s.poly = venue.NewPolymarketAdapter(logger, onBookUpdate)
		s.polyRun = venue.New(s.poly, logger)
	}

	engine.AddCallback(s.handleSignals)

	return s, nil
}

// handleSignals is the engine callback: for each fired signal, consult
// the risk manager and, on approval, place the order and record it; on
// rejection, log the reason.
func (s *Supervisor) handleSignals(signals []types.Signal) {
	for _, sig := range signals {
		decision := s.riskMgr.Check(sig)
		if !decision.Approved {
			s.logger.Info("signal rejected", "market_id", sig.MarketID, "reason", decision.Reason)
			continue
		}

		sizeUSD, _ := decision.PositionSizeUSD.Float64()
		order := types.Order{
			MarketID:      sig.MarketID,
			Platform:      sig.Platform,
			Side:          sig.Direction,
			ExpectedPrice: expectedPrice(sig),
			SizeUSD:       decision.PositionSizeUSD,
			DryRun:        s.cfg.DryRun,
		}
		rowID, err := s.store.LogOrder(order)
		if err != nil {
			s.logger.Error("log order failed", "err", err)
			continue
		}

		result, err := s.port.Place(order)
		if err != nil {
			s.logger.Error("placement failed", "err", err, "market_id", sig.MarketID)
			_ = s.store.UpdateOrderStatus(rowID, types.OrderFailed, "")
			s.sink.Notify("warning", fmt.Sprintf("placement failed for %s: %v", sig.MarketID, err))
			continue
		}

		_ = s.store.UpdateOrderStatus(rowID, result.Status, result.OrderID)
		s.riskMgr.RecordOpen(sig.MarketID, sizeUSD)
		s.saveRiskState()
	}
}

func (s *Supervisor) saveRiskState() {
	if s.cfg.Store.RiskStatePath == "" {
		return
	}
	if err := s.riskMgr.SaveState(s.cfg.Store.RiskStatePath); err != nil {
		s.logger.Warn("risk state save failed", "err", err)
	}
}

func expectedPrice(sig types.Signal) float64 {
	if v, ok := sig.Metadata["best_ask"]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	if v, ok := sig.Metadata["best_bid"]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return 0
}

// Discover performs the one-shot market enumeration and arb-pair
// matching, populating adapter subscriptions and engine registrations.
func (s *Supervisor) Discover(ctx context.Context) error {
	client := discovery.New(s.logger)

	var kalshiMarkets []discovery.Market
	var polyMarkets []discovery.Market
	var err error

	if s.kalshi != nil {
		kalshiMarkets, err = client.FetchKalshi(ctx)
		if err != nil {
			return fmt.Errorf("discover kalshi markets: %w", err)
		}
		tickers := make([]string, 0, len(kalshiMarkets))
		for _, m := range kalshiMarkets {
			tickers = append(tickers, m.MarketID)
			b := s.kalshi.Book(m.MarketID)
			s.engine.RegisterBook(b)
		}
		s.kalshiRun.Subscribe(tickers...)
	}

	if s.poly != nil {
		polyMarkets, err = client.FetchPolymarket(ctx)
		if err != nil {
			return fmt.Errorf("discover polymarket markets: %w", err)
		}
		ids := make([]string, 0, len(polyMarkets))
		for _, m := range polyMarkets {
			if m.YesTokenID == "" {
				continue
			}
			ids = append(ids, m.MarketID)
			b := s.poly.RegisterMarket(m.MarketID, m.YesTokenID)
			s.engine.RegisterBook(b)
		}
		s.polyRun.Subscribe(ids...)
	}

	if s.kalshi != nil && s.poly != nil {
		pairs := discovery.MatchArbPairs(kalshiMarkets, polyMarkets)
		for _, pair := range pairs {
			polyB := s.poly.Book(pair.Polymarket.MarketID)
			kalshiB := s.kalshi.Book(pair.Kalshi.MarketID)
			s.engine.RegisterArbPair(polyB, kalshiB, pair.Polymarket.MarketID, pair.Kalshi.MarketID)
		}
		s.logger.Info("discovery complete", "kalshi_markets", len(kalshiMarkets), "poly_markets", len(polyMarkets), "arb_pairs", len(pairs))
	}

	return nil
}

// Start spawns each enabled adapter's run goroutine and the periodic
// snapshot task.
func (s *Supervisor) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if s.kalshiRun != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.kalshiRun.Run(s.ctx)
		}()
	}
	if s.polyRun != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.polyRun.Run(s.ctx)
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.snapshotLoop(s.ctx)
	}()
}

func (s *Supervisor) snapshotLoop(ctx context.Context) {
	interval := time.Duration(s.cfg.SnapshotIntervalSec) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.takeSnapshot()
		}
	}
}

func (s *Supervisor) takeSnapshot() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("snapshot task panicked", "recovered", r)
		}
	}()

	dailyPnl, err := s.store.GetDailyPnl(time.Now())
	if err != nil {
		s.logger.Warn("snapshot: get daily pnl failed", "err", err)
	}

	bankroll := s.riskMgr.Bankroll()
	exposure := s.riskMgr.TotalExposure()
	open := s.riskMgr.OpenPositionCount()

	if err := s.store.Snapshot(bankroll, exposure, open, dailyPnl, dailyPnl); err != nil {
		s.logger.Warn("snapshot write failed", "err", err)
		return
	}
	s.saveRiskState()

	if s.cfg.Risk.MaxDailyLossUsd > 0 && dailyPnl <= -0.8*s.cfg.Risk.MaxDailyLossUsd {
		s.sink.Notify("warning", fmt.Sprintf("daily pnl %.2f approaching halt threshold %.2f", dailyPnl, -s.cfg.Risk.MaxDailyLossUsd))
	}
}

// Stop cancels all goroutines, waits for them to exit, and closes the
// recorder and event store.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.kalshiRun != nil {
		s.kalshiRun.Stop()
	}
	if s.polyRun != nil {
		s.polyRun.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		s.logger.Warn("shutdown timed out waiting for goroutines")
	}

	if err := s.recorder.Close(); err != nil {
		s.logger.Warn("recorder close failed", "err", err)
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("event store close failed", "err", err)
	}
}
