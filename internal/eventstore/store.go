// Package eventstore implements the append-only event log backing
// calibration and replay: signals, orders, fills, pnl, and periodic
// portfolio snapshots, plus the analytics queries over them.
package eventstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"pmarb/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS signals (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts TEXT NOT NULL,
	signal_type TEXT NOT NULL,
	direction TEXT NOT NULL,
	platform TEXT NOT NULL,
	market_id TEXT NOT NULL,
	edge_estimate REAL NOT NULL,
	strength REAL NOT NULL,
	fired INTEGER NOT NULL,
	metadata_json TEXT
);
CREATE INDEX IF NOT EXISTS idx_signals_ts ON signals(ts);
CREATE INDEX IF NOT EXISTS idx_signals_market ON signals(market_id);

CREATE TABLE IF NOT EXISTS orders (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts TEXT NOT NULL,
	platform TEXT NOT NULL,
	market_id TEXT NOT NULL,
	side TEXT NOT NULL,
	expected_price REAL NOT NULL,
	size_usd REAL NOT NULL,
	order_id TEXT,
	status TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_ts ON orders(ts);

CREATE TABLE IF NOT EXISTS fills (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	order_row_id INTEGER NOT NULL REFERENCES orders(id),
	ts TEXT NOT NULL,
	fill_price REAL NOT NULL,
	fill_size REAL NOT NULL,
	slippage REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS pnl (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts TEXT NOT NULL,
	market_id TEXT NOT NULL,
	platform TEXT NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	size_usd REAL NOT NULL,
	pnl_usd REAL NOT NULL,
	holding_seconds REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pnl_ts ON pnl(ts);
CREATE INDEX IF NOT EXISTS idx_pnl_market ON pnl(market_id);

CREATE TABLE IF NOT EXISTS summary_snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts TEXT NOT NULL,
	bankroll REAL NOT NULL,
	total_exposure REAL NOT NULL,
	open_positions INTEGER NOT NULL,
	daily_pnl REAL NOT NULL,
	total_pnl REAL NOT NULL
);
`

// Store wraps a SQLite-backed event log. Safe for concurrent use; each
// method is a single atomic statement.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates (if needed) and migrates the database at path, enabling
// WAL mode so readers never block writers.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers on one conn pool larger than 1

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{db: db, logger: logger.With("component", "eventstore")}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// LogSignal persists a fired or rejected signal and returns its row id.
func (s *Store) LogSignal(sig types.Signal) (int64, error) {
	meta, err := json.Marshal(sig.Metadata)
	if err != nil {
		return 0, fmt.Errorf("marshal metadata: %w", err)
	}
	res, err := s.db.Exec(
		`INSERT INTO signals (ts, signal_type, direction, platform, market_id, edge_estimate, strength, fired, metadata_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.CreatedAt.UTC().Format(time.RFC3339Nano), sig.Type, sig.Direction, sig.Platform, sig.MarketID,
		sig.EdgeEstimate, sig.Strength, boolToInt(sig.Fired), string(meta),
	)
	if err != nil {
		return 0, fmt.Errorf("insert signal: %w", err)
	}
	return res.LastInsertId()
}

// LogOrder persists a placement intent/record and returns its row id.
func (s *Store) LogOrder(o types.Order) (int64, error) {
	if o.Status == "" {
		o.Status = types.OrderOpen
	}
	res, err := s.db.Exec(
		`INSERT INTO orders (ts, platform, market_id, side, expected_price, size_usd, order_id, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano), o.Platform, o.MarketID, o.Side,
		o.ExpectedPrice, decimalFloat(o.SizeUSD), orderIDOrNew(o.OrderID), o.Status,
	)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}
	return res.LastInsertId()
}

// UpdateOrderStatus transitions an order's status, optionally setting the
// venue-assigned order id once known.
func (s *Store) UpdateOrderStatus(rowID int64, status types.OrderStatus, orderID string) error {
	if orderID == "" {
		_, err := s.db.Exec(`UPDATE orders SET status = ? WHERE id = ?`, status, rowID)
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		return nil
	}
	_, err := s.db.Exec(`UPDATE orders SET status = ?, order_id = ? WHERE id = ?`, status, orderID, rowID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

// LogFill records a single execution against an order row, storing
// slippage = fillPrice - expectedPrice and warning when it's material.
func (s *Store) LogFill(orderRowID int64, fillPrice, fillSize, expectedPrice float64) error {
	slippage := fillPrice - expectedPrice
	_, err := s.db.Exec(
		`INSERT INTO fills (order_row_id, ts, fill_price, fill_size, slippage) VALUES (?, ?, ?, ?, ?)`,
		orderRowID, time.Now().UTC().Format(time.RFC3339Nano), fillPrice, fillSize, slippage,
	)
	if err != nil {
		return fmt.Errorf("insert fill: %w", err)
	}
	if math.Abs(slippage) > 0.005 {
		s.logger.Warn("fill slippage exceeds threshold", "order_row_id", orderRowID, "slippage", slippage)
	}
	return nil
}

// LogPnl records a closed position's realized PnL.
func (s *Store) LogPnl(marketID string, platform types.Platform, entry, exit, size, pnl, holdingSeconds float64) error {
	_, err := s.db.Exec(
		`INSERT INTO pnl (ts, market_id, platform, entry_price, exit_price, size_usd, pnl_usd, holding_seconds)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano), marketID, platform, entry, exit, size, pnl, holdingSeconds,
	)
	if err != nil {
		return fmt.Errorf("insert pnl: %w", err)
	}
	return nil
}

// Snapshot records a point-in-time portfolio summary.
func (s *Store) Snapshot(bankroll, totalExposure float64, openPositions int, dailyPnl, totalPnl float64) error {
	_, err := s.db.Exec(
		`INSERT INTO summary_snapshots (ts, bankroll, total_exposure, open_positions, daily_pnl, total_pnl)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano), bankroll, totalExposure, openPositions, dailyPnl, totalPnl,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// GetDailyPnl sums realized pnl for the UTC calendar day containing day.
func (s *Store) GetDailyPnl(day time.Time) (float64, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)
	var total sql.NullFloat64
	err := s.db.QueryRow(
		`SELECT SUM(pnl_usd) FROM pnl WHERE ts >= ? AND ts < ?`,
		start.Format(time.RFC3339Nano), end.Format(time.RFC3339Nano),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("query daily pnl: %w", err)
	}
	return total.Float64, nil
}

// GetAvgSlippage returns the average absolute slippage across all fills.
func (s *Store) GetAvgSlippage() (float64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRow(`SELECT AVG(ABS(slippage)) FROM fills`).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("query avg slippage: %w", err)
	}
	return avg.Float64, nil
}

// GetSignalHitRate returns the fraction of fired signals (optionally
// restricted to signalType) that were followed by a profitable pnl row
// for the same market. An empty signalType includes all types.
func (s *Store) GetSignalHitRate(signalType types.SignalType) (float64, error) {
	query := `SELECT COUNT(*) FROM signals WHERE fired = 1`
	args := []any{}
	if signalType != "" {
		query += ` AND signal_type = ?`
		args = append(args, signalType)
	}
	var fired int
	if err := s.db.QueryRow(query, args...).Scan(&fired); err != nil {
		return 0, fmt.Errorf("count fired signals: %w", err)
	}
	if fired == 0 {
		return 0, nil
	}

	hitQuery := `
		SELECT COUNT(*) FROM signals sg
		WHERE sg.fired = 1
		AND EXISTS (SELECT 1 FROM pnl p WHERE p.market_id = sg.market_id AND p.pnl_usd > 0 AND p.ts >= sg.ts)`
	if signalType != "" {
		hitQuery += ` AND sg.signal_type = ?`
	}
	var hits int
	if err := s.db.QueryRow(hitQuery, args...).Scan(&hits); err != nil {
		return 0, fmt.Errorf("count hits: %w", err)
	}
	return float64(hits) / float64(fired), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func decimalFloat(d decimal.Decimal) float64 {
	v, _ := d.Float64()
	return v
}

func orderIDOrNew(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}
