// Package recorder implements the book-update callback that persists
// deduplicated book snapshots to per-day, per-market gzip JSONL files.
package recorder

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"pmarb/internal/book"
)

const defaultMinInterval = 100 * time.Millisecond

type handle struct {
	path string
	file *os.File
	gz   *gzip.Writer
}

func (h *handle) writer() io.Writer {
	if h.gz != nil {
		return h.gz
	}
	return h.file
}

func (h *handle) close() error {
	var err error
	if h.gz != nil {
		err = h.gz.Close()
	}
	if cerr := h.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Recorder is a book-update callback target. Construct once per process
// and pass Recorder.OnUpdate to every book's AddCallback.
type Recorder struct {
	root        string
	minInterval time.Duration
	compress    bool
	logger      *slog.Logger

	mu      sync.Mutex
	handles map[string]*handle
	lastAt  map[string]time.Time
	closed  bool
}

// New creates a Recorder rooted at dir. compress selects gzip output.
func New(dir string, compress bool, logger *slog.Logger) *Recorder {
	return &Recorder{
		root:        dir,
		minInterval: defaultMinInterval,
		compress:    compress,
		logger:      logger.With("component", "recorder"),
		handles:     make(map[string]*handle),
		lastAt:      make(map[string]time.Time),
	}
}

type recordLine struct {
	TS       string         `json:"ts"`
	Platform string         `json:"platform"`
	MarketID string         `json:"market_id"`
	Bids     [][2]float64   `json:"bids"`
	Asks     [][2]float64   `json:"asks"`
}

// OnUpdate is a book.UpdateFn: it dedups by minInterval per (platform,
// market_id) and appends one JSON line per surviving update.
func (r *Recorder) OnUpdate(b *book.Book) {
	key := string(b.Platform()) + ":" + b.MarketID()
	now := time.Now().UTC()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if last, ok := r.lastAt[key]; ok && now.Sub(last) < r.minInterval {
		r.mu.Unlock()
		return
	}
	r.lastAt[key] = now
	r.mu.Unlock()

	snap := b.Snapshot()
	line := recordLine{
		TS:       now.Format(time.RFC3339Nano),
		Platform: string(snap.Platform),
		MarketID: snap.MarketID,
		Bids:     levelsToPairs(snap.Bids),
		Asks:     levelsToPairs(snap.Asks),
	}

	if err := r.appendLine(key, now, line); err != nil {
		r.logger.Warn("record write failed", "key", key, "err", err)
	}
}

func levelsToPairs(levels []book.Level) [][2]float64 {
	out := make([][2]float64, len(levels))
	for i, l := range levels {
		out[i] = [2]float64{l.Price, l.Size}
	}
	return out
}

func (r *Recorder) appendLine(key string, now time.Time, line recordLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	path := r.pathFor(key, now)
	h, ok := r.handles[key]
	if !ok || h.path != path {
		if ok {
			_ = h.close()
		}
		nh, err := r.open(path)
		if err != nil {
			delete(r.handles, key)
			return fmt.Errorf("open %s: %w", path, err)
		}
		h = nh
		r.handles[key] = h
	}

	data, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	data = append(data, '\n')

	if _, err := h.writer().Write(data); err != nil {
		_ = h.close()
		delete(r.handles, key)
		return fmt.Errorf("write: %w", err)
	}
	if h.gz != nil {
		if err := h.gz.Flush(); err != nil {
			_ = h.close()
			delete(r.handles, key)
			return fmt.Errorf("flush: %w", err)
		}
	}
	if err := h.file.Sync(); err != nil {
		_ = h.close()
		delete(r.handles, key)
		return fmt.Errorf("sync: %w", err)
	}
	return nil
}

func (r *Recorder) pathFor(key string, now time.Time) string {
	day := now.Format("2006-01-02")
	ext := ".jsonl"
	if r.compress {
		ext = ".jsonl.gz"
	}
	return filepath.Join(r.root, day, sanitize(key)+ext)
}

func (r *Recorder) open(path string) (*handle, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	h := &handle{path: path, file: f}
	if r.compress {
		h.gz = gzip.NewWriter(f)
	}
	return h, nil
}

func sanitize(key string) string {
	replacer := strings.NewReplacer("/", "_", ":", "_", " ", "_")
	return replacer.Replace(key)
}

// Close flushes and releases all open file handles. Further OnUpdate
// calls become no-ops.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true

	var firstErr error
	for key, h := range r.handles {
		if err := h.close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.handles, key)
	}
	return firstErr
}
