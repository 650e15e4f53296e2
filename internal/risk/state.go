package risk

import (
	"encoding/json"
	"fmt"
	"os"
)

// persistedState is the coarse snapshot the supervisor writes to disk
// after every RecordOpen and every periodic snapshot, and restores via
// LoadState right after constructing the Manager, so a restarted process
// does not have to start from a zeroed bankroll.
// This is deliberately lossy: open-order state is authoritative in the
// event store, not here.
type persistedState struct {
	Bankroll      float64            `json:"bankroll"`
	OpenPositions map[string]float64 `json:"open_positions"`
	TotalExposure float64            `json:"total_exposure"`
	DailyPnl      float64            `json:"daily_pnl"`
	DailyPnlDate  string             `json:"daily_pnl_date"`
}

// SaveState atomically writes the manager's state to path: write to a
// sibling .tmp file, then rename over the target so a crash mid-write
// never leaves a partially-written file behind.
func (m *Manager) SaveState(path string) error {
	data, err := json.Marshal(persistedState{
		Bankroll:      m.bankroll,
		OpenPositions: m.openPositions,
		TotalExposure: m.totalExposure,
		DailyPnl:      m.dailyPnl,
		DailyPnlDate:  m.dailyPnlDate,
	})
	if err != nil {
		return fmt.Errorf("marshal risk state: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write risk state: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadState restores a previously-saved state from path. A missing file
// is not an error: the manager simply keeps its freshly-constructed
// zero state (a fresh bankroll with no open positions).
func (m *Manager) LoadState(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read risk state: %w", err)
	}

	var s persistedState
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("unmarshal risk state: %w", err)
	}

	m.bankroll = s.Bankroll
	m.totalExposure = s.TotalExposure
	m.dailyPnl = s.DailyPnl
	if s.DailyPnlDate != "" {
		m.dailyPnlDate = s.DailyPnlDate
	}
	if s.OpenPositions != nil {
		m.openPositions = s.OpenPositions
	}
	return nil
}
