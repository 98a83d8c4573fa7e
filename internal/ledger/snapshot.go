package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"marketsim/internal/schema"
)

// Snapshot captures final portfolio state for replay verification.
type Snapshot struct {
	Timestamp   int64           `json:"timestamp"`
	LastSeq     uint64          `json:"lastSeq"`
	SettledCash schema.Cash     `json:"settledCash"`
	PendingCash schema.Cash     `json:"pendingCash"`
	Positions   []PositionEntry `json:"positions"`
}

// PositionEntry is a single instrument position entry.
type PositionEntry struct {
	InstrumentID schema.InstrumentID `json:"instrumentId"`
	Qty          schema.Quantity     `json:"qty"`
	AvgEntry     schema.Price        `json:"avgEntry"`
	Realized     schema.Cash         `json:"realized"`
}

// Snapshot builds a snapshot of the current ledger state.
func (l *Ledger) Snapshot(ts int64, lastSeq uint64) Snapshot {
	positions := l.book.all()
	entries := make([]PositionEntry, 0, len(positions))
	for _, p := range positions {
		entries = append(entries, PositionEntry{
			InstrumentID: p.InstrumentID,
			Qty:          p.Qty,
			AvgEntry:     p.AvgEntry(),
			Realized:     p.Realized,
		})
	}
	return Snapshot{
		Timestamp:   ts,
		LastSeq:     lastSeq,
		SettledCash: l.account.Settled(),
		PendingCash: l.account.Pending(),
		Positions:   entries,
	}
}

// WriteSnapshot writes a snapshot to disk as JSON.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// CompareSnapshots checks if two snapshots carry the same portfolio.
func CompareSnapshots(expected, actual Snapshot) error {
	if expected.SettledCash != actual.SettledCash {
		return fmt.Errorf("snapshot settled mismatch: expected=%s actual=%s", expected.SettledCash, actual.SettledCash)
	}
	if expected.PendingCash != actual.PendingCash {
		return fmt.Errorf("snapshot pending mismatch: expected=%s actual=%s", expected.PendingCash, actual.PendingCash)
	}
	if len(expected.Positions) != len(actual.Positions) {
		return fmt.Errorf("snapshot length mismatch: expected=%d actual=%d", len(expected.Positions), len(actual.Positions))
	}
	expectedMap := make(map[schema.InstrumentID]PositionEntry, len(expected.Positions))
	for _, entry := range expected.Positions {
		expectedMap[entry.InstrumentID] = entry
	}
	for _, entry := range actual.Positions {
		want, ok := expectedMap[entry.InstrumentID]
		if !ok {
			return fmt.Errorf("snapshot missing instrument: %d", entry.InstrumentID)
		}
		if want != entry {
			return fmt.Errorf("snapshot position mismatch: instrument=%d expected=%+v actual=%+v", entry.InstrumentID, want, entry)
		}
	}
	return nil
}
