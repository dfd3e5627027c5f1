package mover

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotEntry is one persisted placement. It says what was moved, not
// how to put it back: restoration always uses the live ledger.
type SnapshotEntry struct {
	ElementID string    `json:"elementId"`
	Predicate string    `json:"predicate"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *Engine) persist(ctx context.Context) {
	if e.opts.Persistence == nil {
		return
	}
	snap := e.ledger.Snapshot()
	entries := make([]SnapshotEntry, len(snap))
	for i, r := range snap {
		entries[i] = SnapshotEntry{ElementID: r.ElementID, Predicate: r.Predicate, Timestamp: r.PlacedAt}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		e.report("encode snapshot failed", err, map[string]any{"key": e.opts.PersistKey})
		return
	}
	if err := e.opts.Persistence.Save(ctx, e.opts.PersistKey, data); err != nil {
		e.report("save snapshot failed", err, map[string]any{"key": e.opts.PersistKey})
	}
}

// LoadSnapshot reads back the last persisted snapshot; nil when none.
func (e *Engine) LoadSnapshot(ctx context.Context) ([]SnapshotEntry, error) {
	if e.opts.Persistence == nil {
		return nil, nil
	}
	data, err := e.opts.Persistence.Load(ctx, e.opts.PersistKey)
	if err != nil {
		return nil, fmt.Errorf("mover: load snapshot: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	var entries []SnapshotEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("mover: decode snapshot: %w", err)
	}
	return entries, nil
}
