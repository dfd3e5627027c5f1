package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/domshift/dbopen"
	"github.com/hazyhaar/domshift/idgen"
	"github.com/hazyhaar/domshift/mover"
)

// AppendEvent writes ev to the event log. An event without an ID gets a
// fresh UUIDv7; replaying an already logged ID is a no-op.
func (s *Store) AppendEvent(ctx context.Context, ev mover.Event) error {
	if ev.ID == "" {
		ev.ID = idgen.New()
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("store: encode event: %w", err)
	}
	_, err = dbopen.Exec(ctx, s.DB, `
		INSERT OR IGNORE INTO event_log (id, type, rule, element_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Type), ev.Rule, ev.ElementID, string(payload), ev.Time.UnixMilli())
	if err != nil {
		return fmt.Errorf("store: append event: %w", err)
	}
	return nil
}

// EventFilter narrows ListEvents. Zero fields match everything; Limit
// defaults to 100.
type EventFilter struct {
	Type  mover.EventType
	Rule  string
	Since time.Time
	Limit int
}

// ListEvents returns logged events oldest first.
func (s *Store) ListEvents(ctx context.Context, f EventFilter) ([]mover.Event, error) {
	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.Rule != "" {
		where = append(where, "rule = ?")
		args = append(args, f.Rule)
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since.UnixMilli())
	}
	if f.Limit <= 0 {
		f.Limit = 100
	}
	q := `SELECT payload FROM event_log`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at, rowid LIMIT ?"
	args = append(args, f.Limit)

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	defer rows.Close()

	var out []mover.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var ev mover.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("store: decode event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// PruneEvents deletes events logged before t and returns how many went.
func (s *Store) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := dbopen.Exec(ctx, s.DB, `DELETE FROM event_log WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("store: prune events: %w", err)
	}
	return res.RowsAffected()
}
