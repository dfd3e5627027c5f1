package sink

import (
	"context"

	"github.com/hazyhaar/domshift/mover"
	"github.com/hazyhaar/domshift/store"
)

// EventLog appends events to the store's event_log table. Closing it does
// not close the store.
type EventLog struct {
	store *store.Store
	skip  map[mover.EventType]bool
}

// NewEventLog logs every event type except those in skip.
func NewEventLog(s *store.Store, skip ...mover.EventType) *EventLog {
	l := &EventLog{store: s, skip: make(map[mover.EventType]bool, len(skip))}
	for _, t := range skip {
		l.skip[t] = true
	}
	return l
}

func (l *EventLog) Send(ctx context.Context, ev mover.Event) error {
	if l.skip[ev.Type] {
		return nil
	}
	return l.store.AppendEvent(ctx, ev)
}

func (l *EventLog) Close() error { return nil }
