package mover

import (
	"sync"
	"time"
)

// EventType names an engine notification.
type EventType string

const (
	EventInit             EventType = "init"
	EventEnter            EventType = "enter"
	EventLeave            EventType = "leave"
	EventMove             EventType = "move"
	EventRestore          EventType = "restore"
	EventSwap             EventType = "swap"
	EventSwapRestore      EventType = "swapRestore"
	EventClone            EventType = "clone"
	EventGroupMove        EventType = "groupMove"
	EventGroupRestore     EventType = "groupRestore"
	EventRuleAdded        EventType = "ruleAdded"
	EventRuleRemoved      EventType = "ruleRemoved"
	EventError            EventType = "error"
	EventPaused           EventType = "paused"
	EventResumed          EventType = "resumed"
	EventRefreshed        EventType = "refreshed"
	EventDestroyed        EventType = "destroyed"
	EventBreakpointChange EventType = "breakpointChange"
)

// Event is the payload of every notification. Fields that do not apply to a
// type are left zero.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Time      time.Time      `json:"time"`
	Rule      string         `json:"rule,omitempty"`
	Predicate string         `json:"predicate,omitempty"`
	ElementID string         `json:"elementId,omitempty"`
	Item      int            `json:"item,omitempty"`
	Group     string         `json:"group,omitempty"`
	Target    string         `json:"target,omitempty"`
	Clone     bool           `json:"clone,omitempty"`
	Matches   bool           `json:"matches,omitempty"`
	Error     string         `json:"error,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
}

type subscriber struct {
	id  uint64
	typ EventType // empty: every type
	fn  func(Event)
}

// bus delivers events to subscribers in subscription order.
type bus struct {
	mu   sync.RWMutex
	next uint64
	subs []subscriber
}

func (b *bus) add(typ EventType, fn func(Event)) func() {
	b.mu.Lock()
	b.next++
	id := b.next
	b.subs = append(b.subs, subscriber{id: id, typ: typ, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (b *bus) dispatch(events []Event) {
	if len(events) == 0 {
		return
	}
	b.mu.RLock()
	subs := append([]subscriber(nil), b.subs...)
	b.mu.RUnlock()
	for _, ev := range events {
		for _, s := range subs {
			if s.typ == "" || s.typ == ev.Type {
				s.fn(ev)
			}
		}
	}
}
