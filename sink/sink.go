// Package sink delivers engine events outside the process: JSON lines,
// webhooks, NATS subjects or the SQLite event log. Attach bridges an
// engine's subscription API to any Sink.
package sink

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hazyhaar/domshift/mover"
)

// Sink receives engine events.
type Sink interface {
	Send(ctx context.Context, ev mover.Event) error
	Close() error
}

// Source is the subscription half of *mover.Engine.
type Source interface {
	Subscribe(fn func(mover.Event)) (off func())
}

// Attachment forwards a source's events to a sink from its own goroutine,
// so a slow sink never stalls the engine. Events that do not fit in the
// buffer are dropped and counted.
type Attachment struct {
	sink   Sink
	logger *slog.Logger
	ch     chan mover.Event
	off    func()
	done   chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	failed  atomic.Int64
	sent    atomic.Int64
}

// AttachOption configures Attach.
type AttachOption func(*attachConfig)

type attachConfig struct {
	buffer int
	logger *slog.Logger
}

// WithBuffer sets the queue size. Default: 256.
func WithBuffer(n int) AttachOption { return func(c *attachConfig) { c.buffer = n } }

// WithLogger sets the logger used for delivery failures.
func WithLogger(l *slog.Logger) AttachOption { return func(c *attachConfig) { c.logger = l } }

// Attach subscribes s to src until Close.
func Attach(src Source, s Sink, opts ...AttachOption) *Attachment {
	cfg := attachConfig{buffer: 256, logger: slog.Default()}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.buffer < 1 {
		cfg.buffer = 1
	}
	a := &Attachment{
		sink:   s,
		logger: cfg.logger,
		ch:     make(chan mover.Event, cfg.buffer),
		done:   make(chan struct{}),
	}
	go a.run()
	a.off = src.Subscribe(a.enqueue)
	return a
}

func (a *Attachment) enqueue(ev mover.Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.ch <- ev:
	default:
		a.dropped.Add(1)
		a.logger.Warn("sink: queue full, event dropped", "type", ev.Type, "rule", ev.Rule)
	}
}

func (a *Attachment) run() {
	defer close(a.done)
	ctx := context.Background()
	for ev := range a.ch {
		if err := a.sink.Send(ctx, ev); err != nil {
			a.failed.Add(1)
			a.logger.Warn("sink: send event failed", "type", ev.Type, "rule", ev.Rule, "error", err)
			continue
		}
		a.sent.Add(1)
	}
}

// AttachmentStats counts deliveries.
type AttachmentStats struct {
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
}

// Stats returns the delivery counters.
func (a *Attachment) Stats() AttachmentStats {
	return AttachmentStats{Sent: a.sent.Load(), Failed: a.failed.Load(), Dropped: a.dropped.Load()}
}

// Close unsubscribes, delivers what is queued and closes the sink.
func (a *Attachment) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.ch)
	a.mu.Unlock()

	a.off()
	<-a.done
	return a.sink.Close()
}
