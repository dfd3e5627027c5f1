package sink

import (
	"context"

	"github.com/hazyhaar/domshift/mover"
)

// Callback adapts a function to Sink.
type Callback func(ctx context.Context, ev mover.Event) error

func (f Callback) Send(ctx context.Context, ev mover.Event) error { return f(ctx, ev) }

func (f Callback) Close() error { return nil }
