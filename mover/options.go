package mover

import (
	"context"
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/hazyhaar/domshift/dom"
	"github.com/hazyhaar/domshift/idgen"
)

// Persistence stores the placement snapshot. Load returns nil, nil when
// nothing was saved under key.
type Persistence interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
}

// Options configures an Engine. The zero value is usable.
type Options struct {
	// Breakpoints extends the default breakpoint table for this engine.
	Breakpoints map[string]string

	// Throttle is the minimum interval between mutation-driven rescans.
	Throttle time.Duration
	// DisableMutations stops the engine from observing the tree.
	DisableMutations bool
	// Mutations overrides the mutation source; by default the tree is used
	// when it implements dom.MutationSource.
	Mutations dom.MutationSource

	// DisableAnimations bypasses Animator.
	DisableAnimations bool
	Animator          dom.Animator
	// AnimationDuration and Easing are read by animators built from
	// Options (browser.NewFlipAnimator).
	AnimationDuration time.Duration
	Easing            string

	// Visibility defers lazy items; without one they are placed at once.
	Visibility dom.VisibilitySource

	Guard        Guard
	ErrorHandler func(ErrorReport)

	Persistence Persistence
	PersistKey  string

	Clock clock.WithDelayedExecution
	// IDs generates element identity tokens.
	IDs    idgen.Generator
	Logger *slog.Logger
	// Debug asks for the engine's diagnostics. The engine logs them at
	// Debug either way; commands lower their handler level when it is set.
	Debug bool
}

func (o *Options) defaults() {
	if o.Throttle <= 0 {
		o.Throttle = 100 * time.Millisecond
	}
	if o.AnimationDuration <= 0 {
		o.AnimationDuration = 300 * time.Millisecond
	}
	if o.Easing == "" {
		o.Easing = "ease-in-out"
	}
	if o.PersistKey == "" {
		o.PersistKey = "domshift:snapshot"
	}
	if o.Clock == nil {
		o.Clock = clock.RealClock{}
	}
	if o.IDs == nil {
		o.IDs = idgen.ElementToken
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Guard == nil {
		o.Guard = NopGuard{}
	}
	if o.Animator == nil || o.DisableAnimations {
		o.Animator = dom.ImmediateAnimator{}
	}
}
