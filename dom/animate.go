package dom

import "context"

// ImmediateAnimator applies mutations without any transition.
type ImmediateAnimator struct{}

// Animate runs apply and returns its error.
func (ImmediateAnimator) Animate(_ context.Context, _ Node, apply func() error) error {
	return apply()
}
