package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/hazyhaar/domshift/mover"
)

// Stdout writes one JSON object per event.
type Stdout struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdout writes to os.Stdout.
func NewStdout() *Stdout { return NewWriter(os.Stdout) }

// NewWriter writes to w.
func NewWriter(w io.Writer) *Stdout {
	return &Stdout{enc: json.NewEncoder(w)}
}

func (s *Stdout) Send(_ context.Context, ev mover.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(ev)
}

func (s *Stdout) Close() error { return nil }
