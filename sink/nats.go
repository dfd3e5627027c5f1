package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/hazyhaar/domshift/mover"
)

// DefaultSubjectPrefix is used when NATSConfig.Prefix is empty.
const DefaultSubjectPrefix = "domshift.events"

// NATSConfig configures the NATS connection.
type NATSConfig struct {
	// URL is the NATS server URL.
	URL string
	// Prefix is prepended to the event type: "<prefix>.<type>".
	Prefix         string
	ConnectTimeout time.Duration
}

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes events on "<prefix>.<event type>".
type NATS struct {
	pub    publisher
	prefix string
	close  func()
}

// NewNATS connects to the server. The connection keeps retrying in the
// background, so an unreachable server is not an error here.
func NewNATS(cfg NATSConfig) (*NATS, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("domshift"),
		nats.Timeout(cfg.ConnectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("sink: connect to NATS: %w", err)
	}
	n := NewNATSConn(conn, cfg.Prefix)
	n.close = func() {
		_ = conn.Drain()
		conn.Close()
	}
	return n, nil
}

// NewNATSConn publishes over an existing connection, which the caller
// keeps ownership of.
func NewNATSConn(conn *nats.Conn, prefix string) *NATS {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATS{pub: conn, prefix: prefix, close: func() {}}
}

// Subject returns the subject ev is published on.
func (n *NATS) Subject(ev mover.Event) string {
	return n.prefix + "." + string(ev.Type)
}

func (n *NATS) Send(_ context.Context, ev mover.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("sink: nats marshal: %w", err)
	}
	if err := n.pub.Publish(n.Subject(ev), data); err != nil {
		return fmt.Errorf("sink: nats publish: %w", err)
	}
	return nil
}

func (n *NATS) Close() error {
	n.close()
	return nil
}
