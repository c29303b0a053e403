package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is prepended to the event kind to form the subject.
const DefaultSubjectPrefix = "phaseline.events"

// Conn is the subset of *nats.Conn used for publishing.
type Conn interface {
	Publish(subject string, data []byte) error
}

// NATS publishes events on core NATS subjects of the form <prefix>.<kind>.
type NATS struct {
	conn   Conn
	prefix string
	logger *slog.Logger
	close  func()
}

// DialNATS connects to url and returns a NATS publisher. The connection
// reconnects in the background; publishes during an outage are buffered by
// the client.
func DialNATS(url, prefix string, logger *slog.Logger) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("phaseline-events"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("events: connect to NATS at %s: %w", url, err)
	}
	p := NewNATS(nc, prefix, logger)
	p.close = func() {
		_ = nc.Drain()
	}
	return p, nil
}

// NewNATS wraps an existing connection.
func NewNATS(conn Conn, prefix string, logger *slog.Logger) *NATS {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATS{conn: conn, prefix: prefix, logger: logger}
}

// Subject returns the subject an event of the given kind is published on.
func (n *NATS) Subject(kind string) string {
	return n.prefix + "." + kind
}

// Publish implements Publisher.
func (n *NATS) Publish(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		n.logger.Warn("event not encoded", slog.String("kind", evt.Kind), slog.Any("error", err))
		return
	}
	if err := n.conn.Publish(n.Subject(evt.Kind), data); err != nil {
		n.logger.Warn("event not published",
			slog.String("subject", n.Subject(evt.Kind)),
			slog.String("challenge", evt.ChallengeID),
			slog.Any("error", err))
	}
}

// Close drains the connection opened by DialNATS.
func (n *NATS) Close() {
	if n.close != nil {
		n.close()
	}
}
