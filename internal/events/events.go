// Package events publishes fire-and-forget notifications about phase
// timeline changes. Publishing never fails the operation that produced the
// event; sinks log their own errors.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Event kinds.
const (
	KindPhaseUpdated       = "phase_updated"
	KindPhaseDeleted       = "phase_deleted"
	KindTimelineBuilt      = "timeline_built"
	KindTimelineReconciled = "timeline_reconciled"
	KindChallengeCancelled = "challenge_cancelled"
)

// Event is one notification. Data carries the kind-specific payload, usually
// the affected phase instances.
type Event struct {
	Timestamp   time.Time `json:"ts"`
	Kind        string    `json:"kind"`
	ChallengeID string    `json:"challenge"`
	PhaseID     string    `json:"phase,omitempty"`
	Data        any       `json:"data,omitempty"`
}

// Publisher delivers events. Implementations must not block the caller on
// slow sinks for longer than a single write.
type Publisher interface {
	Publish(evt Event)
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(Event) {}

// Multi fans an event out to several publishers in order.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(evt Event) {
	for _, p := range m {
		p.Publish(evt)
	}
}

// JSONL appends events to a file, one JSON object per line. It is safe for
// concurrent use. A nil *JSONL discards events.
type JSONL struct {
	file   *os.File
	enc    *json.Encoder
	mu     sync.Mutex
	logger *slog.Logger
}

// NewJSONL opens path for appending, creating it if needed.
func NewJSONL(path string, logger *slog.Logger) (*JSONL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("events: open %s: %w", path, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JSONL{file: f, enc: json.NewEncoder(f), logger: logger}, nil
}

// Publish implements Publisher.
func (j *JSONL) Publish(evt Event) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.enc.Encode(evt); err != nil {
		j.logger.Warn("event not written",
			slog.String("kind", evt.Kind),
			slog.String("challenge", evt.ChallengeID),
			slog.Any("error", err))
	}
}

// Close closes the underlying file. Calling Close on a nil *JSONL is a no-op.
func (j *JSONL) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.file.Close(); err != nil {
		return fmt.Errorf("events: close: %w", err)
	}
	return nil
}
