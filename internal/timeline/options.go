// Package timeline computes the dated chain of phase instances for a
// challenge: the initial build from a timeline template, reconciliation of an
// existing chain on update or activation, and the closing pass applied when a
// challenge is cancelled. Every function here is pure over the data it is
// given; persistence and transactions belong to the caller.
package timeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/catalog"
	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/phase"
)

// DefaultPostMortemAnchor names the phase every Post-Mortem is chained to.
const DefaultPostMortemAnchor = phase.NameRegistration

// Catalog is the read side of the phase catalog used by the engine.
// *catalog.Cache satisfies it.
type Catalog interface {
	Definitions(ctx context.Context) (map[string]phase.Definition, error)
	DefinitionByName(ctx context.Context, name string) (phase.Definition, bool, error)
	Template(ctx context.Context, id string) (*catalog.Resolved, error)
}

var _ Catalog = (*catalog.Cache)(nil)

type options struct {
	logger           *slog.Logger
	now              func() time.Time
	newID            func() string
	postMortemAnchor string
}

func defaultOptions() options {
	return options{
		logger:           slog.Default(),
		now:              time.Now,
		newID:            func() string { return uuid.NewString() },
		postMortemAnchor: DefaultPostMortemAnchor,
	}
}

// Option configures a Builder or Reconciler.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock overrides the source of "now" used for activation.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator overrides how instance and constraint ids are minted.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

// WithPostMortemAnchor sets the catalog name of the phase that Post-Mortem
// phases are chained to during reconciliation.
func WithPostMortemAnchor(name string) Option {
	return func(o *options) {
		if name != "" {
			o.postMortemAnchor = name
		}
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// withIDs copies constraints, minting ids for the ones that lack one.
func withIDs(cs []phase.Constraint, newID func() string) []phase.Constraint {
	out := make([]phase.Constraint, len(cs))
	for i, c := range cs {
		if c.ID == "" {
			c.ID = newID()
		}
		out[i] = c
	}
	return out
}
