// Package lifecycle guards direct edits to a single phase instance: the
// open/close/reopen state machine, structural validation of patches, and the
// predecessor re-linking performed when a phase is deleted.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/dag"
	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/phase"
)

// ReviewCounter reports how many unfinished reviews are attached to a phase
// instance. Unfinished means a status of null or one of PendingStatuses.
type ReviewCounter interface {
	CountPendingReviews(ctx context.Context, phaseInstanceID string) (int, error)
}

// PendingStatuses returns the review statuses that block closing a phase.
// Reviews with no status block as well.
func PendingStatuses() []string {
	return []string{"PENDING", "IN_PROGRESS", "DRAFT", "SUBMITTED"}
}

// DefinitionLookup resolves phase definitions by id.
type DefinitionLookup interface {
	Definition(ctx context.Context, id string) (phase.Definition, bool, error)
}

// Guard applies patches to phase instances.
type Guard struct {
	reviews ReviewCounter
	defs    DefinitionLookup
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// WithClock overrides the source of "now" for implicit actual dates.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// WithIDGenerator overrides how new constraint ids are minted.
func WithIDGenerator(newID func() string) Option {
	return func(g *Guard) { g.newID = newID }
}

// NewGuard creates a Guard. reviews is consulted whenever an open phase is
// closed.
func NewGuard(reviews ReviewCounter, defs DefinitionLookup, opts ...Option) *Guard {
	g := &Guard{
		reviews: reviews,
		defs:    defs,
		logger:  slog.Default(),
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ApplyPatch validates patch against instance and its siblings and returns
// the updated instance. instance itself is not modified.
//
// Closing an open phase fails with a Forbidden error while reviews are
// pending, and stamps ActualEnd with the patch value or now. Reopening a
// closed phase always clears ActualEnd. A phase left open may not carry an
// ActualEnd.
func (g *Guard) ApplyPatch(ctx context.Context, instance phase.Instance, siblings []phase.Instance, patch phase.Patch) (phase.Instance, error) {
	out := instance.Clone()

	if patch.PhaseID != nil && *patch.PhaseID != out.PhaseID {
		def, ok, err := g.defs.Definition(ctx, *patch.PhaseID)
		if err != nil {
			return phase.Instance{}, err
		}
		if !ok {
			return phase.Instance{}, phase.BadRequest(phase.ErrUnknownPhase, *patch.PhaseID)
		}
		out.PhaseID = def.ID
		out.Name = def.Name
		out.Description = def.Description
	}

	if patch.Predecessor != nil {
		pred, err := resolvePredecessor(out, siblings, *patch.Predecessor)
		if err != nil {
			return phase.Instance{}, err
		}
		out.Predecessor = pred
	}
	if patch.PhaseID != nil || patch.Predecessor != nil {
		if err := checkAcyclic(out, siblings); err != nil {
			return phase.Instance{}, err
		}
	}

	if patch.Constraints != nil {
		merged, err := g.mergeConstraints(out, patch.Constraints)
		if err != nil {
			return phase.Instance{}, err
		}
		out.Constraints = merged
	}

	if patch.ScheduledStart != nil {
		out.ScheduledStart = *patch.ScheduledStart
	}
	if patch.ScheduledEnd != nil {
		out.ScheduledEnd = *patch.ScheduledEnd
	}
	if patch.ActualStart != nil {
		out.ActualStart = phase.TimePtr(*patch.ActualStart)
	}
	if patch.ActualEnd != nil {
		out.ActualEnd = phase.TimePtr(*patch.ActualEnd)
	}

	if patch.Duration != nil {
		if *patch.Duration < 0 {
			return phase.Instance{}, phase.BadRequest(phase.ErrInvalidDuration, fmt.Sprintf("%s: %d", out.Name, *patch.Duration))
		}
		out.Duration = *patch.Duration
		if !out.ScheduledStart.IsZero() {
			out.ScheduledEnd = phase.EndOf(out.ScheduledStart, out.Duration)
		}
	}

	if patch.IsOpen != nil && *patch.IsOpen != instance.IsOpen {
		if err := g.transition(ctx, &out, instance, patch); err != nil {
			return phase.Instance{}, err
		}
	}

	if out.IsOpen && out.ActualEnd != nil {
		return phase.Instance{}, phase.BadRequest(phase.ErrOpenWithActualEnd, out.Name)
	}
	if err := checkDateOrder(out); err != nil {
		return phase.Instance{}, err
	}
	return out, nil
}

// transition applies an isOpen flip to out. prev is the instance before the
// patch.
func (g *Guard) transition(ctx context.Context, out *phase.Instance, prev phase.Instance, patch phase.Patch) error {
	if prev.IsOpen {
		n, err := g.reviews.CountPendingReviews(ctx, prev.ID)
		if err != nil {
			return fmt.Errorf("lifecycle: count pending reviews for %s: %w", prev.ID, err)
		}
		if n > 0 {
			g.logger.Info("phase close rejected",
				slog.String("phase", prev.Name),
				slog.String("id", prev.ID),
				slog.Int("pending_reviews", n))
			return phase.Forbidden(phase.ErrPendingReviews, fmt.Sprintf("%s (%d pending)", prev.Name, n))
		}
		out.IsOpen = false
		if patch.ActualEnd == nil {
			out.ActualEnd = phase.TimePtr(g.now())
		}
		return nil
	}

	out.IsOpen = true
	out.ActualEnd = nil
	if out.ActualStart == nil {
		out.ActualStart = phase.TimePtr(g.now())
	}
	return nil
}

// resolvePredecessor maps ref, a sibling instance id or phase definition id,
// to the phase definition id stored on the instance. An empty ref makes the
// instance a root.
func resolvePredecessor(in phase.Instance, siblings []phase.Instance, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	for _, s := range siblings {
		if s.ID == in.ID || s.PhaseID == in.PhaseID {
			continue
		}
		if s.ID == ref || s.PhaseID == ref {
			return s.PhaseID, nil
		}
	}
	return "", phase.BadRequest(phase.ErrPredecessorNotSibling, ref)
}

// checkAcyclic rejects a predecessor that would close a loop through the
// siblings.
func checkAcyclic(in phase.Instance, siblings []phase.Instance) error {
	list := make([]phase.Instance, 0, len(siblings)+1)
	list = append(list, in)
	for _, s := range siblings {
		if s.ID != in.ID {
			list = append(list, s)
		}
	}

	d := dag.New()
	for i, s := range list {
		if d.Node(s.PhaseID) != nil {
			continue
		}
		if err := d.AddNode(s.PhaseID, i); err != nil {
			return err
		}
	}
	for _, s := range list {
		if s.IsRoot() || s.Predecessor == s.PhaseID {
			continue
		}
		if d.Node(s.Predecessor) == nil {
			continue
		}
		err := d.AddEdge(s.PhaseID, s.Predecessor)
		if errors.Is(err, dag.ErrCycle) {
			return phase.BadRequest(phase.ErrPredecessorCycle, fmt.Sprintf("%s -> %s", s.PhaseID, s.Predecessor))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// mergeConstraints updates constraints that carry an id owned by in and
// appends those without an id.
func (g *Guard) mergeConstraints(in phase.Instance, patch []phase.Constraint) ([]phase.Constraint, error) {
	merged := append([]phase.Constraint(nil), in.Constraints...)
	index := make(map[string]int, len(merged))
	for i, c := range merged {
		index[c.ID] = i
	}
	for _, c := range patch {
		if c.ID == "" {
			c.ID = g.newID()
			merged = append(merged, c)
			continue
		}
		i, ok := index[c.ID]
		if !ok {
			return nil, phase.BadRequest(phase.ErrForeignConstraint, fmt.Sprintf("%s on %s", c.ID, in.Name))
		}
		merged[i] = c
	}
	return merged, nil
}

func checkDateOrder(in phase.Instance) error {
	if !in.ScheduledStart.IsZero() && !in.ScheduledEnd.IsZero() && in.ScheduledStart.After(in.ScheduledEnd) {
		return phase.BadRequest(phase.ErrDateOrder, fmt.Sprintf("scheduledStartDate %s is after scheduledEndDate %s",
			in.ScheduledStart.Format(time.RFC3339), in.ScheduledEnd.Format(time.RFC3339)))
	}
	if in.ActualStart != nil && in.ActualEnd != nil && in.ActualStart.After(*in.ActualEnd) {
		return phase.BadRequest(phase.ErrDateOrder, fmt.Sprintf("actualStartDate %s is after actualEndDate %s",
			in.ActualStart.Format(time.RFC3339), in.ActualEnd.Format(time.RFC3339)))
	}
	return nil
}
