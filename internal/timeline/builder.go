package timeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/phase"
)

// Builder materializes the initial phase chain of a new challenge.
type Builder struct {
	catalog Catalog
	opts    options
}

// NewBuilder creates a Builder reading from the given catalog.
func NewBuilder(c Catalog, opts ...Option) *Builder {
	return &Builder{catalog: c, opts: buildOptions(opts)}
}

// BuildForCreation returns the dated phase instances for a challenge that
// starts at challengeStart, following the template's predecessor graph.
//
// Root phases start at their override's scheduled start, or at
// challengeStart, but never before the start of the first root. Chained
// phases start when their predecessor ends, except Iterative Review, which
// runs in parallel with its predecessor.
func (b *Builder) BuildForCreation(ctx context.Context, overrides phase.Overrides, challengeStart time.Time, templateID string) ([]phase.Instance, error) {
	if templateID == "" {
		return nil, phase.BadRequest(phase.ErrInvalidTemplateID)
	}
	if err := validateDurations(overrides); err != nil {
		return nil, err
	}
	tpl, err := b.catalog.Template(ctx, templateID)
	if err != nil {
		return nil, err
	}
	defs, err := b.catalog.Definitions(ctx)
	if err != nil {
		return nil, err
	}

	entries := tpl.Entries()
	base := make([]phase.Instance, 0, len(entries))
	for _, e := range entries {
		def, ok := defs[e.PhaseID]
		if !ok {
			return nil, phase.BadRequest(phase.ErrUnknownPhase, fmt.Sprintf("template %s references %s", templateID, e.PhaseID))
		}
		if e.Predecessor != "" {
			if _, ok := tpl.Entry(e.Predecessor); !ok {
				return nil, phase.BadRequest(phase.ErrUnknownPhase,
					fmt.Sprintf("predecessor %s of %s is not part of template %s", e.Predecessor, def.Name, templateID))
			}
		}
		in := phase.Instance{
			ID:          b.opts.newID(),
			PhaseID:     e.PhaseID,
			Name:        def.Name,
			Description: def.Description,
			Duration:    e.DefaultDuration,
			Predecessor: e.Predecessor,
			Constraints: []phase.Constraint{},
		}
		if ov, ok := overrides.For(e.PhaseID); ok {
			if ov.Duration != nil {
				in.Duration = *ov.Duration
			}
			if ov.Constraints != nil {
				in.Constraints = withIDs(ov.Constraints, b.opts.newID)
			}
		}
		base = append(base, in)
	}

	order, err := chainOrder(base)
	if err != nil {
		return nil, err
	}
	rooted := scheduleRoots(base, order, overrides, challengeStart)
	chained := chainFromPredecessors(rooted, order)

	b.opts.logger.Debug("phase timeline built",
		slog.String("template", templateID),
		slog.Int("phases", len(chained)),
		slog.Time("start", challengeStart))
	return chained, nil
}

// scheduleRoots dates every root phase and returns a new list.
func scheduleRoots(list []phase.Instance, order []int, overrides phase.Overrides, challengeStart time.Time) []phase.Instance {
	out := phase.CloneAll(list)
	var fixedStart *time.Time
	for _, i := range order {
		in := &out[i]
		if !in.IsRoot() {
			continue
		}
		start := challengeStart
		if ov, ok := overrides.For(in.PhaseID); ok && ov.ScheduledStart != nil {
			start = *ov.ScheduledStart
		}
		if fixedStart == nil {
			fixedStart = phase.TimePtr(start)
		} else if start.Before(*fixedStart) {
			start = *fixedStart
		}
		in.ScheduledStart = start
		in.ScheduledEnd = phase.EndOf(start, in.Duration)
	}
	return out
}

// chainFromPredecessors dates every non-root phase from its predecessor and
// returns a new list. order must place predecessors first.
func chainFromPredecessors(list []phase.Instance, order []int) []phase.Instance {
	out := phase.CloneAll(list)
	first := firstByPhase(out)
	for _, i := range order {
		in := &out[i]
		if in.IsRoot() {
			continue
		}
		j, ok := first[in.Predecessor]
		if !ok || j == i {
			continue
		}
		pred := out[j]
		if in.Name == phase.NameIterativeReview {
			in.ScheduledStart = pred.ScheduledStart
		} else {
			in.ScheduledStart = pred.ScheduledEnd
		}
		in.ScheduledEnd = phase.EndOf(in.ScheduledStart, in.Duration)
	}
	return out
}

func validateDurations(overrides phase.Overrides) error {
	for _, ov := range overrides {
		if ov.Duration != nil && *ov.Duration < 0 {
			return phase.BadRequest(phase.ErrInvalidDuration, fmt.Sprintf("%s: %d", ov.PhaseID, *ov.Duration))
		}
	}
	return nil
}
