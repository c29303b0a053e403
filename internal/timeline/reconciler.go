package timeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/catalog"
	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/phase"
)

// Reconciler recomputes an existing challenge's phase chain.
type Reconciler struct {
	catalog Catalog
	builder *Builder
	opts    options
}

// NewReconciler creates a Reconciler reading from the given catalog.
func NewReconciler(c Catalog, opts ...Option) *Reconciler {
	return &Reconciler{
		catalog: c,
		builder: NewBuilder(c, opts...),
		opts:    buildOptions(opts),
	}
}

// Reconcile applies overrides to existing phases and re-dates the chain.
// Phases that have physically ended are never moved and phases that have
// physically started keep their start. When activating, root phases whose
// start has arrived are opened immediately.
//
// An empty existing list means the challenge switched templates; the chain is
// rebuilt from templateID anchored at the current time.
func (r *Reconciler) Reconcile(ctx context.Context, existing []phase.Instance, overrides phase.Overrides, templateID string, activating bool) ([]phase.Instance, error) {
	if len(existing) == 0 {
		return r.Rebuild(ctx, overrides, r.opts.now(), templateID, activating)
	}
	if templateID == "" {
		return nil, phase.BadRequest(phase.ErrInvalidTemplateID)
	}
	if err := validateDurations(overrides); err != nil {
		return nil, err
	}
	tpl, err := r.catalog.Template(ctx, templateID)
	if err != nil {
		return nil, err
	}

	refreshed, err := r.refresh(ctx, templateOrder(existing, tpl), tpl)
	if err != nil {
		return nil, err
	}
	order, err := chainOrder(refreshed)
	if err != nil {
		return nil, err
	}

	now := r.opts.now()
	rooted := r.reconcileRoots(refreshed, order, overrides, activating, now)
	chained := r.reconcileChain(rooted, order)

	r.opts.logger.Debug("phase timeline reconciled",
		slog.String("template", templateID),
		slog.Int("phases", len(chained)),
		slog.Bool("activating", activating))
	return chained, nil
}

// Rebuild builds a fresh chain from templateID, then applies activation.
func (r *Reconciler) Rebuild(ctx context.Context, overrides phase.Overrides, start time.Time, templateID string, activating bool) ([]phase.Instance, error) {
	built, err := r.builder.BuildForCreation(ctx, overrides, start, templateID)
	if err != nil {
		return nil, err
	}
	if !activating {
		return built, nil
	}
	return r.Reconcile(ctx, built, nil, templateID, true)
}

// refresh re-reads predecessor and description from the current template and
// catalog, and pins Post-Mortem phases to the configured anchor phase.
func (r *Reconciler) refresh(ctx context.Context, list []phase.Instance, tpl *catalog.Resolved) ([]phase.Instance, error) {
	defs, err := r.catalog.Definitions(ctx)
	if err != nil {
		return nil, err
	}

	var anchorID string
	for _, in := range list {
		if in.Name != phase.NamePostMortem {
			continue
		}
		anchor, ok, err := r.catalog.DefinitionByName(ctx, r.opts.postMortemAnchor)
		if err != nil {
			return nil, err
		}
		if ok {
			anchorID = anchor.ID
		} else {
			r.opts.logger.Warn("post-mortem anchor phase not in catalog",
				slog.String("anchor", r.opts.postMortemAnchor))
		}
		break
	}

	out := phase.CloneAll(list)
	for i := range out {
		in := &out[i]
		if e, ok := tpl.Entry(in.PhaseID); ok {
			in.Predecessor = e.Predecessor
		}
		if def, ok := defs[in.PhaseID]; ok {
			in.Description = def.Description
		}
		if in.Name == phase.NamePostMortem && anchorID != "" && anchorID != in.PhaseID {
			in.Predecessor = anchorID
		}
	}
	return out, nil
}

// reconcileRoots applies overrides and dates root phases, returning a new list.
func (r *Reconciler) reconcileRoots(list []phase.Instance, order []int, overrides phase.Overrides, activating bool, now time.Time) []phase.Instance {
	out := phase.CloneAll(list)
	var fixedStart *time.Time
	for _, i := range order {
		in := &out[i]
		ov, hasOverride := overrides.For(in.PhaseID)

		if !in.Ended() && ov.Duration != nil {
			in.Duration = *ov.Duration
		}
		if !in.Ended() && hasOverride && ov.Constraints != nil {
			in.Constraints = withIDs(ov.Constraints, r.opts.newID)
		}
		if !in.IsRoot() {
			continue
		}

		start := in.ScheduledStart
		if ov.ScheduledStart != nil {
			start = *ov.ScheduledStart
		}
		if fixedStart != nil && start.Before(*fixedStart) {
			start = *fixedStart
		}

		switch {
		case in.Ended():
			// Closed phases keep their history.
		case activating && !in.Started() && !start.After(now):
			in.IsOpen = true
			in.ScheduledStart = now
			in.ActualStart = phase.TimePtr(now)
		case !in.Started():
			in.ScheduledStart = start
		}
		if !in.Ended() {
			in.ScheduledEnd = phase.EndOf(in.ScheduledStart, in.Duration)
		}

		if fixedStart == nil {
			fixedStart = phase.TimePtr(in.ScheduledStart)
		}
	}
	return out
}

// reconcileChain re-dates non-root phases from their predecessors, returning
// a new list. Only the first Iterative Review of the run is re-anchored.
func (r *Reconciler) reconcileChain(list []phase.Instance, order []int) []phase.Instance {
	out := phase.CloneAll(list)
	first := firstByPhase(out)
	iterativeSeen := false
	for _, i := range order {
		in := &out[i]
		if in.IsRoot() {
			continue
		}
		iterative := in.Name == phase.NameIterativeReview
		firstIterative := iterative && !iterativeSeen
		iterativeSeen = iterativeSeen || iterative
		if in.Ended() {
			continue
		}

		j, ok := first[in.Predecessor]
		switch {
		case !ok || j == i:
			r.opts.logger.Warn("phase predecessor not found among siblings",
				slog.String("phase", in.Name),
				slog.String("predecessor", in.Predecessor))
		case iterative:
			if firstIterative && !in.Started() {
				in.ScheduledStart = out[j].ScheduledStart
			}
		case !in.Started():
			in.ScheduledStart = out[j].ScheduledEnd
		}
		in.ScheduledEnd = phase.EndOf(in.ScheduledStart, in.Duration)
	}
	return out
}
