// Package challenge owns challenge phase timelines end to end. Each
// operation reads the current phases, runs the timeline engine or lifecycle
// guard, and persists the result in one storage transaction. Events are
// published after the transaction commits.
package challenge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/events"
	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/lifecycle"
	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/phase"
	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/store"
	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/timeline"
)

// Catalog is the phase catalog the service reads from. *catalog.Cache
// satisfies it.
type Catalog interface {
	timeline.Catalog
	lifecycle.DefinitionLookup
}

// View is a challenge together with its phases.
type View struct {
	store.Challenge
	Phases []phase.Instance `json:"phases"`
}

// CreateRequest describes a new challenge.
type CreateRequest struct {
	ID                 string
	Name               string
	TimelineTemplateID string
	StartDate          time.Time
	Overrides          phase.Overrides
	// Activate opens the challenge immediately; otherwise it is a draft.
	Activate bool
}

// UpdateRequest is a partial challenge update. Nil fields are left alone.
type UpdateRequest struct {
	ID                 string
	Name               *string
	TimelineTemplateID *string
	StartDate          *time.Time
	Status             *string
	Overrides          phase.Overrides
}

// Service runs challenge operations.
type Service struct {
	store      *store.Store
	catalog    Catalog
	builder    *timeline.Builder
	reconciler *timeline.Reconciler
	publisher  events.Publisher
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
}

type config struct {
	logger    *slog.Logger
	publisher events.Publisher
	now       func() time.Time
	newID     func() string
	anchor    string
}

// Option configures a Service.
type Option func(*config)

// WithLogger sets the logger shared by the service and the engine.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(c *config) { c.publisher = p }
}

// WithClock overrides the source of "now".
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithIDGenerator overrides how challenge, phase and constraint ids are minted.
func WithIDGenerator(newID func() string) Option {
	return func(c *config) { c.newID = newID }
}

// WithPostMortemAnchor sets the catalog name Post-Mortem phases chain to.
func WithPostMortemAnchor(name string) Option {
	return func(c *config) { c.anchor = name }
}

// New creates a Service.
func New(st *store.Store, cat Catalog, opts ...Option) *Service {
	cfg := config{
		logger:    slog.Default(),
		publisher: events.Nop{},
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	engine := []timeline.Option{
		timeline.WithLogger(cfg.logger),
		timeline.WithClock(cfg.now),
		timeline.WithIDGenerator(cfg.newID),
		timeline.WithPostMortemAnchor(cfg.anchor),
	}
	return &Service{
		store:      st,
		catalog:    cat,
		builder:    timeline.NewBuilder(cat, engine...),
		reconciler: timeline.NewReconciler(cat, engine...),
		publisher:  cfg.publisher,
		logger:     cfg.logger,
		now:        cfg.now,
		newID:      cfg.newID,
	}
}

// Preview builds the phase chain a new challenge would get without storing
// anything.
func (s *Service) Preview(ctx context.Context, templateID string, start time.Time, overrides phase.Overrides) ([]phase.Instance, error) {
	if err := s.prepare(ctx, templateID, overrides); err != nil {
		return nil, err
	}
	return s.builder.BuildForCreation(ctx, overrides, start, templateID)
}

// Create builds and stores a new challenge.
func (s *Service) Create(ctx context.Context, req CreateRequest) (View, error) {
	if err := s.prepare(ctx, req.TimelineTemplateID, req.Overrides); err != nil {
		return View{}, err
	}
	phases, err := s.builder.BuildForCreation(ctx, req.Overrides, req.StartDate, req.TimelineTemplateID)
	if err != nil {
		return View{}, err
	}
	status := store.StatusDraft
	if req.Activate {
		status = store.StatusActive
		if phases, err = s.reconciler.Reconcile(ctx, phases, nil, req.TimelineTemplateID, true); err != nil {
			return View{}, err
		}
	}

	ch := store.Challenge{
		ID:                 req.ID,
		Name:               req.Name,
		TimelineTemplateID: req.TimelineTemplateID,
		Status:             status,
		StartDate:          req.StartDate.UTC(),
	}
	if ch.ID == "" {
		ch.ID = s.newID()
	}

	var view View
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.SaveChallenge(ctx, ch); err != nil {
			return err
		}
		if err := tx.ReplacePhases(ctx, ch.ID, phases); err != nil {
			return err
		}
		view, err = load(ctx, tx, ch.ID)
		return err
	})
	if err != nil {
		return View{}, fmt.Errorf("create challenge: %w", err)
	}

	s.logger.Info("challenge created",
		slog.String("challenge", ch.ID),
		slog.String("template", ch.TimelineTemplateID),
		slog.String("status", status),
		slog.Int("phases", len(view.Phases)))
	s.publish(events.KindTimelineBuilt, ch.ID, "", view.Phases)
	return view, nil
}

// Update applies overrides, a template switch and activation to an existing
// challenge. Switching templates discards the old phases and rebuilds the
// chain from the challenge start date. Only a draft may become Active, and a
// move to Cancelled closes phases the way Cancel does.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (View, error) {
	current, err := s.Get(ctx, req.ID)
	if err != nil {
		return View{}, err
	}
	templateID := current.TimelineTemplateID
	if req.TimelineTemplateID != nil {
		templateID = *req.TimelineTemplateID
	}
	if err := s.prepare(ctx, templateID, req.Overrides); err != nil {
		return View{}, err
	}

	var (
		view       View
		cancelling bool
		closed     []phase.Instance
	)
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		ch, err := tx.Challenge(ctx, req.ID)
		if err != nil {
			return err
		}
		existing, err := tx.Phases(ctx, ch.ID)
		if err != nil {
			return err
		}

		activating := req.Status != nil && *req.Status == store.StatusActive && ch.Status != store.StatusActive
		if activating && ch.Status != store.StatusDraft {
			return phase.BadRequest(phase.ErrStatusTransition, fmt.Sprintf("%s -> %s", ch.Status, *req.Status))
		}
		cancelling = req.Status != nil && *req.Status == store.StatusCancelled && ch.Status != store.StatusCancelled
		if req.Name != nil {
			ch.Name = *req.Name
		}
		if req.StartDate != nil {
			ch.StartDate = req.StartDate.UTC()
		}
		if req.Status != nil {
			ch.Status = *req.Status
		}

		var phases []phase.Instance
		if templateID != ch.TimelineTemplateID {
			s.logger.Info("challenge timeline template changed",
				slog.String("challenge", ch.ID),
				slog.String("from", ch.TimelineTemplateID),
				slog.String("to", templateID),
				slog.Int("discarded_phases", len(existing)))
			ch.TimelineTemplateID = templateID
			phases, err = s.reconciler.Rebuild(ctx, req.Overrides, ch.StartDate, templateID, activating)
		} else {
			phases, err = s.reconciler.Reconcile(ctx, existing, req.Overrides, templateID, activating)
		}
		if err != nil {
			return err
		}
		if cancelling {
			after := timeline.CloseOnCancellation(phases, s.now())
			closed = newlyClosed(phases, after)
			phases = after
		}

		if err := tx.SaveChallenge(ctx, ch); err != nil {
			return err
		}
		if err := tx.ReplacePhases(ctx, ch.ID, phases); err != nil {
			return err
		}
		view, err = load(ctx, tx, ch.ID)
		return err
	})
	if err != nil {
		return View{}, fmt.Errorf("update challenge %s: %w", req.ID, err)
	}

	s.publish(events.KindTimelineReconciled, view.ID, "", view.Phases)
	if cancelling {
		s.logger.Info("challenge cancelled", slog.String("challenge", view.ID), slog.Int("closed_phases", len(closed)))
		s.publish(events.KindChallengeCancelled, view.ID, "", closed)
	}
	return view, nil
}

// Cancel marks a challenge cancelled and closes its open registration and
// submission phases.
func (s *Service) Cancel(ctx context.Context, id string) (View, error) {
	var (
		view   View
		closed []phase.Instance
	)
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		ch, err := tx.Challenge(ctx, id)
		if err != nil {
			return err
		}
		existing, err := tx.Phases(ctx, id)
		if err != nil {
			return err
		}
		closed = newlyClosed(existing, timeline.CloseOnCancellation(existing, s.now()))
		for _, in := range closed {
			if err := tx.UpdatePhase(ctx, id, in); err != nil {
				return err
			}
		}
		ch.Status = store.StatusCancelled
		if err := tx.SaveChallenge(ctx, ch); err != nil {
			return err
		}
		view, err = load(ctx, tx, id)
		return err
	})
	if err != nil {
		return View{}, fmt.Errorf("cancel challenge %s: %w", id, err)
	}

	s.logger.Info("challenge cancelled", slog.String("challenge", id), slog.Int("closed_phases", len(closed)))
	s.publish(events.KindChallengeCancelled, id, "", closed)
	return view, nil
}

// Get returns a challenge and its phases.
func (s *Service) Get(ctx context.Context, id string) (View, error) {
	var view View
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		view, err = load(ctx, tx, id)
		return err
	})
	if err != nil {
		return View{}, err
	}
	return view, nil
}

// prepare checks the template and overrides, and loads the catalog entries
// the engine needs before any transaction holds the database connection.
func (s *Service) prepare(ctx context.Context, templateID string, overrides phase.Overrides) error {
	if templateID == "" {
		return phase.BadRequest(phase.ErrInvalidTemplateID)
	}
	tpl, err := s.catalog.Template(ctx, templateID)
	if err != nil {
		return err
	}
	if !tpl.Template.IsActive {
		return phase.BadRequest(phase.ErrTemplateInactive, templateID)
	}
	if _, err := s.catalog.Definitions(ctx); err != nil {
		return err
	}
	return timeline.ValidateOverrides(ctx, s.catalog, overrides)
}

func (s *Service) publish(kind, challengeID, phaseID string, data any) {
	s.publisher.Publish(events.Event{
		Timestamp:   s.now().UTC(),
		Kind:        kind,
		ChallengeID: challengeID,
		PhaseID:     phaseID,
		Data:        data,
	})
}

// newlyClosed returns the phases of after that are open in before.
func newlyClosed(before, after []phase.Instance) []phase.Instance {
	var out []phase.Instance
	for i := range after {
		if before[i].IsOpen && !after[i].IsOpen {
			out = append(out, after[i])
		}
	}
	return out
}

func load(ctx context.Context, tx *store.Tx, id string) (View, error) {
	ch, err := tx.Challenge(ctx, id)
	if err != nil {
		return View{}, err
	}
	phases, err := tx.Phases(ctx, id)
	if err != nil {
		return View{}, err
	}
	return View{Challenge: ch, Phases: phases}, nil
}
