// Package catalog resolves phase definitions and timeline templates. The
// Cache is populated lazily from its sources and is never refreshed on its
// own: whoever writes definitions or templates must call Invalidate.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/phase"
)

// DefinitionSource lists every phase definition.
type DefinitionSource interface {
	ListDefinitions(ctx context.Context) ([]phase.Definition, error)
}

// TemplateSource fetches one timeline template. Unknown ids must be reported
// with an error wrapping phase.ErrInvalidTemplateID.
type TemplateSource interface {
	Template(ctx context.Context, id string) (phase.Template, error)
}

// Resolved is a template indexed for the timeline engine.
type Resolved struct {
	Template phase.Template
	byPhase  map[string]phase.TemplateEntry
	rank     map[string]int
}

func resolve(t phase.Template) *Resolved {
	r := &Resolved{
		Template: t,
		byPhase:  make(map[string]phase.TemplateEntry, len(t.Entries)),
		rank:     make(map[string]int, len(t.Entries)),
	}
	for i, e := range t.Entries {
		if _, dup := r.byPhase[e.PhaseID]; dup {
			continue
		}
		r.byPhase[e.PhaseID] = e
		r.rank[e.PhaseID] = i
	}
	return r
}

// Entries returns the template entries in authoring order.
func (r *Resolved) Entries() []phase.TemplateEntry { return r.Template.Entries }

// Entry returns the first entry for phaseID.
func (r *Resolved) Entry(phaseID string) (phase.TemplateEntry, bool) {
	e, ok := r.byPhase[phaseID]
	return e, ok
}

// Rank returns the authoring position of phaseID within the template.
func (r *Resolved) Rank(phaseID string) (int, bool) {
	i, ok := r.rank[phaseID]
	return i, ok
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for population and invalidation events.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// Cache memoizes definitions and resolved templates. It is safe for
// concurrent use; concurrent first loads share a single source call.
type Cache struct {
	defs      DefinitionSource
	templates TemplateSource
	logger    *slog.Logger
	group     singleflight.Group

	mu          sync.RWMutex
	generation  uint64
	definitions map[string]phase.Definition
	resolved    map[string]*Resolved
}

// New creates an empty cache over the given sources.
func New(defs DefinitionSource, templates TemplateSource, opts ...Option) *Cache {
	c := &Cache{
		defs:      defs,
		templates: templates,
		logger:    slog.Default(),
		resolved:  make(map[string]*Resolved),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Definitions returns all phase definitions keyed by id. The returned map is
// a copy and may be modified by the caller.
func (c *Cache) Definitions(ctx context.Context) (map[string]phase.Definition, error) {
	defs, err := c.loadDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	return maps.Clone(defs), nil
}

// Definition returns the definition with the given id.
func (c *Cache) Definition(ctx context.Context, id string) (phase.Definition, bool, error) {
	defs, err := c.loadDefinitions(ctx)
	if err != nil {
		return phase.Definition{}, false, err
	}
	d, ok := defs[id]
	return d, ok, nil
}

// DefinitionByName returns the definition with the given display name.
func (c *Cache) DefinitionByName(ctx context.Context, name string) (phase.Definition, bool, error) {
	defs, err := c.loadDefinitions(ctx)
	if err != nil {
		return phase.Definition{}, false, err
	}
	for _, d := range defs {
		if d.Name == name {
			return d, true, nil
		}
	}
	return phase.Definition{}, false, nil
}

// Template returns the resolved template with the given id. Whether the
// template is active is left to the caller.
func (c *Cache) Template(ctx context.Context, id string) (*Resolved, error) {
	if id == "" {
		return nil, phase.BadRequest(phase.ErrInvalidTemplateID)
	}
	c.mu.RLock()
	r, ok := c.resolved[id]
	gen := c.generation
	c.mu.RUnlock()
	if ok {
		return r, nil
	}

	v, err, _ := c.group.Do("template:"+id, func() (any, error) {
		t, err := c.templates.Template(ctx, id)
		if err != nil {
			return nil, err
		}
		return resolve(t), nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: template %s: %w", id, err)
	}
	r = v.(*Resolved)

	c.mu.Lock()
	// Drop results that raced with an Invalidate.
	if c.generation == gen {
		c.resolved[id] = r
	}
	c.mu.Unlock()
	c.logger.Debug("timeline template cached", slog.String("template", id), slog.Int("phases", len(r.Template.Entries)))
	return r, nil
}

// Invalidate flushes every cached definition and template.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.generation++
	c.definitions = nil
	c.resolved = make(map[string]*Resolved)
	c.mu.Unlock()
	c.logger.Info("phase catalog cache invalidated")
}

// InvalidateTemplate flushes one template, leaving definitions cached. Loads
// already in flight are not cached.
func (c *Cache) InvalidateTemplate(id string) {
	c.mu.Lock()
	c.generation++
	delete(c.resolved, id)
	c.mu.Unlock()
	c.logger.Debug("timeline template invalidated", slog.String("template", id))
}

func (c *Cache) loadDefinitions(ctx context.Context) (map[string]phase.Definition, error) {
	c.mu.RLock()
	defs := c.definitions
	gen := c.generation
	c.mu.RUnlock()
	if defs != nil {
		return defs, nil
	}

	v, err, _ := c.group.Do("definitions", func() (any, error) {
		list, err := c.defs.ListDefinitions(ctx)
		if err != nil {
			return nil, err
		}
		m := make(map[string]phase.Definition, len(list))
		for _, d := range list {
			m[d.ID] = d
		}
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: list definitions: %w", err)
	}
	defs = v.(map[string]phase.Definition)

	c.mu.Lock()
	if c.generation == gen {
		c.definitions = defs
	}
	c.mu.Unlock()
	c.logger.Debug("phase definitions cached", slog.Int("count", len(defs)))
	return defs, nil
}
