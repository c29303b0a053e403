package timeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/catalog"
	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/phase"
)

const (
	day  = int64(86400)
	week = 7 * day
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(d time.Duration) time.Time { return t0.Add(d) }

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

type staticSource struct {
	defs      []phase.Definition
	templates map[string]phase.Template
}

func (s staticSource) ListDefinitions(context.Context) ([]phase.Definition, error) {
	return s.defs, nil
}

func (s staticSource) Template(_ context.Context, id string) (phase.Template, error) {
	t, ok := s.templates[id]
	if !ok {
		return phase.Template{}, phase.BadRequest(phase.ErrInvalidTemplateID, id)
	}
	return t, nil
}

func testCatalog() *catalog.Cache {
	src := staticSource{
		defs: []phase.Definition{
			{ID: "reg", Name: phase.NameRegistration, Description: "register", DefaultDuration: day},
			{ID: "sub", Name: phase.NameSubmission, Description: "submit", DefaultDuration: week},
			{ID: "rev", Name: phase.NameReview, Description: "review", DefaultDuration: 2 * day},
			{ID: "app", Name: phase.NameAppeals, Description: "appeals", DefaultDuration: day},
			{ID: "ckpt", Name: phase.NameCheckpointSubmission, DefaultDuration: day},
			{ID: "iter", Name: phase.NameIterativeReview, DefaultDuration: day},
			{ID: "pm", Name: phase.NamePostMortem, DefaultDuration: day},
		},
		templates: map[string]phase.Template{
			"basic": {ID: "basic", IsActive: true, Entries: []phase.TemplateEntry{
				{PhaseID: "reg", DefaultDuration: day},
				{PhaseID: "sub", DefaultDuration: week, Predecessor: "reg"},
			}},
			"std": {ID: "std", IsActive: true, Entries: []phase.TemplateEntry{
				{PhaseID: "reg", DefaultDuration: day},
				{PhaseID: "sub", DefaultDuration: week, Predecessor: "reg"},
				{PhaseID: "rev", DefaultDuration: 2 * day, Predecessor: "sub"},
				{PhaseID: "app", DefaultDuration: day, Predecessor: "rev"},
			}},
			"tworoots": {ID: "tworoots", IsActive: true, Entries: []phase.TemplateEntry{
				{PhaseID: "reg", DefaultDuration: day},
				{PhaseID: "ckpt", DefaultDuration: day},
			}},
			"iterative": {ID: "iterative", IsActive: true, Entries: []phase.TemplateEntry{
				{PhaseID: "reg", DefaultDuration: day},
				{PhaseID: "sub", DefaultDuration: week, Predecessor: "reg"},
				{PhaseID: "iter", DefaultDuration: day, Predecessor: "sub"},
			}},
			"postmortem": {ID: "postmortem", IsActive: true, Entries: []phase.TemplateEntry{
				{PhaseID: "reg", DefaultDuration: day},
				{PhaseID: "sub", DefaultDuration: week, Predecessor: "reg"},
				{PhaseID: "pm", DefaultDuration: day},
			}},
			"reversed": {ID: "reversed", IsActive: true, Entries: []phase.TemplateEntry{
				{PhaseID: "app", DefaultDuration: day, Predecessor: "rev"},
				{PhaseID: "rev", DefaultDuration: 2 * day, Predecessor: "sub"},
				{PhaseID: "sub", DefaultDuration: week, Predecessor: "reg"},
				{PhaseID: "reg", DefaultDuration: day},
			}},
			"cycle": {ID: "cycle", IsActive: true, Entries: []phase.TemplateEntry{
				{PhaseID: "rev", DefaultDuration: day, Predecessor: "app"},
				{PhaseID: "app", DefaultDuration: day, Predecessor: "rev"},
			}},
			"dangling": {ID: "dangling", IsActive: true, Entries: []phase.TemplateEntry{
				{PhaseID: "sub", DefaultDuration: week, Predecessor: "reg"},
			}},
			"unknown": {ID: "unknown", IsActive: true, Entries: []phase.TemplateEntry{
				{PhaseID: "ghost", DefaultDuration: day},
			}},
		},
	}
	return catalog.New(src, src)
}

func seqIDs() Option {
	n := 0
	return WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	})
}

func fixedClock(t time.Time) Option {
	return WithClock(func() time.Time { return t })
}

func byName(t *testing.T, list []phase.Instance, name string) phase.Instance {
	t.Helper()
	for _, in := range list {
		if in.Name == name {
			return in
		}
	}
	t.Fatalf("no phase named %q in %d instances", name, len(list))
	return phase.Instance{}
}

func ptr[T any](v T) *T { return &v }

// assertChainConsistent checks chain consistency and duration arithmetic
// for every phase that has not physically ended.
func assertChainConsistent(t *testing.T, list []phase.Instance) {
	t.Helper()
	first := firstByPhase(list)
	for _, in := range list {
		if in.Ended() {
			continue
		}
		assert.Equal(t, phase.EndOf(in.ScheduledStart, in.Duration), in.ScheduledEnd, "%s end", in.Name)
		if in.IsRoot() || in.Started() {
			continue
		}
		pred := list[first[in.Predecessor]]
		if in.Name == phase.NameIterativeReview {
			assert.Equal(t, pred.ScheduledStart, in.ScheduledStart, "%s starts with %s", in.Name, pred.Name)
		} else {
			assert.Equal(t, pred.ScheduledEnd, in.ScheduledStart, "%s follows %s", in.Name, pred.Name)
		}
	}
}
