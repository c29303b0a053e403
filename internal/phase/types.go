// Package phase defines the challenge phase data model shared by the timeline
// engine, the lifecycle guard, and the persistence layer: reusable phase
// definitions, timeline templates, and the per-challenge phase instances
// materialized from them.
package phase

import (
	"slices"
	"time"
)

// Phase names with special scheduling or cancellation semantics.
const (
	NameRegistration         = "Registration"
	NameSubmission           = "Submission"
	NameCheckpointSubmission = "Checkpoint Submission"
	NameReview               = "Review"
	NameAppeals              = "Appeals"
	NameIterativeReview      = "Iterative Review"
	NamePostMortem           = "Post-Mortem"
)

// Definition is a reusable phase type from the catalog.
type Definition struct {
	ID              string `json:"id" toml:"id" yaml:"id"`
	Name            string `json:"name" toml:"name" yaml:"name"`
	Description     string `json:"description" toml:"description" yaml:"description"`
	DefaultDuration int64  `json:"defaultDuration" toml:"duration" yaml:"duration"` // seconds
}

// TemplateEntry is one phase slot of a timeline template.
type TemplateEntry struct {
	PhaseID         string `json:"phaseId" toml:"phase_id" yaml:"phase_id"`
	DefaultDuration int64  `json:"defaultDuration" toml:"duration" yaml:"duration"` // seconds
	Predecessor     string `json:"predecessor,omitempty" toml:"predecessor" yaml:"predecessor"`
}

// Template is a named, ordered blueprint of phase entries. Entry order is the
// authoring order; the engine does not rely on it being topological.
type Template struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	IsActive    bool            `json:"isActive"`
	Entries     []TemplateEntry `json:"phases"`
}

// Constraint is a named numeric limit attached to a phase instance
// (e.g. "Number of Submissions").
type Constraint struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

// State is the lifecycle state derived from an instance's open flag and
// actual dates.
type State string

// Lifecycle states.
const (
	StateUnopened State = "unopened"
	StateOpen     State = "open"
	StateClosed   State = "closed"
)

// Instance is the per-challenge materialization of a phase definition.
// Predecessor holds the phase definition id of the sibling instance whose
// schedule anchors this one; empty means the instance is a root.
type Instance struct {
	ID             string       `json:"id"`
	PhaseID        string       `json:"phaseId"`
	Name           string       `json:"name"`
	Description    string       `json:"description,omitempty"`
	Duration       int64        `json:"duration"` // seconds
	Predecessor    string       `json:"predecessor,omitempty"`
	IsOpen         bool         `json:"isOpen"`
	Constraints    []Constraint `json:"constraints"`
	ScheduledStart time.Time    `json:"scheduledStartDate"`
	ScheduledEnd   time.Time    `json:"scheduledEndDate"`
	ActualStart    *time.Time   `json:"actualStartDate"`
	ActualEnd      *time.Time   `json:"actualEndDate"`
}

// IsRoot reports whether the instance has no predecessor.
func (in Instance) IsRoot() bool { return in.Predecessor == "" }

// Started reports whether the phase has physically started.
func (in Instance) Started() bool { return in.ActualStart != nil }

// Ended reports whether the phase has physically ended.
func (in Instance) Ended() bool { return in.ActualEnd != nil }

// State derives the lifecycle state. An instance with an actual end date is
// closed even if its open flag was never cleared.
func (in Instance) State() State {
	switch {
	case in.IsOpen:
		return StateOpen
	case in.ActualEnd != nil:
		return StateClosed
	default:
		return StateUnopened
	}
}

// Clone returns a deep copy so that passes over a phase list never share
// constraint slices or date pointers with their input.
func (in Instance) Clone() Instance {
	out := in
	out.Constraints = slices.Clone(in.Constraints)
	out.ActualStart = cloneTime(in.ActualStart)
	out.ActualEnd = cloneTime(in.ActualEnd)
	return out
}

// CloneAll deep-copies a list of instances.
func CloneAll(in []Instance) []Instance {
	if in == nil {
		return nil
	}
	out := make([]Instance, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

// EndOf returns start shifted by duration seconds.
func EndOf(start time.Time, duration int64) time.Time {
	return start.Add(time.Duration(duration) * time.Second)
}

// TimePtr returns a pointer to a copy of t.
func TimePtr(t time.Time) *time.Time { return &t }

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
