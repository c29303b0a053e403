package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/lifecycle"
	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/phase"
)

// Challenge statuses.
const (
	StatusDraft     = "Draft"
	StatusActive    = "Active"
	StatusCancelled = "Cancelled"
	StatusCompleted = "Completed"
)

// Challenge is the persisted challenge header. Its phases are stored
// separately.
type Challenge struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	TimelineTemplateID string    `json:"timelineTemplateId"`
	Status             string    `json:"status"`
	StartDate          time.Time `json:"startDate"`
	CreatedAt          time.Time `json:"created"`
	UpdatedAt          time.Time `json:"updated"`
}

// Tx is a storage transaction. It is only valid inside Store.WithTx.
type Tx struct {
	tx *sql.Tx
}

var _ lifecycle.ReviewCounter = (*Tx)(nil)

// Challenge returns the challenge with the given id, or a NotFound error.
func (t *Tx) Challenge(ctx context.Context, id string) (Challenge, error) {
	var (
		c                       Challenge
		start, created, updated string
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, name, timeline_template_id, status, start_date, created_at, updated_at
		FROM challenges WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.TimelineTemplateID, &c.Status, &start, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Challenge{}, phase.NotFound(phase.ErrChallengeNotFound, id)
	}
	if err != nil {
		return Challenge{}, fmt.Errorf("store: get challenge %q: %w", id, err)
	}
	for _, f := range []struct {
		dst *time.Time
		src string
	}{{&c.StartDate, start}, {&c.CreatedAt, created}, {&c.UpdatedAt, updated}} {
		if *f.dst, err = parseTimestamp(f.src); err != nil {
			return Challenge{}, fmt.Errorf("store: challenge %q: %w", id, err)
		}
	}
	return c, nil
}

// SaveChallenge inserts or updates a challenge header.
func (t *Tx) SaveChallenge(ctx context.Context, c Challenge) error {
	const q = `
		INSERT INTO challenges (id, name, timeline_template_id, status, start_date, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			timeline_template_id = excluded.timeline_template_id,
			status = excluded.status,
			start_date = excluded.start_date,
			updated_at = CURRENT_TIMESTAMP`
	if _, err := t.tx.ExecContext(ctx, q, c.ID, c.Name, c.TimelineTemplateID, c.Status, formatTimestamp(c.StartDate)); err != nil {
		return fmt.Errorf("store: save challenge %q: %w", c.ID, err)
	}
	return nil
}

// Phases returns a challenge's phase instances ordered by scheduled start.
func (t *Tx) Phases(ctx context.Context, challengeID string) ([]phase.Instance, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, phase_id, name, description, predecessor, is_open, duration,
		       scheduled_start, scheduled_end, actual_start, actual_end
		FROM challenge_phases WHERE challenge_id = ?
		ORDER BY scheduled_start, position`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("store: phases of %q: %w", challengeID, err)
	}

	var out []phase.Instance
	for rows.Next() {
		var (
			in                     phase.Instance
			schedStart, schedEnd   string
			actualStart, actualEnd sql.NullString
		)
		if err := rows.Scan(&in.ID, &in.PhaseID, &in.Name, &in.Description, &in.Predecessor, &in.IsOpen,
			&in.Duration, &schedStart, &schedEnd, &actualStart, &actualEnd); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scan phase: %w", err)
		}
		if in.ScheduledStart, err = parseTimestamp(schedStart); err == nil {
			in.ScheduledEnd, err = parseTimestamp(schedEnd)
		}
		if err == nil {
			in.ActualStart, err = parseNullTimestamp(actualStart)
		}
		if err == nil {
			in.ActualEnd, err = parseNullTimestamp(actualEnd)
		}
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: phase %q: %w", in.ID, err)
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("store: iterate phases: %w", err)
	}
	rows.Close()

	for i := range out {
		cs, err := t.constraints(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Constraints = cs
	}
	return out, nil
}

// Phase returns one phase instance of a challenge, or a NotFound error.
func (t *Tx) Phase(ctx context.Context, challengeID, id string) (phase.Instance, []phase.Instance, error) {
	all, err := t.Phases(ctx, challengeID)
	if err != nil {
		return phase.Instance{}, nil, err
	}
	for _, in := range all {
		if in.ID == id {
			return in, all, nil
		}
	}
	return phase.Instance{}, nil, phase.NotFound(phase.ErrPhaseNotFound, id)
}

// ReplacePhases deletes every phase of the challenge and stores list in its
// place, keeping list order as the tie-breaker for equal start dates.
func (t *Tx) ReplacePhases(ctx context.Context, challengeID string, list []phase.Instance) error {
	if _, err := t.tx.ExecContext(ctx, `
		DELETE FROM challenge_phase_constraints
		WHERE phase_id IN (SELECT id FROM challenge_phases WHERE challenge_id = ?)`, challengeID); err != nil {
		return fmt.Errorf("store: clear constraints of %q: %w", challengeID, err)
	}
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM challenge_phases WHERE challenge_id = ?", challengeID); err != nil {
		return fmt.Errorf("store: clear phases of %q: %w", challengeID, err)
	}
	for i, in := range list {
		if err := t.insertPhase(ctx, challengeID, i, in); err != nil {
			return err
		}
	}
	return nil
}

// UpdatePhase overwrites one phase instance and its constraints.
func (t *Tx) UpdatePhase(ctx context.Context, challengeID string, in phase.Instance) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE challenge_phases SET
			phase_id = ?, name = ?, description = ?, predecessor = ?, is_open = ?, duration = ?,
			scheduled_start = ?, scheduled_end = ?, actual_start = ?, actual_end = ?
		WHERE id = ? AND challenge_id = ?`,
		in.PhaseID, in.Name, in.Description, in.Predecessor, in.IsOpen, in.Duration,
		formatTimestamp(in.ScheduledStart), formatTimestamp(in.ScheduledEnd),
		nullTimestamp(in.ActualStart), nullTimestamp(in.ActualEnd),
		in.ID, challengeID)
	if err != nil {
		return fmt.Errorf("store: update phase %q: %w", in.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update phase %q: %w", in.ID, err)
	}
	if n == 0 {
		return phase.NotFound(phase.ErrPhaseNotFound, in.ID)
	}
	return t.replaceConstraints(ctx, in.ID, in.Constraints)
}

// DeletePhase removes a phase instance and its constraints.
func (t *Tx) DeletePhase(ctx context.Context, challengeID, id string) error {
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM challenge_phase_constraints WHERE phase_id = ?", id); err != nil {
		return fmt.Errorf("store: delete constraints of %q: %w", id, err)
	}
	res, err := t.tx.ExecContext(ctx, "DELETE FROM challenge_phases WHERE id = ? AND challenge_id = ?", id, challengeID)
	if err != nil {
		return fmt.Errorf("store: delete phase %q: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return phase.NotFound(phase.ErrPhaseNotFound, id)
	}
	return nil
}

// CountPendingReviews counts reviews of the phase instance whose status is
// NULL or one of lifecycle.PendingStatuses.
func (t *Tx) CountPendingReviews(ctx context.Context, phaseInstanceID string) (int, error) {
	statuses := lifecycle.PendingStatuses()
	args := make([]any, 0, len(statuses)+1)
	args = append(args, phaseInstanceID)
	for _, s := range statuses {
		args = append(args, s)
	}
	q := `SELECT COUNT(*) FROM reviews WHERE phase_instance_id = ? AND (status IS NULL OR status IN (?` +
		strings.Repeat(", ?", len(statuses)-1) + `))`

	var n int
	if err := t.tx.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count pending reviews of %q: %w", phaseInstanceID, err)
	}
	return n, nil
}

func (t *Tx) insertPhase(ctx context.Context, challengeID string, position int, in phase.Instance) error {
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO challenge_phases (id, challenge_id, position, phase_id, name, description, predecessor,
			is_open, duration, scheduled_start, scheduled_end, actual_start, actual_end)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, challengeID, position, in.PhaseID, in.Name, in.Description, in.Predecessor,
		in.IsOpen, in.Duration, formatTimestamp(in.ScheduledStart), formatTimestamp(in.ScheduledEnd),
		nullTimestamp(in.ActualStart), nullTimestamp(in.ActualEnd)); err != nil {
		return fmt.Errorf("store: insert phase %q: %w", in.ID, err)
	}
	return t.replaceConstraints(ctx, in.ID, in.Constraints)
}

func (t *Tx) constraints(ctx context.Context, phaseInstanceID string) ([]phase.Constraint, error) {
	rows, err := t.tx.QueryContext(ctx,
		"SELECT id, name, value FROM challenge_phase_constraints WHERE phase_id = ? ORDER BY position", phaseInstanceID)
	if err != nil {
		return nil, fmt.Errorf("store: constraints of %q: %w", phaseInstanceID, err)
	}
	defer rows.Close()

	out := []phase.Constraint{}
	for rows.Next() {
		var c phase.Constraint
		if err := rows.Scan(&c.ID, &c.Name, &c.Value); err != nil {
			return nil, fmt.Errorf("store: scan constraint: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate constraints: %w", err)
	}
	return out, nil
}

func (t *Tx) replaceConstraints(ctx context.Context, phaseInstanceID string, cs []phase.Constraint) error {
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM challenge_phase_constraints WHERE phase_id = ?", phaseInstanceID); err != nil {
		return fmt.Errorf("store: clear constraints of %q: %w", phaseInstanceID, err)
	}
	for i, c := range cs {
		if _, err := t.tx.ExecContext(ctx,
			"INSERT INTO challenge_phase_constraints (id, phase_id, position, name, value) VALUES (?, ?, ?, ?, ?)",
			c.ID, phaseInstanceID, i, c.Name, c.Value); err != nil {
			return fmt.Errorf("store: insert constraint %q: %w", c.ID, err)
		}
	}
	return nil
}

func (t *Tx) putDefinition(ctx context.Context, d phase.Definition) error {
	const q = `
		INSERT INTO phase_definitions (id, name, description, duration) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, description = excluded.description, duration = excluded.duration`
	if _, err := t.tx.ExecContext(ctx, q, d.ID, d.Name, d.Description, d.DefaultDuration); err != nil {
		return fmt.Errorf("store: put definition %q: %w", d.ID, err)
	}
	return nil
}

func (t *Tx) putTemplate(ctx context.Context, tpl phase.Template) error {
	const q = `
		INSERT INTO timeline_templates (id, name, description, is_active) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, description = excluded.description, is_active = excluded.is_active`
	if _, err := t.tx.ExecContext(ctx, q, tpl.ID, tpl.Name, tpl.Description, tpl.IsActive); err != nil {
		return fmt.Errorf("store: put template %q: %w", tpl.ID, err)
	}
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM timeline_template_phases WHERE template_id = ?", tpl.ID); err != nil {
		return fmt.Errorf("store: clear template %q entries: %w", tpl.ID, err)
	}
	for i, e := range tpl.Entries {
		if _, err := t.tx.ExecContext(ctx,
			"INSERT INTO timeline_template_phases (template_id, position, phase_id, duration, predecessor) VALUES (?, ?, ?, ?, ?)",
			tpl.ID, i, e.PhaseID, e.DefaultDuration, e.Predecessor); err != nil {
			return fmt.Errorf("store: insert template %q entry %d: %w", tpl.ID, i, err)
		}
	}
	return nil
}
