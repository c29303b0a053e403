// Package store persists the phase catalog, challenges, their phase instances
// and the review records consulted when a phase is closed. It uses a local
// SQLite database in WAL mode.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/phase"
)

// schema contains the DDL executed on first open. Using IF NOT EXISTS makes
// it safe to run on every startup.
const schema = `
CREATE TABLE IF NOT EXISTS phase_definitions (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    duration    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS timeline_templates (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    is_active   BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS timeline_template_phases (
    template_id TEXT NOT NULL,
    position    INTEGER NOT NULL,
    phase_id    TEXT NOT NULL,
    duration    INTEGER NOT NULL DEFAULT 0,
    predecessor TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (template_id, position)
);

CREATE TABLE IF NOT EXISTS challenges (
    id                   TEXT PRIMARY KEY,
    name                 TEXT NOT NULL DEFAULT '',
    timeline_template_id TEXT NOT NULL,
    status               TEXT NOT NULL,
    start_date           TEXT NOT NULL,
    created_at           TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at           TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS challenge_phases (
    id              TEXT PRIMARY KEY,
    challenge_id    TEXT NOT NULL,
    position        INTEGER NOT NULL,
    phase_id        TEXT NOT NULL,
    name            TEXT NOT NULL,
    description     TEXT NOT NULL DEFAULT '',
    predecessor     TEXT NOT NULL DEFAULT '',
    is_open         BOOLEAN NOT NULL DEFAULT FALSE,
    duration        INTEGER NOT NULL DEFAULT 0,
    scheduled_start TEXT NOT NULL,
    scheduled_end   TEXT NOT NULL,
    actual_start    TEXT,
    actual_end      TEXT
);

CREATE INDEX IF NOT EXISTS idx_challenge_phases_challenge ON challenge_phases(challenge_id);

CREATE TABLE IF NOT EXISTS challenge_phase_constraints (
    id       TEXT PRIMARY KEY,
    phase_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    name     TEXT NOT NULL,
    value    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS reviews (
    id                TEXT PRIMARY KEY,
    phase_instance_id TEXT NOT NULL,
    status            TEXT,
    created_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_reviews_phase ON reviews(phase_instance_id);
`

// Store is the SQLite-backed persistence layer.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at dbPath, enables WAL mode and
// busy timeout, and creates the schema tables if they do not exist.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	// SQLite has a single writer. Callers must not use Store methods while a
	// WithTx callback on the same Store is running.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise. fn's error is returned unchanged.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// ListDefinitions returns every phase definition ordered by name.
func (s *Store) ListDefinitions(ctx context.Context) ([]phase.Definition, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, description, duration FROM phase_definitions ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("store: list definitions: %w", err)
	}
	defer rows.Close()

	var defs []phase.Definition
	for rows.Next() {
		var d phase.Definition
		if err := rows.Scan(&d.ID, &d.Name, &d.Description, &d.DefaultDuration); err != nil {
			return nil, fmt.Errorf("store: scan definition: %w", err)
		}
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate definitions: %w", err)
	}
	return defs, nil
}

// PutDefinition inserts or replaces a phase definition.
func (s *Store) PutDefinition(ctx context.Context, d phase.Definition) error {
	return s.WithTx(ctx, func(tx *Tx) error { return tx.putDefinition(ctx, d) })
}

// Template returns the template with the given id and its entries in
// authoring order. An unknown id is a BadRequest.
func (s *Store) Template(ctx context.Context, id string) (phase.Template, error) {
	var t phase.Template
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, description, is_active FROM timeline_templates WHERE id = ?", id).
		Scan(&t.ID, &t.Name, &t.Description, &t.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return phase.Template{}, phase.BadRequest(phase.ErrInvalidTemplateID, id)
	}
	if err != nil {
		return phase.Template{}, fmt.Errorf("store: get template %q: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT phase_id, duration, predecessor FROM timeline_template_phases WHERE template_id = ? ORDER BY position", id)
	if err != nil {
		return phase.Template{}, fmt.Errorf("store: template %q entries: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var e phase.TemplateEntry
		if err := rows.Scan(&e.PhaseID, &e.DefaultDuration, &e.Predecessor); err != nil {
			return phase.Template{}, fmt.Errorf("store: scan template entry: %w", err)
		}
		t.Entries = append(t.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return phase.Template{}, fmt.Errorf("store: iterate template entries: %w", err)
	}
	return t, nil
}

// Templates returns every template id ordered by id, with entries loaded.
func (s *Store) Templates(ctx context.Context) ([]phase.Template, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM timeline_templates ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("store: list templates: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scan template id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("store: iterate templates: %w", err)
	}
	// Release the single connection before the per-template queries.
	rows.Close()

	out := make([]phase.Template, 0, len(ids))
	for _, id := range ids {
		t, err := s.Template(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// PutTemplate inserts or replaces a template and all of its entries.
func (s *Store) PutTemplate(ctx context.Context, t phase.Template) error {
	return s.WithTx(ctx, func(tx *Tx) error { return tx.putTemplate(ctx, t) })
}

// CatalogSource is a full catalog snapshot, such as a catalog.FileSource.
type CatalogSource interface {
	ListDefinitions(ctx context.Context) ([]phase.Definition, error)
	Templates(ctx context.Context) ([]phase.Template, error)
}

// ImportCatalog upserts every definition and template from src in one
// transaction and reports how many of each were written. Rows missing from
// src are left in place.
func (s *Store) ImportCatalog(ctx context.Context, src CatalogSource) (defs, templates int, err error) {
	d, err := src.ListDefinitions(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("store: import definitions: %w", err)
	}
	t, err := src.Templates(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("store: import templates: %w", err)
	}
	err = s.WithTx(ctx, func(tx *Tx) error {
		for _, def := range d {
			if err := tx.putDefinition(ctx, def); err != nil {
				return err
			}
		}
		for _, tpl := range t {
			if err := tx.putTemplate(ctx, tpl); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return len(d), len(t), nil
}

// AddReview records a review against a phase instance. A nil status is
// stored as NULL.
func (s *Store) AddReview(ctx context.Context, id, phaseInstanceID string, status *string) error {
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO reviews (id, phase_instance_id, status) VALUES (?, ?, ?)",
		id, phaseInstanceID, nullString(status)); err != nil {
		return fmt.Errorf("store: add review %q: %w", id, err)
	}
	return nil
}

// SetReviewStatus updates a review's status. A nil status is stored as NULL.
func (s *Store) SetReviewStatus(ctx context.Context, id string, status *string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE reviews SET status = ? WHERE id = ?", nullString(status), id)
	if err != nil {
		return fmt.Errorf("store: set review status %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: set review status %q: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("store: review %q not found", id)
	}
	return nil
}

// timestampFormats lists the formats SQLite drivers may produce for
// CURRENT_TIMESTAMP, plus the format phase dates are written in.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.DateTime,
}

// parseTimestamp attempts to parse a SQLite timestamp string using known formats.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}

// dateLayout is fixed-width so that stored dates sort chronologically as text.
const dateLayout = "2006-01-02T15:04:05.000000000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTimestamp(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTimestamp(*t), Valid: true}
}

func parseNullTimestamp(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTimestamp(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
