// Package store persists resolved rows in SQLite, keyed by appointment id, so
// later runs can reuse identity-store results instead of looking them up again.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/shpitdev/appointment-contact-resolver/internal/pipeline"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store: empty path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("store: create data dir: %w", err)
		}
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS resolved_rows (
			appointment_id       TEXT PRIMARY KEY,
			title                TEXT NOT NULL,
			contact_reference_id TEXT NOT NULL DEFAULT '',
			start_time           TEXT NOT NULL DEFAULT '',
			display_name         TEXT NOT NULL,
			email                TEXT NOT NULL DEFAULT '',
			phone                TEXT NOT NULL DEFAULT '',
			source               TEXT NOT NULL,
			review_verdict       TEXT NOT NULL DEFAULT '',
			review_confidence    TEXT NOT NULL DEFAULT '',
			updated_at           TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_resolved_rows_source ON resolved_rows(source);
	`)
	return err
}

// SaveRows upserts rows by appointment id in one transaction. Rows without an
// appointment id cannot be keyed and are skipped; the count saved is returned.
func (s *Store) SaveRows(ctx context.Context, rows []pipeline.Row) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO resolved_rows (
			appointment_id, title, contact_reference_id, start_time, display_name,
			email, phone, source, review_verdict, review_confidence, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(appointment_id) DO UPDATE SET
			title = excluded.title,
			contact_reference_id = excluded.contact_reference_id,
			start_time = excluded.start_time,
			display_name = excluded.display_name,
			email = excluded.email,
			phone = excluded.phone,
			source = excluded.source,
			review_verdict = excluded.review_verdict,
			review_confidence = excluded.review_confidence,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return 0, fmt.Errorf("store: prepare upsert: %w", err)
	}
	defer stmt.Close()

	updatedAt := s.now().UTC().Format(time.RFC3339)
	saved := 0
	for _, r := range rows {
		id := strings.TrimSpace(r.AppointmentID)
		if id == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			id, r.Title, r.ContactReferenceID, r.StartTime, r.DisplayName,
			r.Email, r.Phone, r.Source, r.ReviewVerdict, r.ReviewConfidence, updatedAt,
		); err != nil {
			return 0, fmt.Errorf("store: upsert %q: %w", id, err)
		}
		saved++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit: %w", err)
	}
	return saved, nil
}

// LoadRows returns every stored row keyed by appointment id.
func (s *Store) LoadRows(ctx context.Context) (map[string]pipeline.Row, error) {
	rs, err := s.db.QueryContext(ctx, `
		SELECT appointment_id, title, contact_reference_id, start_time, display_name,
			email, phone, source, review_verdict, review_confidence
		FROM resolved_rows
	`)
	if err != nil {
		return nil, fmt.Errorf("store: query rows: %w", err)
	}
	defer rs.Close()

	out := make(map[string]pipeline.Row)
	for rs.Next() {
		var r pipeline.Row
		if err := rs.Scan(
			&r.AppointmentID, &r.Title, &r.ContactReferenceID, &r.StartTime, &r.DisplayName,
			&r.Email, &r.Phone, &r.Source, &r.ReviewVerdict, &r.ReviewConfidence,
		); err != nil {
			return nil, fmt.Errorf("store: scan row: %w", err)
		}
		out[r.AppointmentID] = r
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate rows: %w", err)
	}
	return out, nil
}
