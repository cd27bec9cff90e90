package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/appointment-contact-resolver/internal/pipeline"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "rows.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndLoadRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rows := []pipeline.Row{
		{AppointmentID: "a1", Title: "Weekly", ContactReferenceID: "c1", DisplayName: "Destiny Smith", Email: "d@x.com", Source: "api"},
		{AppointmentID: "a2", Title: "Smith Residence", DisplayName: "Smith", Source: "heuristic", ReviewVerdict: "person", ReviewConfidence: "high"},
		{AppointmentID: " ", Title: "no id", DisplayName: "Unknown", Source: "heuristic"},
	}
	n, err := s.SaveRows(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.LoadRows(ctx)
	require.NoError(t, err)
	want := map[string]pipeline.Row{"a1": rows[0], "a2": rows[1]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveRows_Upserts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.SaveRows(ctx, []pipeline.Row{{AppointmentID: "a1", Title: "Smith Residence", DisplayName: "Smith", Source: "heuristic"}})
	require.NoError(t, err)
	_, err = s.SaveRows(ctx, []pipeline.Row{{AppointmentID: "a1", Title: "Smith Residence", ContactReferenceID: "c9", DisplayName: "Ann Smith", Source: "api"}})
	require.NoError(t, err)

	got, err := s.LoadRows(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Ann Smith", got["a1"].DisplayName)
	assert.Equal(t, "api", got["a1"].Source)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.SaveRows(context.Background(), []pipeline.Row{{AppointmentID: "a1", Title: "t", DisplayName: "Unknown", Source: "heuristic"}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.LoadRows(context.Background())
	require.NoError(t, err)
	assert.Contains(t, got, "a1")
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open("  ")
	require.ErrorContains(t, err, "empty path")

	orig := openDB
	t.Cleanup(func() { openDB = orig })
	openDB = func(string, string) (*sql.DB, error) { return nil, errors.New("no driver") }
	_, err = Open(filepath.Join(t.TempDir(), "x.db"))
	require.ErrorContains(t, err, "open database")
}

func TestSaveRows_StampsUpdatedAt(t *testing.T) {
	s := openTestStore(t)
	s.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	_, err := s.SaveRows(context.Background(), []pipeline.Row{{AppointmentID: "a1", Title: "t", DisplayName: "Unknown", Source: "heuristic"}})
	require.NoError(t, err)

	var updated string
	require.NoError(t, s.db.QueryRow(`SELECT updated_at FROM resolved_rows WHERE appointment_id = 'a1'`).Scan(&updated))
	assert.Equal(t, "2024-01-02T03:04:05Z", updated)
}
