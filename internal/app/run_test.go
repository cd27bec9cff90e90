package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shpitdev/appointment-contact-resolver/internal/app"
	"github.com/shpitdev/appointment-contact-resolver/internal/contact"
	"github.com/shpitdev/appointment-contact-resolver/internal/crm"
	"github.com/shpitdev/appointment-contact-resolver/internal/crm/mockcrm"
	"github.com/shpitdev/appointment-contact-resolver/internal/pipeline"
	"github.com/shpitdev/appointment-contact-resolver/internal/review"
	"github.com/shpitdev/appointment-contact-resolver/internal/store"
	"github.com/shpitdev/appointment-contact-resolver/pkg/pipeline/core"
)

const inputCSV = "id,title,contact_id,start_time\n" +
	"a1,Destiny - Weekly Clean,abc123,2024-05-01T09:30:00Z\n" +
	"a2,Cleaning for Sarah Johnson,,\n" +
	"a3,Smith Residence,gone,\n" +
	"a4,Cleaning,,\n" +
	"a5,Regular Cleaning,flaky,\n"

type env struct {
	mock   *mockcrm.Server
	client *crm.Client
	dir    string
	input  string
	output string
}

func newEnv(t *testing.T) env {
	t.Helper()

	mock := mockcrm.New()
	mock.RequireBearerToken("dummy-token")
	mock.Put(crm.Contact{ID: "abc123", FirstName: "Destiny", LastName: "Smith", Email: "destiny@example.com", Phone: "555-0100"})
	ts := httptest.NewServer(mock.Handler())
	t.Cleanup(ts.Close)

	client, err := crm.NewClient(crm.Config{
		BaseURL:        ts.URL + "/api",
		Token:          "dummy-token",
		MaxRetries:     2,
		BackoffInitial: time.Millisecond,
		BackoffMax:     time.Millisecond,
		Logger:         zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	dir := t.TempDir()
	input := filepath.Join(dir, "appointments.csv")
	require.NoError(t, os.WriteFile(input, []byte(inputCSV), 0644))

	return env{mock: mock, client: client, dir: dir, input: input, output: filepath.Join(dir, "resolved.csv")}
}

func readOutput(t *testing.T, path string) map[string]pipeline.Row {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := pipeline.ReadCSV(f)
	require.NoError(t, err)
	out := make(map[string]pipeline.Row, len(rows))
	for _, r := range rows {
		out[r.AppointmentID] = r
	}
	return out
}

func TestRun_EndToEndAgainstMock(t *testing.T) {
	e := newEnv(t)

	sum, err := app.Run(
		context.Background(),
		app.CSVInput{Path: e.input},
		[]core.OutputAdapter[pipeline.Row]{app.CSVOutput{Path: e.output}},
		app.Options{Pipeline: pipeline.Options{Workers: 3}, LookupTimeout: 2 * time.Second},
		app.Deps{Fetcher: e.client, Logger: zaptest.NewLogger(t)},
	)
	require.NoError(t, err)
	assert.Regexp(t, `^run-[0-9a-f-]{36}$`, sum.RunID)
	assert.Equal(t, 5, sum.Rows)
	assert.Equal(t, 1, sum.APIRows)
	assert.Equal(t, 4, sum.HeuristicRows)
	assert.Equal(t, 1, sum.UnknownRows)

	rows := readOutput(t, e.output)
	require.Len(t, rows, 5)

	assert.Equal(t, pipeline.Row{
		AppointmentID:      "a1",
		Title:              "Destiny - Weekly Clean",
		ContactReferenceID: "abc123",
		StartTime:          "2024-05-01T09:30:00Z",
		DisplayName:        "Destiny Smith",
		Email:              "destiny@example.com",
		Phone:              "555-0100",
		Source:             "api",
	}, rows["a1"])
	assert.Equal(t, "Sarah Johnson", rows["a2"].DisplayName)
	assert.Equal(t, "Smith", rows["a3"].DisplayName)
	assert.Equal(t, "heuristic", rows["a3"].Source)
	assert.Equal(t, contact.Unknown, rows["a4"].DisplayName)
	assert.Equal(t, "Regular", rows["a5"].DisplayName)

	// Only rows with a contact reference reach the identity store.
	assert.Len(t, e.mock.Calls(), 3)
}

func TestRun_TransientFailuresAreRetried(t *testing.T) {
	e := newEnv(t)
	e.mock.FailNext(2, http.StatusServiceUnavailable)

	_, err := app.Run(
		context.Background(),
		app.CSVInput{Path: e.input},
		[]core.OutputAdapter[pipeline.Row]{app.CSVOutput{Path: e.output}},
		app.Options{Pipeline: pipeline.Options{Workers: 1}},
		app.Deps{Fetcher: e.client, Logger: zaptest.NewLogger(t)},
	)
	require.NoError(t, err)

	rows := readOutput(t, e.output)
	assert.Equal(t, "api", rows["a1"].Source)
	assert.Len(t, e.mock.Calls(), 5)
}

func TestRun_IncrementalReusesAPIRows(t *testing.T) {
	e := newEnv(t)
	db, err := store.Open(filepath.Join(e.dir, "rows.db"))
	require.NoError(t, err)
	defer db.Close()

	run := func() app.Summary {
		sum, err := app.Run(
			context.Background(),
			app.CSVInput{Path: e.input},
			[]core.OutputAdapter[pipeline.Row]{app.CSVOutput{Path: e.output}, app.StoreOutput{DB: db}},
			app.Options{Pipeline: pipeline.Options{Workers: 2}},
			app.Deps{Fetcher: e.client, Previous: db, Logger: zaptest.NewLogger(t)},
		)
		require.NoError(t, err)
		return sum
	}

	first := run()
	assert.Zero(t, first.CachedRows)
	assert.Len(t, e.mock.Calls(), 3)

	second := run()
	assert.Equal(t, 1, second.CachedRows)
	assert.Equal(t, 1, second.APIRows)
	// abc123 is served from the store; the two heuristic references are retried.
	assert.Len(t, e.mock.Calls(), 5)

	rows := readOutput(t, e.output)
	assert.Equal(t, "Destiny Smith", rows["a1"].DisplayName)
	assert.Equal(t, "destiny@example.com", rows["a1"].Email)
}

func TestRun_WithoutIdentityStore(t *testing.T) {
	e := newEnv(t)

	sum, err := app.Run(
		context.Background(),
		app.CSVInput{Path: e.input},
		[]core.OutputAdapter[pipeline.Row]{app.CSVOutput{Path: e.output}},
		app.Options{},
		app.Deps{},
	)
	require.NoError(t, err)
	assert.Zero(t, sum.APIRows)
	assert.Equal(t, "Destiny", readOutput(t, e.output)["a1"].DisplayName)
	assert.Empty(t, e.mock.Calls())
}

type stubReviewer struct{}

func (stubReviewer) Review(_ context.Context, _ string, name string) (review.Verdict, error) {
	if name == "Regular" {
		return review.Verdict{Kind: review.KindGeneric, Confidence: "high"}, nil
	}
	return review.Verdict{Kind: review.KindPerson, Confidence: "medium"}, nil
}

func TestRun_ReviewAnnotatesHeuristicRows(t *testing.T) {
	e := newEnv(t)

	sum, err := app.Run(
		context.Background(),
		app.CSVInput{Path: e.input},
		[]core.OutputAdapter[pipeline.Row]{app.CSVOutput{Path: e.output}},
		app.Options{},
		app.Deps{Fetcher: e.client, Reviewer: stubReviewer{}, Logger: zaptest.NewLogger(t)},
	)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.ReviewedRows)

	rows := readOutput(t, e.output)
	assert.Empty(t, rows["a1"].ReviewVerdict)
	assert.Empty(t, rows["a4"].ReviewVerdict)
	assert.Equal(t, "generic", rows["a5"].ReviewVerdict)
	assert.Equal(t, "Regular", rows["a5"].DisplayName)
	assert.Equal(t, "person", rows["a2"].ReviewVerdict)
}

func TestRun_MissingInput(t *testing.T) {
	_, err := app.Run(
		context.Background(),
		app.CSVInput{Path: filepath.Join(t.TempDir(), "nope.csv")},
		nil,
		app.Options{},
		app.Deps{},
	)
	require.ErrorContains(t, err, "load input")
}
