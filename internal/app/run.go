package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shpitdev/appointment-contact-resolver/internal/contact"
	"github.com/shpitdev/appointment-contact-resolver/internal/pipeline"
	"github.com/shpitdev/appointment-contact-resolver/internal/review"
	"github.com/shpitdev/appointment-contact-resolver/pkg/pipeline/core"
)

type Options struct {
	Pipeline pipeline.Options

	// LookupTimeout bounds each identity store lookup. Zero leaves ItemTimeout in charge.
	LookupTimeout time.Duration
}

// PreviousRows supplies rows from an earlier run. *store.Store satisfies it.
type PreviousRows interface {
	LoadRows(ctx context.Context) (map[string]pipeline.Row, error)
}

type Deps struct {
	// Fetcher is the identity store. Nil resolves from titles only.
	Fetcher contact.Fetcher
	// Reviewer is optional.
	Reviewer review.Reviewer
	// Previous enables incremental runs when set.
	Previous PreviousRows
	Logger   *zap.Logger
}

// Summary reports what a run produced.
type Summary struct {
	RunID         string
	Rows          int
	APIRows       int
	HeuristicRows int
	UnknownRows   int
	CachedRows    int
	ReviewedRows  int
}

// NewRunID returns an id that tags every log line of one run.
func NewRunID() string {
	return "run-" + uuid.NewString()
}

// Run loads appointments from input, resolves them, optionally reviews heuristic
// names, and hands the rows to every output in order.
func Run(
	ctx context.Context,
	input core.InputAdapter[contact.AppointmentRecord],
	outputs []core.OutputAdapter[pipeline.Row],
	opts Options,
	deps Deps,
) (Summary, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sum := Summary{RunID: NewRunID()}
	logger = logger.With(zap.String("run", sum.RunID))
	runStart := time.Now()

	logger.Info("run start",
		zap.Int("workers", opts.Pipeline.Workers),
		zap.Duration("item_timeout", opts.Pipeline.ItemTimeout),
		zap.Duration("lookup_timeout", opts.LookupTimeout),
		zap.Bool("identity_store", deps.Fetcher != nil),
		zap.Bool("review", deps.Reviewer != nil),
		zap.Bool("incremental", deps.Previous != nil),
	)

	readStart := time.Now()
	records, err := input.Load(ctx)
	if err != nil {
		return sum, fmt.Errorf("load input: %w", err)
	}
	logger.Info("loaded appointments", zap.Int("count", len(records)), zap.Duration("duration", time.Since(readStart).Round(time.Millisecond)))

	previous := map[string]pipeline.Row{}
	if deps.Previous != nil {
		previous, err = deps.Previous.LoadRows(ctx)
		if err != nil {
			return sum, fmt.Errorf("load previous rows: %w", err)
		}
	}
	plan := buildIncrementalPlan(records, previous)
	sum.CachedRows = plan.cachedRows
	logger.Info("incremental plan",
		zap.Int("input_rows", len(records)),
		zap.Int("cached_rows", plan.cachedRows),
		zap.Int("rows_to_resolve", len(plan.pending)),
	)

	if len(plan.pending) > 0 {
		resolveStart := time.Now()
		var lookup contact.Lookup
		if deps.Fetcher != nil {
			lookup = contact.NewAdapter(newTracedFetcher(deps.Fetcher, logger), logger)
		}
		resolver := contact.NewResolver(lookup, contact.WithLookupTimeout(opts.LookupTimeout))

		fresh, err := pipeline.ResolveAppointments(ctx, plan.pending, resolver, opts.Pipeline)
		if err != nil {
			return sum, fmt.Errorf("resolve appointments: %w", err)
		}
		logger.Info("resolution complete", zap.Int("rows", len(fresh)), zap.Duration("duration", time.Since(resolveStart).Round(time.Millisecond)))

		if deps.Reviewer != nil {
			reviewStart := time.Now()
			if err := pipeline.ReviewRows(ctx, fresh, deps.Reviewer, opts.Pipeline, logger); err != nil {
				return sum, err
			}
			logger.Info("review complete", zap.Duration("duration", time.Since(reviewStart).Round(time.Millisecond)))
		}
		if err := plan.applyResolvedRows(fresh); err != nil {
			return sum, err
		}
	}

	rows := plan.rows
	countSources(&sum, rows)
	logger.Info("rows produced",
		zap.Int("rows", sum.Rows),
		zap.Int("api", sum.APIRows),
		zap.Int("heuristic", sum.HeuristicRows),
		zap.Int("unknown", sum.UnknownRows),
		zap.Int("reviewed", sum.ReviewedRows),
	)

	for _, out := range outputs {
		if out == nil {
			continue
		}
		if err := out.Store(ctx, rows); err != nil {
			return sum, fmt.Errorf("write output: %w", err)
		}
	}
	logger.Info("run complete", zap.Duration("duration", time.Since(runStart).Round(time.Millisecond)))
	return sum, nil
}

func countSources(sum *Summary, rows []pipeline.Row) {
	sum.Rows = len(rows)
	for _, r := range rows {
		if r.Source == string(contact.SourceAPI) {
			sum.APIRows++
		} else {
			sum.HeuristicRows++
		}
		if r.DisplayName == contact.Unknown {
			sum.UnknownRows++
		}
		if strings.TrimSpace(r.ReviewVerdict) != "" {
			sum.ReviewedRows++
		}
	}
}
