package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/shpitdev/appointment-contact-resolver/internal/contact"
	"github.com/shpitdev/appointment-contact-resolver/internal/review"
	"github.com/shpitdev/appointment-contact-resolver/pkg/pipeline/redact"
	"github.com/shpitdev/appointment-contact-resolver/pkg/pipeline/worker"
)

// ReviewRows annotates heuristic rows with a reviewer verdict. Rows are updated
// in place; api rows and Unknown names are left untouched. A failed review is
// logged and leaves the review columns empty, unless opts.FailFast is set.
func ReviewRows(ctx context.Context, rows []Row, reviewer review.Reviewer, opts Options, logger *zap.Logger) error {
	if reviewer == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var idx []int
	for i, r := range rows {
		if r.Source == string(contact.SourceHeuristic) && r.DisplayName != contact.Unknown {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return nil
	}

	wopts := opts.worker()
	if !opts.FailFast {
		wopts.FailurePolicy = worker.FailurePolicyPartialOutput
	}
	out, err := worker.ProcessAll(ctx, idx, func(ctx context.Context, i int) (review.Verdict, error) {
		return reviewer.Review(ctx, rows[i].Title, rows[i].DisplayName)
	}, wopts)
	if err != nil {
		return fmt.Errorf("review: %w", err)
	}

	for _, res := range out {
		row := &rows[res.Input]
		if res.Err != nil {
			logger.Warn("name review failed",
				zap.String("appointment_id", row.AppointmentID),
				zap.String("error", redact.Secrets(res.Err.Error())),
			)
			continue
		}
		row.ReviewVerdict = string(res.Output.Kind)
		row.ReviewConfidence = res.Output.Confidence
	}
	return nil
}
