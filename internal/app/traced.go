package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shpitdev/appointment-contact-resolver/internal/contact"
	"github.com/shpitdev/appointment-contact-resolver/internal/crm"
	"github.com/shpitdev/appointment-contact-resolver/pkg/pipeline/core"
	"github.com/shpitdev/appointment-contact-resolver/pkg/pipeline/redact"
)

// tracedFetcher logs every identity store lookup with its outcome and duration.
// Contact details are logged as presence flags only.
type tracedFetcher struct {
	next   contact.Fetcher
	logger *zap.Logger

	mu    sync.Mutex
	calls map[string]int
}

func newTracedFetcher(next contact.Fetcher, logger *zap.Logger) *tracedFetcher {
	return &tracedFetcher{
		next:   next,
		logger: logger,
		calls:  make(map[string]int),
	}
}

func (t *tracedFetcher) Fetch(ctx context.Context, referenceID string) (contact.ContactDetails, error) {
	referenceID = strings.TrimSpace(referenceID)
	call := t.nextCall(referenceID)

	deadlineIn := "none"
	if d, ok := ctx.Deadline(); ok {
		deadlineIn = time.Until(d).Round(time.Millisecond).String()
	}
	t.logger.Debug("lookup request",
		zap.String("reference_id", referenceID),
		zap.Int("call", call),
		zap.String("deadline_in", deadlineIn),
	)

	start := time.Now()
	out, err := t.next.Fetch(ctx, referenceID)
	elapsed := time.Since(start).Round(time.Millisecond)

	if err != nil {
		fields := []zap.Field{
			zap.String("reference_id", referenceID),
			zap.Int("call", call),
			zap.Duration("duration", elapsed),
			zap.Bool("transient", core.IsTransient(err)),
			zap.String("error", redact.Secrets(err.Error())),
		}
		if errors.Is(err, crm.ErrNotFound) {
			t.logger.Debug("lookup response: not found", fields...)
		} else {
			t.logger.Warn("lookup response: error", fields...)
		}
		return out, err
	}

	t.logger.Debug("lookup response: ok",
		zap.String("reference_id", referenceID),
		zap.Int("call", call),
		zap.Duration("duration", elapsed),
		zap.Bool("has_name", strings.TrimSpace(out.Name) != ""),
		zap.Bool("has_email", strings.TrimSpace(out.Email) != ""),
		zap.Bool("has_phone", strings.TrimSpace(out.Phone) != ""),
	)
	return out, nil
}

func (t *tracedFetcher) nextCall(referenceID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls[referenceID]++
	return t.calls[referenceID]
}
