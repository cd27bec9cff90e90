package contact

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/shpitdev/appointment-contact-resolver/pkg/pipeline/redact"
)

// Adapter turns a Fetcher into a Lookup: every error, and any panic raised by
// the fetcher, becomes absence. It never retries.
type Adapter struct {
	fetcher Fetcher
	logger  *zap.Logger
}

// NewAdapter wraps fetcher. A nil logger disables logging.
func NewAdapter(fetcher Fetcher, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{fetcher: fetcher, logger: logger}
}

func (a *Adapter) FetchContact(ctx context.Context, referenceID string) (details ContactDetails, ok bool) {
	referenceID = strings.TrimSpace(referenceID)
	if referenceID == "" || a == nil || a.fetcher == nil {
		return ContactDetails{}, false
	}

	defer func() {
		if r := recover(); r != nil {
			a.logger.Warn("contact lookup panicked",
				zap.String("reference_id", referenceID),
				zap.String("panic", redact.Secrets(fmt.Sprint(r))),
			)
			details, ok = ContactDetails{}, false
		}
	}()

	d, err := a.fetcher.Fetch(ctx, referenceID)
	if err != nil {
		a.logger.Debug("contact lookup unavailable",
			zap.String("reference_id", referenceID),
			zap.String("error", redact.Secrets(err.Error())),
		)
		return ContactDetails{}, false
	}
	return d, true
}
