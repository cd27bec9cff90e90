package contact

import (
	"context"
	"strings"
	"time"
)

// Resolver combines a Lookup with the title heuristic. The lookup result always
// wins when it carries a usable name; fields are never merged across sources.
//
// Resolver holds no mutable state and may be shared by any number of goroutines.
type Resolver struct {
	lookup Lookup

	// lookupTimeout bounds a single lookup. Zero leaves the caller's deadline in charge.
	lookupTimeout time.Duration
}

type ResolverOption func(*Resolver)

// WithLookupTimeout bounds each lookup call.
func WithLookupTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.lookupTimeout = d
		}
	}
}

// NewResolver constructs a Resolver. A nil lookup resolves every record heuristically.
func NewResolver(lookup Lookup, opts ...ResolverOption) *Resolver {
	r := &Resolver{lookup: lookup}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the best-effort contact identity for one appointment.
func (r *Resolver) Resolve(ctx context.Context, rec AppointmentRecord) ResolvedContact {
	if c, ok := r.resolveAPI(ctx, rec.ContactReferenceID); ok {
		return c
	}
	return FromTitle(rec.Title)
}

func (r *Resolver) resolveAPI(ctx context.Context, referenceID string) (ResolvedContact, bool) {
	referenceID = strings.TrimSpace(referenceID)
	if r == nil || r.lookup == nil || referenceID == "" {
		return ResolvedContact{}, false
	}
	if ctx.Err() != nil {
		return ResolvedContact{}, false
	}

	lookupCtx := ctx
	if r.lookupTimeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, r.lookupTimeout)
		defer cancel()
	}

	d, ok := r.lookup.FetchContact(lookupCtx, referenceID)
	if !ok {
		return ResolvedContact{}, false
	}
	return FromAPI(d)
}
