// Package contact resolves a contact identity for a scheduling appointment from an
// identity-store lookup, falling back to a heuristic over the appointment title.
package contact

import (
	"context"
	"strings"
	"time"
)

// Unknown is the display name used when no contact identity could be resolved.
const Unknown = "Unknown"

// Source records where a resolved identity came from.
type Source string

const (
	SourceAPI       Source = "api"
	SourceHeuristic Source = "heuristic"
)

// AppointmentRecord is one appointment as delivered by the scheduling system.
//
// Email and Phone are carried through for callers but are not used for
// resolution.
type AppointmentRecord struct {
	ID                 string
	Title              string
	ContactReferenceID string
	StartTime          time.Time
	Email              string
	Phone              string
}

// ContactDetails is what the remote identity store returns for a reference id.
// Empty strings mean the field is absent.
type ContactDetails struct {
	Name  string
	Email string
	Phone string
}

// ResolvedContact is the immutable result of resolving one appointment.
type ResolvedContact struct {
	displayName string
	email       string
	phone       string
	source      Source
}

// DisplayName is never empty; Unknown marks an unresolved identity.
func (c ResolvedContact) DisplayName() string {
	if c.displayName == "" {
		return Unknown
	}
	return c.displayName
}

func (c ResolvedContact) Email() (string, bool) {
	return c.email, c.email != ""
}

func (c ResolvedContact) Phone() (string, bool) {
	return c.phone, c.phone != ""
}

func (c ResolvedContact) Source() Source {
	if c.source == "" {
		return SourceHeuristic
	}
	return c.source
}

// FromAPI builds an api-sourced contact from lookup details. ok is false when the
// details carry no usable name after normalization.
func FromAPI(d ContactDetails) (ResolvedContact, bool) {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return ResolvedContact{}, false
	}
	return ResolvedContact{
		displayName: name,
		email:       strings.TrimSpace(d.Email),
		phone:       strings.TrimSpace(d.Phone),
		source:      SourceAPI,
	}, true
}

// FromTitle builds a heuristic-sourced contact from an appointment title.
func FromTitle(title string) ResolvedContact {
	return ResolvedContact{
		displayName: ExtractName(title),
		source:      SourceHeuristic,
	}
}

// Lookup fetches a contact by reference id. A false return covers not-found,
// transient failure and malformed responses alike.
type Lookup interface {
	FetchContact(ctx context.Context, referenceID string) (ContactDetails, bool)
}

// Fetcher is the remote collaborator behind a Lookup. It may fail in any way;
// Adapter turns those failures into absence.
type Fetcher interface {
	Fetch(ctx context.Context, referenceID string) (ContactDetails, error)
}

// FetchFunc adapts a function to the Fetcher interface.
type FetchFunc func(ctx context.Context, referenceID string) (ContactDetails, error)

func (f FetchFunc) Fetch(ctx context.Context, referenceID string) (ContactDetails, error) {
	return f(ctx, referenceID)
}
