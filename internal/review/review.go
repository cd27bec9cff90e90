// Package review flags low-confidence heuristic names. A review never changes
// the resolved name or its source; it only annotates the output row.
package review

import (
	"context"
	"strings"
)

// Kind classifies what a heuristic display name most likely refers to.
type Kind string

const (
	KindPerson   Kind = "person"
	KindBusiness Kind = "business"
	KindGeneric  Kind = "generic"
)

// Verdict is the structured review output for one name.
type Verdict struct {
	Kind       Kind
	Confidence string
	Model      string
}

// Reviewer classifies a name extracted from an appointment title.
type Reviewer interface {
	Review(ctx context.Context, title, name string) (Verdict, error)
}

// NormalizeKind maps free-form labels onto Kind; unknown labels become KindGeneric.
func NormalizeKind(raw string) Kind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "person", "individual", "customer":
		return KindPerson
	case "business", "company", "organization", "organisation":
		return KindBusiness
	default:
		return KindGeneric
	}
}

// NormalizeConfidence returns low, medium or high; anything else becomes low.
func NormalizeConfidence(raw string) string {
	switch s := strings.ToLower(strings.TrimSpace(raw)); s {
	case "low", "medium", "high":
		return s
	default:
		return "low"
	}
}
