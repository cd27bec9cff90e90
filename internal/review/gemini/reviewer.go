package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/shpitdev/appointment-contact-resolver/internal/review"
	"github.com/shpitdev/appointment-contact-resolver/pkg/pipeline/core"
	"github.com/shpitdev/appointment-contact-resolver/pkg/pipeline/retry"
)

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string

	// MaxRetries bounds retries of transient failures (429, 5xx, timeouts).
	MaxRetries int
	// RateLimitRPS caps request rate across all reviews. <= 0 disables.
	RateLimitRPS float64
}

// generator is the slice of the genai client the reviewer needs.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Reviewer struct {
	models generator
	model  string
	policy retry.Policy
}

func New(ctx context.Context, cfg Config) (*Reviewer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("GEMINI_MODEL is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return newReviewer(client.Models, cfg), nil
}

func newReviewer(models generator, cfg Config) *Reviewer {
	return &Reviewer{
		models: models,
		model:  strings.TrimSpace(cfg.Model),
		policy: retry.Policy{
			MaxRetries:     cfg.MaxRetries,
			Limiter:        retry.NewLimiter(cfg.RateLimitRPS),
			BackoffInitial: 500 * time.Millisecond,
			BackoffMax:     5 * time.Second,
		},
	}
}

type responseSchema struct {
	Kind       string `json:"kind"`
	Confidence string `json:"confidence"`
}

var outputSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"kind":       {Type: genai.TypeString, Enum: []string{"person", "business", "generic"}},
		"confidence": {Type: genai.TypeString, Enum: []string{"low", "medium", "high"}},
	},
	Required: []string{"kind", "confidence"},
}

func (r *Reviewer) Review(ctx context.Context, title, name string) (review.Verdict, error) {
	base := review.Verdict{Model: r.model}
	name = strings.TrimSpace(name)
	if name == "" {
		return base, errors.New("empty name")
	}

	prompt := buildPrompt(title, name)
	resp, err := retry.Do(ctx, r.policy, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		resp, err := r.models.GenerateContent(
			ctx,
			r.model,
			genai.Text(prompt),
			&genai.GenerateContentConfig{
				CandidateCount:   1,
				ResponseMIMEType: "application/json",
				ResponseSchema:   outputSchema,
			},
		)
		if err != nil {
			return nil, classifyErr(err)
		}
		return resp, nil
	})
	if err != nil {
		return base, err
	}

	var parsed responseSchema
	if err := json.Unmarshal([]byte(resp.Text()), &parsed); err != nil {
		return base, fmt.Errorf("gemini: parse structured json: %w", err)
	}
	return review.Verdict{
		Kind:       review.NormalizeKind(parsed.Kind),
		Confidence: review.NormalizeConfidence(parsed.Confidence),
		Model:      r.model,
	}, nil
}

func buildPrompt(title, name string) string {
	// Only the title and the extracted name are sent; no contact details.
	return strings.TrimSpace(`
You review names extracted from cleaning-service appointment titles.

Classify the extracted name as one of:
- person: a customer's given name or surname
- business: a company, property, or organization
- generic: a descriptive word that is not a name (e.g. "Regular", "Commercial", "Deep")

Return ONLY a JSON object with keys "kind" and "confidence" (low, medium, high).

Title: ` + strings.TrimSpace(title) + `
Extracted name: ` + name + `
`)
}

func classifyErr(err error) error {
	// Wrap transient failures so the caller's retry policy applies.
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code/100 == 5 {
			return &core.TransientError{Err: err}
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &core.TransientError{Err: err}
	}
	return err
}
