// Package crm is a minimal client for the identity store that owns contact
// records referenced by scheduling appointments.
//
// The client owns rate limiting and retries for its upstream; callers get one
// bounded call per Fetch.
package crm

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shpitdev/appointment-contact-resolver/internal/contact"
	"github.com/shpitdev/appointment-contact-resolver/pkg/pipeline/core"
	"github.com/shpitdev/appointment-contact-resolver/pkg/pipeline/redact"
	"github.com/shpitdev/appointment-contact-resolver/pkg/pipeline/retry"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 1 << 20

type Config struct {
	// BaseURL should look like "https://crm.example.com/api".
	BaseURL string
	Token   string

	// CAPath is an optional PEM bundle to trust for TLS.
	CAPath string

	// Timeout bounds each HTTP attempt.
	Timeout time.Duration

	// RateLimitRPS is shared by every call made through this client. <=0 disables.
	RateLimitRPS float64

	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	Logger *zap.Logger
}

// Contact is a contact record as returned by the identity store.
type Contact struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// DisplayName prefers the full name and falls back to "first last".
func (c Contact) DisplayName() string {
	if n := strings.TrimSpace(c.Name); n != "" {
		return n
	}
	return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}

type contactResponse struct {
	Contact *Contact `json:"contact"`
}

type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
	policy  retry.Policy
	logger  *zap.Logger
}

// NewClient constructs a client for the identity store API.
func NewClient(cfg Config) (*Client, error) {
	base, err := parseBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	hc, err := newHTTPClient(cfg.CAPath)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		baseURL: base,
		token:   strings.TrimSpace(cfg.Token),
		http:    hc,
		logger:  logger,
	}
	c.policy = retry.Policy{
		MaxRetries:     cfg.MaxRetries,
		AttemptTimeout: timeout,
		Limiter:        retry.NewLimiter(cfg.RateLimitRPS),
		BackoffInitial: cfg.BackoffInitial,
		BackoffMax:     cfg.BackoffMax,
		OnRetry: func(attempt int, err error, sleep time.Duration) {
			c.logger.Debug("crm retry",
				zap.Int("attempt", attempt),
				zap.Duration("sleep", sleep),
				zap.String("error", redact.Secrets(err.Error())),
			)
		},
	}
	return c, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("crm base URL is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse crm base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("crm base URL must include a host (got %q)", raw)
	}
	// Ensure the base path ends with a slash so ResolveReference treats it as a directory.
	u.Path = strings.TrimRight(u.Path, "/") + "/"
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func newHTTPClient(caPath string) (*http.Client, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if strings.TrimSpace(caPath) != "" {
		b, err := os.ReadFile(strings.TrimSpace(caPath))
		if err != nil {
			return nil, fmt.Errorf("read CRM_CA_PATH file: %w", err)
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(b); !ok {
			return nil, fmt.Errorf("parse CRM_CA_PATH PEM: no certs found")
		}
		tr.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}
	// Per-attempt deadlines come from the request context.
	return &http.Client{Transport: tr}, nil
}

// Fetch implements contact.Fetcher: one logical lookup, retried on transient
// failures according to the client's policy.
func (c *Client) Fetch(ctx context.Context, referenceID string) (contact.ContactDetails, error) {
	ct, err := retry.Do(ctx, c.policy, func(ctx context.Context) (Contact, error) {
		return c.GetContact(ctx, referenceID)
	})
	if err != nil {
		return contact.ContactDetails{}, err
	}
	return contact.ContactDetails{
		Name:  ct.DisplayName(),
		Email: ct.Email,
		Phone: ct.Phone,
	}, nil
}

// GetContact performs a single GET for a contact. Transient failures are
// wrapped in *core.TransientError.
func (c *Client) GetContact(ctx context.Context, referenceID string) (Contact, error) {
	referenceID = strings.TrimSpace(referenceID)
	if referenceID == "" {
		return Contact{}, fmt.Errorf("contact reference id is required")
	}

	u := c.baseURL.ResolveReference(&url.URL{Path: "v1/contacts/" + url.PathEscape(referenceID)})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Contact{}, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Contact{}, classifyTransportErr(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Contact{}, classifyTransportErr(err)
	}
	if resp.StatusCode/100 != 2 {
		he := newHTTPError("getContact", resp, b)
		if he.Retryable() {
			return Contact{}, &core.TransientError{Err: he}
		}
		return Contact{}, he
	}

	var out contactResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return Contact{}, fmt.Errorf("parse get contact response: %w", err)
	}
	if out.Contact == nil {
		return Contact{}, fmt.Errorf("parse get contact response: missing contact object")
	}
	return *out.Contact, nil
}

func classifyTransportErr(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &core.TransientError{Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &core.TransientError{Err: err}
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return &core.TransientError{Err: err}
	}
	return err
}
