// Package mockcrm serves a minimal in-memory identity store for tests and local runs.
package mockcrm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shpitdev/appointment-contact-resolver/internal/crm"
)

// Call records a request made to the mock service.
type Call struct {
	Method string
	Path   string
}

// Server implements the contact endpoint of the identity store.
type Server struct {
	mu       sync.Mutex
	calls    []Call
	contacts map[string]crm.Contact

	expectedAuthorization string

	// failures are scripted status codes returned before serving normally.
	failures []int
	latency  time.Duration
}

// New constructs an empty mock server.
func New() *Server {
	return &Server{contacts: make(map[string]crm.Contact)}
}

// Put stores or replaces a contact.
func (s *Server) Put(c crm.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[strings.TrimSpace(c.ID)] = c
}

// LoadJSON seeds contacts from a JSON array file.
func (s *Server) LoadJSON(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read contacts seed: %w", err)
	}
	var contacts []crm.Contact
	if err := json.Unmarshal(b, &contacts); err != nil {
		return 0, fmt.Errorf("parse contacts seed: %w", err)
	}
	for _, c := range contacts {
		if strings.TrimSpace(c.ID) == "" {
			return 0, fmt.Errorf("contacts seed: contact without id")
		}
		s.Put(c)
	}
	return len(contacts), nil
}

// RequireBearerToken enforces that requests include an Authorization header matching the token.
// If token is empty, authorization is not enforced.
func (s *Server) RequireBearerToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token = strings.TrimSpace(token)
	if token == "" {
		s.expectedAuthorization = ""
		return
	}
	s.expectedAuthorization = "Bearer " + token
}

// FailNext makes the next n contact requests fail with status.
func (s *Server) FailNext(n int, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.failures = append(s.failures, status)
	}
}

// SetLatency delays every contact response.
func (s *Server) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// Handler returns an http.Handler that serves the mock API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/contacts/", s.handleContact)
	return mux
}

// Calls returns a snapshot of calls made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path})
	expected := s.expectedAuthorization
	latency := s.latency
	failStatus := 0
	if len(s.failures) > 0 {
		failStatus = s.failures[0]
		s.failures = s.failures[1:]
	}
	s.mu.Unlock()

	if expected != "" && r.Header.Get("Authorization") != expected {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid bearer token")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "only GET is supported")
		return
	}
	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-r.Context().Done():
			return
		}
	}
	if failStatus != 0 {
		writeError(w, failStatus, "Scripted", "scripted failure")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/contacts/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "NotFound", "unknown route")
		return
	}

	s.mu.Lock()
	c, ok := s.contacts[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "ContactNotFound", "contact "+id+" not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"contact": c})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":     code,
		"message":   message,
		"requestId": fmt.Sprintf("req-%d", time.Now().UnixNano()),
	})
}
