package mockcrm_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/shpitdev/appointment-contact-resolver/internal/crm/mockcrm"
)

func get(t *testing.T, url, token string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("decode body %q: %v", string(b), err)
	}
	return resp.StatusCode, doc
}

func TestMockCRM_LoadJSONAndServe(t *testing.T) {
	t.Parallel()

	seed := filepath.Join(t.TempDir(), "contacts.json")
	if err := os.WriteFile(seed, []byte(`[{"id":"abc123","name":"Destiny Smith","email":"d@x.com"}]`), 0644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	srv := mockcrm.New()
	n, err := srv.LoadJSON(seed)
	if err != nil || n != 1 {
		t.Fatalf("LoadJSON n=%d err=%v", n, err)
	}
	srv.RequireBearerToken("dummy-token")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	status, doc := get(t, ts.URL+"/api/v1/contacts/abc123", "dummy-token")
	if status != http.StatusOK {
		t.Fatalf("status=%d doc=%v", status, doc)
	}
	c, _ := doc["contact"].(map[string]any)
	if c["name"] != "Destiny Smith" || c["email"] != "d@x.com" {
		t.Fatalf("unexpected contact: %v", doc)
	}

	status, doc = get(t, ts.URL+"/api/v1/contacts/abc123", "wrong")
	if status != http.StatusUnauthorized || doc["error"] != "Unauthorized" {
		t.Fatalf("expected 401, got %d %v", status, doc)
	}

	status, doc = get(t, ts.URL+"/api/v1/contacts/nope", "dummy-token")
	if status != http.StatusNotFound || doc["error"] != "ContactNotFound" {
		t.Fatalf("expected 404, got %d %v", status, doc)
	}

	if got := len(srv.Calls()); got != 3 {
		t.Fatalf("expected 3 calls, got %d", got)
	}
}

func TestMockCRM_FailNext(t *testing.T) {
	t.Parallel()

	srv := mockcrm.New()
	srv.FailNext(1, http.StatusServiceUnavailable)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	status, _ := get(t, ts.URL+"/api/v1/contacts/x", "")
	if status != http.StatusServiceUnavailable {
		t.Fatalf("expected scripted 503, got %d", status)
	}
	status, _ = get(t, ts.URL+"/api/v1/contacts/x", "")
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 after scripted failure, got %d", status)
	}
}

func TestMockCRM_LoadJSONRejectsMissingID(t *testing.T) {
	t.Parallel()

	seed := filepath.Join(t.TempDir(), "contacts.json")
	if err := os.WriteFile(seed, []byte(`[{"name":"No Id"}]`), 0644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	if _, err := mockcrm.New().LoadJSON(seed); err == nil {
		t.Fatalf("expected error for contact without id")
	}
}
