package redact_test

import (
	"testing"

	"github.com/shpitdev/appointment-contact-resolver/pkg/pipeline/redact"
)

func TestSecrets(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "plain", in: "crm api error: op=getContact status=404", want: "crm api error: op=getContact status=404"},
		{name: "bearer", in: `auth failed: header "Bearer eyJhbGciOi.abc" rejected`, want: `auth failed: header "Bearer <redacted>" rejected`},
		{name: "gemini key kv", in: "config: GEMINI_API_KEY=abc123 invalid", want: "config: <redacted_kv> invalid"},
		{name: "api_key kv", in: "bad api_key=abc123 here", want: "bad <redacted_kv> here"},
		{name: "crm token kv", in: "crm_token: s3cr3t", want: "<redacted_kv>"},
		{name: "query key", in: `Get "https://generativelanguage.googleapis.com/v1?key=AIzaXYZ&alt=json": timeout`, want: `Get "https://generativelanguage.googleapis.com/v1?key=<redacted>&alt=json": timeout`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := redact.Secrets(tt.in); got != tt.want {
				t.Fatalf("Secrets(%q)=%q want=%q", tt.in, got, tt.want)
			}
		})
	}
}
