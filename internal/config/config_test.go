package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0600))
	return p
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CRM_BASE_URL", "CRM_TOKEN", "CRM_TOKEN_FILE", "CRM_CA_PATH", "RATE_LIMIT_RPS", "MAX_RETRIES", "CRM_TIMEOUT",
		"WORKERS", "LOOKUP_TIMEOUT", "ITEM_TIMEOUT", "FAIL_FAST", "REVIEW_ENABLED",
		"GEMINI_API_KEY", "GEMINI_MODEL", "GEMINI_BASE_URL", "STORE_PATH", "LOG_LEVEL", "LOG_DEVELOPMENT",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, "resolver.yaml", `
crm:
  base_url: https://crm.example.com/api
  rate_limit_rps: 2.5
  timeout: 4s
pipeline:
  workers: 3
  lookup_timeout: 750ms
review:
  enabled: true
  model: gemini-x
store:
  path: ./rows.db
log:
  level: debug
`)
	clearEnv(t)
	t.Setenv("WORKERS", "7")
	t.Setenv("CRM_TOKEN", " tok ")
	t.Setenv("GEMINI_API_KEY", "key")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://crm.example.com/api", cfg.CRM.BaseURL)
	assert.Equal(t, 2.5, cfg.CRM.RateLimitRPS)
	assert.Equal(t, 4*time.Second, cfg.CRM.Timeout)
	assert.Equal(t, 3, cfg.CRM.MaxRetries)
	assert.Equal(t, "tok", cfg.CRM.Token)
	assert.Equal(t, 7, cfg.Pipeline.Workers)
	assert.Equal(t, 750*time.Millisecond, cfg.Pipeline.LookupTimeout)
	assert.True(t, cfg.Review.Enabled)
	assert.Equal(t, "gemini-x", cfg.Review.Model)
	assert.Equal(t, "key", cfg.Review.APIKey)
	assert.Equal(t, "./rows.db", cfg.Store.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoad_TokenFile(t *testing.T) {
	clearEnv(t)
	tokenPath := writeFile(t, "token", "secret-token\n")
	path := writeFile(t, "resolver.yaml", "crm:\n  token_file: "+tokenPath+"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-token", cfg.CRM.Token)
}

func TestLoad_EnvTokenWinsOverFile(t *testing.T) {
	t.Setenv("CRM_TOKEN", "from-env")
	t.Setenv("CRM_TOKEN_FILE", filepath.Join(t.TempDir(), "missing"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.CRM.Token)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("unknown yaml field", func(t *testing.T) {
		path := writeFile(t, "bad.yaml", "crm:\n  base_ur1: x\n")
		_, err := Load(path)
		require.ErrorContains(t, err, "parse config file")
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.ErrorContains(t, err, "read config file")
	})
	t.Run("bad env int", func(t *testing.T) {
		t.Setenv("WORKERS", "many")
		_, err := Load("")
		require.ErrorContains(t, err, `invalid WORKERS="many"`)
	})
	t.Run("bad env duration", func(t *testing.T) {
		t.Setenv("LOOKUP_TIMEOUT", "soon")
		_, err := Load("")
		require.ErrorContains(t, err, `invalid LOOKUP_TIMEOUT="soon"`)
	})
	t.Run("bad env bool", func(t *testing.T) {
		t.Setenv("FAIL_FAST", "maybe")
		_, err := Load("")
		require.ErrorContains(t, err, `invalid FAIL_FAST="maybe"`)
	})
	t.Run("missing token file", func(t *testing.T) {
		t.Setenv("CRM_TOKEN_FILE", filepath.Join(t.TempDir(), "missing"))
		_, err := Load("")
		require.ErrorContains(t, err, "read CRM_TOKEN_FILE")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "workers", mutate: func(c *Config) { c.Pipeline.Workers = 0 }, want: "invalid WORKERS"},
		{name: "retries", mutate: func(c *Config) { c.CRM.MaxRetries = -1 }, want: "invalid MAX_RETRIES"},
		{name: "rps", mutate: func(c *Config) { c.CRM.RateLimitRPS = -1 }, want: "invalid RATE_LIMIT_RPS"},
		{name: "review key", mutate: func(c *Config) { c.Review.Enabled = true }, want: "GEMINI_API_KEY"},
		{name: "review model", mutate: func(c *Config) {
			c.Review.Enabled = true
			c.Review.APIKey = "k"
			c.Review.Model = " "
		}, want: "GEMINI_MODEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := Log{Level: "debug", Development: true}.NewLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = Log{Level: "loud"}.NewLogger()
	require.ErrorContains(t, err, `invalid LOG_LEVEL="loud"`)
}
