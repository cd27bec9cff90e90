// Package config loads resolver settings from an optional YAML file, then
// applies environment overrides. CLI flags are applied last by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Example (YAML):
//
//	crm:
//	  base_url: https://crm.example.com/api
//	  token_file: /run/secrets/crm-token
//	  rate_limit_rps: 5
//	  max_retries: 3
//	  timeout: 10s
//	pipeline:
//	  workers: 8
//	  lookup_timeout: 3s
//	review:
//	  enabled: true
//	  model: gemini-2.5-flash
//	store:
//	  path: ./data/rows.db
//	log:
//	  level: info
type Config struct {
	CRM      CRM      `yaml:"crm"`
	Pipeline Pipeline `yaml:"pipeline"`
	Review   Review   `yaml:"review"`
	Store    Store    `yaml:"store"`
	Log      Log      `yaml:"log"`
}

type CRM struct {
	// BaseURL empty runs title-only resolution.
	BaseURL      string        `yaml:"base_url"`
	TokenFile    string        `yaml:"token_file"`
	CAPath       string        `yaml:"ca_path"`
	RateLimitRPS float64       `yaml:"rate_limit_rps"`
	MaxRetries   int           `yaml:"max_retries"`
	Timeout      time.Duration `yaml:"timeout"`

	// Token is only read from CRM_TOKEN or TokenFile, never from YAML.
	Token string `yaml:"-"`
}

type Pipeline struct {
	Workers       int           `yaml:"workers"`
	LookupTimeout time.Duration `yaml:"lookup_timeout"`
	ItemTimeout   time.Duration `yaml:"item_timeout"`
	FailFast      bool          `yaml:"fail_fast"`
}

type Review struct {
	Enabled    bool   `yaml:"enabled"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	MaxRetries int    `yaml:"max_retries"`

	// APIKey is only read from GEMINI_API_KEY.
	APIKey string `yaml:"-"`
}

type Store struct {
	Path string `yaml:"path"`
}

type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		CRM: CRM{
			MaxRetries: 3,
			Timeout:    10 * time.Second,
		},
		Pipeline: Pipeline{
			Workers:       10,
			LookupTimeout: 5 * time.Second,
			ItemTimeout:   30 * time.Second,
		},
		Review: Review{
			Model:      "gemini-2.5-flash",
			MaxRetries: 2,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads path (if non-empty) over Default(), then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path = strings.TrimSpace(path); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := decode(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.loadSecrets(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(b []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var err error
	envString("CRM_BASE_URL", &cfg.CRM.BaseURL)
	envString("CRM_TOKEN", &cfg.CRM.Token)
	envString("CRM_TOKEN_FILE", &cfg.CRM.TokenFile)
	envString("CRM_CA_PATH", &cfg.CRM.CAPath)
	if cfg.CRM.RateLimitRPS, err = envFloat("RATE_LIMIT_RPS", cfg.CRM.RateLimitRPS); err != nil {
		return err
	}
	if cfg.CRM.MaxRetries, err = envInt("MAX_RETRIES", cfg.CRM.MaxRetries); err != nil {
		return err
	}
	if cfg.CRM.Timeout, err = envDuration("CRM_TIMEOUT", cfg.CRM.Timeout); err != nil {
		return err
	}

	if cfg.Pipeline.Workers, err = envInt("WORKERS", cfg.Pipeline.Workers); err != nil {
		return err
	}
	if cfg.Pipeline.LookupTimeout, err = envDuration("LOOKUP_TIMEOUT", cfg.Pipeline.LookupTimeout); err != nil {
		return err
	}
	if cfg.Pipeline.ItemTimeout, err = envDuration("ITEM_TIMEOUT", cfg.Pipeline.ItemTimeout); err != nil {
		return err
	}
	if cfg.Pipeline.FailFast, err = envBool("FAIL_FAST", cfg.Pipeline.FailFast); err != nil {
		return err
	}

	if cfg.Review.Enabled, err = envBool("REVIEW_ENABLED", cfg.Review.Enabled); err != nil {
		return err
	}
	envString("GEMINI_API_KEY", &cfg.Review.APIKey)
	envString("GEMINI_MODEL", &cfg.Review.Model)
	envString("GEMINI_BASE_URL", &cfg.Review.BaseURL)

	envString("STORE_PATH", &cfg.Store.Path)

	envString("LOG_LEVEL", &cfg.Log.Level)
	if cfg.Log.Development, err = envBool("LOG_DEVELOPMENT", cfg.Log.Development); err != nil {
		return err
	}
	return nil
}

func (c *Config) loadSecrets() error {
	if strings.TrimSpace(c.CRM.Token) != "" || strings.TrimSpace(c.CRM.TokenFile) == "" {
		return nil
	}
	b, err := os.ReadFile(strings.TrimSpace(c.CRM.TokenFile))
	if err != nil {
		return fmt.Errorf("read CRM_TOKEN_FILE: %w", err)
	}
	c.CRM.Token = strings.TrimSpace(string(b))
	return nil
}

// Validate checks the settings after flags are applied.
func (c Config) Validate() error {
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("invalid WORKERS=%d: must be positive", c.Pipeline.Workers)
	}
	if c.Pipeline.LookupTimeout < 0 {
		return fmt.Errorf("invalid LOOKUP_TIMEOUT=%q: must not be negative", c.Pipeline.LookupTimeout)
	}
	if c.CRM.MaxRetries < 0 {
		return fmt.Errorf("invalid MAX_RETRIES=%d: must not be negative", c.CRM.MaxRetries)
	}
	if c.CRM.RateLimitRPS < 0 {
		return fmt.Errorf("invalid RATE_LIMIT_RPS=%v: must not be negative", c.CRM.RateLimitRPS)
	}
	if c.Review.Enabled {
		if strings.TrimSpace(c.Review.APIKey) == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when review is enabled")
		}
		if strings.TrimSpace(c.Review.Model) == "" {
			return fmt.Errorf("GEMINI_MODEL is required when review is enabled")
		}
	}
	return nil
}

func envString(varName string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(varName)); v != "" {
		*dst = v
	}
}

func envInt(varName string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envFloat(varName string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envDuration(varName string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envBool(varName string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}
