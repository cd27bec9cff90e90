package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shpitdev/appointment-contact-resolver/internal/app"
	"github.com/shpitdev/appointment-contact-resolver/internal/config"
	"github.com/shpitdev/appointment-contact-resolver/internal/crm"
	"github.com/shpitdev/appointment-contact-resolver/internal/pipeline"
	"github.com/shpitdev/appointment-contact-resolver/internal/review/gemini"
	"github.com/shpitdev/appointment-contact-resolver/internal/store"
	"github.com/shpitdev/appointment-contact-resolver/pkg/pipeline/core"
)

type resolveFlags struct {
	configPath string
	input      string
	output     string

	crmBaseURL    string
	workers       int
	lookupTimeout time.Duration
	rateLimitRPS  float64
	maxRetries    int
	failFast      bool
	review        bool
	geminiModel   string
	storePath     string
	logLevel      string
}

func newResolveCmd() *cobra.Command {
	var f resolveFlags

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a CSV of appointments into a CSV of contacts",
		Long: `Reads appointments (columns: id, title, contact_id, start_time, email, phone;
only title is required) and writes one resolved row per appointment.

Settings come from --config, then environment variables, then flags.

Environment:
  CRM_BASE_URL     Identity store base URL (empty resolves from titles only)
  CRM_TOKEN        Bearer token (or CRM_TOKEN_FILE)
  CRM_CA_PATH      Optional PEM bundle for TLS
  WORKERS          Concurrent resolutions
  LOOKUP_TIMEOUT   Per-lookup timeout, e.g. 3s
  RATE_LIMIT_RPS   Identity store request rate limit, 0 disables
  MAX_RETRIES      Retries for transient identity store failures
  FAIL_FAST        Abort the run on the first review error
  REVIEW_ENABLED   Review heuristic names with Gemini
  GEMINI_API_KEY   Gemini API key (required when review is enabled)
  GEMINI_MODEL     Gemini model name
  STORE_PATH       SQLite file for incremental runs
  LOG_LEVEL        debug, info, warn, error`,
		Example: `  resolver resolve --input appointments.csv --output resolved.csv
  resolver resolve --config resolver.yaml --input in.csv --output out.csv --store rows.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runResolve(cmd, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.configPath, "config", "", "YAML config file")
	fl.StringVar(&f.input, "input", "", "Input CSV file path (must include a 'title' column)")
	fl.StringVar(&f.output, "output", "", "Output CSV file path")
	fl.StringVar(&f.crmBaseURL, "crm-base-url", "", "Identity store base URL (env: CRM_BASE_URL)")
	fl.IntVar(&f.workers, "workers", 0, "Number of concurrent resolutions (env: WORKERS)")
	fl.DurationVar(&f.lookupTimeout, "lookup-timeout", 0, "Per-lookup timeout (env: LOOKUP_TIMEOUT)")
	fl.Float64Var(&f.rateLimitRPS, "rate-limit-rps", 0, "Identity store rate limit (RPS), 0 disables (env: RATE_LIMIT_RPS)")
	fl.IntVar(&f.maxRetries, "max-retries", 0, "Max retries for transient failures (env: MAX_RETRIES)")
	fl.BoolVar(&f.failFast, "fail-fast", false, "Abort on the first review error (env: FAIL_FAST)")
	fl.BoolVar(&f.review, "review", false, "Review heuristic names with Gemini (env: REVIEW_ENABLED)")
	fl.StringVar(&f.geminiModel, "gemini-model", "", "Gemini model name (env: GEMINI_MODEL)")
	fl.StringVar(&f.storePath, "store", "", "SQLite file for incremental runs (env: STORE_PATH)")
	fl.StringVar(&f.logLevel, "log-level", "", "Log level (env: LOG_LEVEL)")
	return cmd
}

func runResolve(cmd *cobra.Command, f resolveFlags) error {
	if strings.TrimSpace(f.input) == "" || strings.TrimSpace(f.output) == "" {
		return configError(fmt.Errorf("resolve requires --input and --output"))
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return configError(err)
	}
	applyFlags(cmd, f, &cfg)
	if err := cfg.Validate(); err != nil {
		return configError(err)
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return configError(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx := cmd.Context()
	deps := app.Deps{Logger: logger}
	outputs := []core.OutputAdapter[pipeline.Row]{app.CSVOutput{Path: f.output}}

	if strings.TrimSpace(cfg.CRM.BaseURL) != "" {
		client, err := crm.NewClient(crm.Config{
			BaseURL:      cfg.CRM.BaseURL,
			Token:        cfg.CRM.Token,
			CAPath:       cfg.CRM.CAPath,
			Timeout:      cfg.CRM.Timeout,
			RateLimitRPS: cfg.CRM.RateLimitRPS,
			MaxRetries:   cfg.CRM.MaxRetries,
			Logger:       logger,
		})
		if err != nil {
			return configError(err)
		}
		deps.Fetcher = client
	} else {
		logger.Warn("no identity store configured; resolving from titles only")
	}

	if cfg.Review.Enabled {
		reviewer, err := gemini.New(ctx, gemini.Config{
			APIKey:     cfg.Review.APIKey,
			Model:      cfg.Review.Model,
			BaseURL:    cfg.Review.BaseURL,
			MaxRetries: cfg.Review.MaxRetries,
		})
		if err != nil {
			return configError(err)
		}
		deps.Reviewer = reviewer
	}

	if path := strings.TrimSpace(cfg.Store.Path); path != "" {
		db, err := store.Open(path)
		if err != nil {
			return runError(err)
		}
		defer func() {
			_ = db.Close()
		}()
		deps.Previous = db
		outputs = append(outputs, app.StoreOutput{DB: db})
	}

	sum, err := app.Run(ctx, app.CSVInput{Path: f.input}, outputs, app.Options{
		Pipeline: pipeline.Options{
			Workers:     cfg.Pipeline.Workers,
			ItemTimeout: cfg.Pipeline.ItemTimeout,
			FailFast:    cfg.Pipeline.FailFast,
		},
		LookupTimeout: cfg.Pipeline.LookupTimeout,
	}, deps)
	if err != nil {
		return runError(err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows (api=%d heuristic=%d unknown=%d cached=%d reviewed=%d) -> %s\n",
		sum.RunID, sum.Rows, sum.APIRows, sum.HeuristicRows, sum.UnknownRows, sum.CachedRows, sum.ReviewedRows, f.output)
	return nil
}

// applyFlags overrides config values with flags the user set explicitly.
func applyFlags(cmd *cobra.Command, f resolveFlags, cfg *config.Config) {
	fl := cmd.Flags()
	if fl.Changed("crm-base-url") {
		cfg.CRM.BaseURL = f.crmBaseURL
	}
	if fl.Changed("workers") {
		cfg.Pipeline.Workers = f.workers
	}
	if fl.Changed("lookup-timeout") {
		cfg.Pipeline.LookupTimeout = f.lookupTimeout
	}
	if fl.Changed("rate-limit-rps") {
		cfg.CRM.RateLimitRPS = f.rateLimitRPS
	}
	if fl.Changed("max-retries") {
		cfg.CRM.MaxRetries = f.maxRetries
	}
	if fl.Changed("fail-fast") {
		cfg.Pipeline.FailFast = f.failFast
	}
	if fl.Changed("review") {
		cfg.Review.Enabled = f.review
	}
	if fl.Changed("gemini-model") {
		cfg.Review.Model = f.geminiModel
	}
	if fl.Changed("store") {
		cfg.Store.Path = f.storePath
	}
	if fl.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
}
