package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/shpitdev/appointment-contact-resolver/internal/crm/mockcrm"
)

func main() {
	addr := defaultString("MOCK_CRM_ADDR", ":8080")
	seed := defaultString("MOCK_CRM_SEED", "/data/contacts.json")
	token := defaultString("MOCK_CRM_TOKEN", "")
	latency := defaultString("MOCK_CRM_LATENCY", "")

	fs := flag.NewFlagSet("mock-crm", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address")
	fs.StringVar(&seed, "seed", seed, "JSON file with an array of contacts to serve")
	fs.StringVar(&token, "token", token, "Bearer token to require (empty disables auth)")
	fs.StringVar(&latency, "latency", latency, "Artificial per-request latency, e.g. 200ms")
	_ = fs.Parse(os.Args[1:])

	srv := mockcrm.New()
	n, err := srv.LoadJSON(seed)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load seed: %v\n", err)
		os.Exit(2)
	}
	if token != "" {
		srv.RequireBearerToken(token)
	}
	if latency != "" {
		d, err := time.ParseDuration(latency)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "invalid MOCK_CRM_LATENCY=%q: %v\n", latency, err)
			os.Exit(2)
		}
		srv.SetLatency(d)
	}

	_, _ = fmt.Fprintf(os.Stdout, "mock-crm listening on %s (contacts=%d seed=%s)\n", addr, n, seed)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
