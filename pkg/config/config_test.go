package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ProbDesk/internal/domain/models"
)

func TestDefaultIsValid(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if c.Alerts.Low != 5 || c.Alerts.Medium != 15 || c.Alerts.High != 30 {
		t.Fatalf("alerts = %+v", c.Alerts)
	}
	if c.Relay.MaxBodyBytes != 1<<20 || c.Cache.TTL != 2*time.Second {
		t.Fatalf("relay/cache defaults = %+v %+v", c.Relay, c.Cache)
	}
	if c.Kafka.SamplesTopic != "probdesk.samples" || len(c.Kafka.Brokers) != 1 {
		t.Fatalf("kafka defaults = %+v", c.Kafka)
	}
}

func TestLoadOverlaysYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
environment: prod
relay:
  upstream_base: https://inference.internal
alerts:
  low: 2
  medium: 4
  high: 8
sink:
  type: sqlite
sqlite:
  path: /tmp/snap.db
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Environment != "prod" || c.Relay.UpstreamBase != "https://inference.internal" {
		t.Fatalf("config = %+v", c)
	}
	if c.Alerts.High != 8 || c.Sink.Type != "sqlite" {
		t.Fatalf("alerts/sink = %+v %+v", c.Alerts, c.Sink)
	}
	// untouched sections keep their defaults
	if c.Server.Port != 8080 || c.History.MaxPoints != 500 {
		t.Fatalf("defaults lost: %+v %+v", c.Server, c.History)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Config)
		field  string
	}{
		"inverted thresholds": {func(c *Config) { c.Alerts = models.AlertThresholds{Low: 10, Medium: 5, High: 30} }, "alerts.medium"},
		"zero low":            {func(c *Config) { c.Alerts.Low = 0 }, "alerts.low"},
		"relative upstream":   {func(c *Config) { c.Relay.UpstreamBase = "localhost:8000" }, "relay.upstream_base"},
		"unknown merge":       {func(c *Config) { c.Divergence.Merge = "first" }, "divergence.merge"},
		"unknown sink":        {func(c *Config) { c.Sink.Type = "postgres" }, "sink.type"},
		"bad timeframe":       {func(c *Config) { c.History.DefaultTimeframe = "2d" }, "history.default_timeframe"},
		"collector no url":    {func(c *Config) { c.Collector.Enabled = true; c.Collector.WebSocketURL = "" }, "collector.websocket_url"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c, err := Default()
			if err != nil {
				t.Fatal(err)
			}
			tc.mutate(c)
			err = c.Validate()
			var cerr *models.ConfigurationError
			if !errors.As(err, &cerr) {
				t.Fatalf("want ConfigurationError, got %v", err)
			}
			if cerr.Field != tc.field {
				t.Fatalf("field = %q, want %q", cerr.Field, tc.field)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	env := map[string]string{
		"PROBDESK_SERVER_PORT":         "9090",
		"PROBDESK_RELAY_UPSTREAM_BASE": "http://ai:8000",
		"PROBDESK_KAFKA_BROKERS":       "k1:9092, k2:9092",
		"PROBDESK_ALERTS_HIGH":         "45",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }
	if err := c.applyEnv(lookup); err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	if c.Server.Port != 9090 || c.Relay.UpstreamBase != "http://ai:8000" || c.Alerts.High != 45 {
		t.Fatalf("config = %+v %+v %+v", c.Server, c.Relay, c.Alerts)
	}
	if len(c.Kafka.Brokers) != 2 || c.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("brokers = %v", c.Kafka.Brokers)
	}

	env["PROBDESK_ALERTS_LOW"] = "abc"
	if err := c.applyEnv(lookup); err == nil {
		t.Fatal("expected error for non-numeric threshold")
	}
}
