package config

import (
	"testing"
	"time"
)

func TestValidatePartialGatewayConfig(t *testing.T) {
	cfg := &Config{
		Env:             "development",
		FawaterakAPIURL: "https://staging.fawaterk.com/api/v2",
		// API key missing
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation failure for URL without API key")
	}
}

func TestValidateProductionRequiresSecrets(t *testing.T) {
	cfg := &Config{
		Env:       "production",
		JWTSecret: "super-secret-key-change-me",
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation failure for default JWT secret in production")
	}

	cfg.JWTSecret = "real-secret"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation failure for missing gateway credentials in production")
	}

	cfg.FawaterakAPIURL = "https://app.fawaterk.com/api/v2"
	cfg.FawaterakAPIKey = "key"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid production config, got %v", err)
	}
}

func TestFawaterakConfigured(t *testing.T) {
	cfg := &Config{}
	if cfg.FawaterakConfigured() {
		t.Error("empty config must not report gateway configured")
	}
	cfg.FawaterakAPIURL = "https://app.fawaterk.com/api/v2"
	cfg.FawaterakAPIKey = "key"
	if !cfg.FawaterakConfigured() {
		t.Error("expected gateway configured")
	}
}

func TestParseDurationFallback(t *testing.T) {
	if d := parseDuration("bogus"); d != 15*time.Minute {
		t.Errorf("expected 15m fallback, got %v", d)
	}
	if d := parseDuration("2h"); d != 2*time.Hour {
		t.Errorf("expected 2h, got %v", d)
	}
}

func TestParseStringSlice(t *testing.T) {
	got := parseStringSlice("http://a.com,http://b.com")
	if len(got) != 2 || got[0] != "http://a.com" || got[1] != "http://b.com" {
		t.Errorf("unexpected slice: %v", got)
	}
	if got := parseStringSlice(""); len(got) != 0 {
		t.Errorf("expected empty slice, got %v", got)
	}
}
