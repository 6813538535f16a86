package config

import (
	"testing"
	"time"
)

func TestLoadClientDefaults(t *testing.T) {
	t.Setenv("MEMBERCHAT_SERVER", "")
	t.Setenv("SEARCH_DEBOUNCE_MS", "")
	cfg := LoadClient("does-not-exist.env")
	if cfg.ServerURL != "http://localhost:8080" {
		t.Errorf("unexpected server url %q", cfg.ServerURL)
	}
	if cfg.SearchDebounce != 300*time.Millisecond {
		t.Errorf("unexpected debounce %v", cfg.SearchDebounce)
	}
}

func TestLoadServerOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("TOKEN_HOURS", "2")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test,")
	t.Setenv("MAX_CONNECTIONS_PER_IP", "not-a-number")
	cfg := LoadServer("does-not-exist.env")
	if cfg.Port != "9999" {
		t.Errorf("expected port 9999, got %q", cfg.Port)
	}
	if cfg.TokenMaxAge != 2*time.Hour {
		t.Errorf("expected 2h token age, got %v", cfg.TokenMaxAge)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.test" {
		t.Errorf("unexpected origins %v", cfg.CORSOrigins)
	}
	if cfg.MaxConnsPerIP != 10 {
		t.Errorf("expected fallback of 10 conns, got %d", cfg.MaxConnsPerIP)
	}
}
