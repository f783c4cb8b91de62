package config

import (
	"strings"
	"testing"
	"time"
)

var configEnvVars = []string{
	"SERVER_BASE_URL", "SERVER_ADDR", "SERVER_READ_TIMEOUT", "SERVER_WRITE_TIMEOUT",
	"SERVER_IDLE_TIMEOUT", "OAUTH_AUTHORIZATION_SERVERS", "OAUTH_AUDIENCE",
	"OAUTH_JWKS_CACHE_TTL", "OAUTH_CLOCK_SKEW", "MCP_SESSION_TTL",
}

func withEnv(t *testing.T, overrides map[string]string) {
	t.Helper()
	for _, env := range configEnvVars {
		t.Setenv(env, "")
	}
	for k, v := range overrides {
		t.Setenv(k, v)
	}
}

func requiredEnv() map[string]string {
	return map[string]string{
		"SERVER_BASE_URL":             "https://example.com",
		"OAUTH_AUTHORIZATION_SERVERS": "https://auth.example.com",
		"OAUTH_AUDIENCE":              "https://example.com/mcp",
	}
}

func TestLoad_Defaults(t *testing.T) {
	withEnv(t, requiredEnv())
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("default Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.ReadTimeout != 30*time.Second || cfg.WriteTimeout != 30*time.Second || cfg.IdleTimeout != 120*time.Second {
		t.Errorf("default timeouts = %v/%v/%v, want 30s/30s/120s", cfg.ReadTimeout, cfg.WriteTimeout, cfg.IdleTimeout)
	}
	if cfg.BaseURL != "https://example.com" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if len(cfg.AuthorizationServers) != 1 || cfg.AuthorizationServers[0] != "https://auth.example.com" {
		t.Errorf("AuthorizationServers = %v", cfg.AuthorizationServers)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name        string
		missing     string
		errContains string
	}{
		{"missing base url", "SERVER_BASE_URL", "SERVER_BASE_URL"},
		{"missing auth servers", "OAUTH_AUTHORIZATION_SERVERS", "OAUTH_AUTHORIZATION_SERVERS"},
		{"missing audience", "OAUTH_AUDIENCE", "OAUTH_AUDIENCE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := requiredEnv()
			delete(env, tt.missing)
			withEnv(t, env)
			_, err := Load()
			if err == nil {
				t.Fatal("Load() expected an error")
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("Load() error = %q, want to contain %q", err.Error(), tt.errContains)
			}
		})
	}
}

func TestLoad_CustomOverrides(t *testing.T) {
	env := requiredEnv()
	env["SERVER_ADDR"] = ":9000"
	env["SERVER_READ_TIMEOUT"] = "15s"
	env["SERVER_WRITE_TIMEOUT"] = "20s"
	env["SERVER_IDLE_TIMEOUT"] = "60s"
	env["OAUTH_AUTHORIZATION_SERVERS"] = "https://as1.com, https://as2.com,https://as3.com"
	withEnv(t, env)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.Addr != ":9000" {
		t.Errorf("Addr = %q, want :9000", cfg.Addr)
	}
	if cfg.ReadTimeout != 15*time.Second || cfg.WriteTimeout != 20*time.Second || cfg.IdleTimeout != 60*time.Second {
		t.Errorf("timeouts = %v/%v/%v", cfg.ReadTimeout, cfg.WriteTimeout, cfg.IdleTimeout)
	}
	if len(cfg.AuthorizationServers) != 3 || cfg.AuthorizationServers[1] != "https://as2.com" {
		t.Errorf("AuthorizationServers = %v, want 3 trimmed entries", cfg.AuthorizationServers)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	env := requiredEnv()
	env["SERVER_READ_TIMEOUT"] = "not-a-duration"
	withEnv(t, env)

	if _, err := Load(); err == nil {
		t.Fatal("Load() expected an error for an invalid duration")
	}
}
