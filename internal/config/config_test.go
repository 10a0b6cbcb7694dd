package config

import (
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TENANT_ID", "00000000-0000-0000-0000-000000000000")
	t.Setenv("TENANT_NAME", "contoso.onmicrosoft.com")
	t.Setenv("CLIENT_ID", "11111111-1111-1111-1111-111111111111")
	t.Setenv("CLIENT_SECRET", "top-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.AppName != "azuregraph" {
		t.Fatalf("unexpected app name %q", cfg.AppName)
	}
	if cfg.AuthFlow != FlowApplication {
		t.Fatalf("expected default %s flow, got %q", FlowApplication, cfg.AuthFlow)
	}
	if cfg.GraphAPIURL != "https://graph.microsoft.com/v1.0" {
		t.Fatalf("unexpected graph api url %q", cfg.GraphAPIURL)
	}
	if cfg.RequestTimeout != 20*time.Second {
		t.Fatalf("unexpected request timeout %v", cfg.RequestTimeout)
	}
	if cfg.CacheType != "bbolt" {
		t.Fatalf("unexpected cache type %q", cfg.CacheType)
	}
	if cfg.CacheTTL != time.Hour {
		t.Fatalf("unexpected cache ttl %v", cfg.CacheTTL)
	}
	if cfg.CacheCleanupInterval != 12*time.Hour {
		t.Fatalf("unexpected cache cleanup interval %v", cfg.CacheCleanupInterval)
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AUTH_FLOW", FlowDeviceCode)
	t.Setenv("CLIENT_SECRET", "")
	t.Setenv("GRAPH_SCOPES", "openid offline_access User.Read")
	t.Setenv("REQUEST_TIMEOUT_SECONDS", "45")
	t.Setenv("CACHE_TYPE", "sqlite")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.AuthFlow != FlowDeviceCode {
		t.Fatalf("unexpected auth flow %q", cfg.AuthFlow)
	}
	if cfg.RequestTimeout != 45*time.Second {
		t.Fatalf("unexpected request timeout %v", cfg.RequestTimeout)
	}
	if cfg.CacheType != "sqlite" {
		t.Fatalf("unexpected cache type %q", cfg.CacheType)
	}

	scopes := cfg.Scopes()
	if len(scopes) != 3 || scopes[2] != "User.Read" {
		t.Fatalf("unexpected scopes %v", scopes)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing tenant id",
			env:     map[string]string{"TENANT_ID": ""},
			wantErr: "tenant_id is required",
		},
		{
			name:    "missing client id",
			env:     map[string]string{"CLIENT_ID": ""},
			wantErr: "client_id is required",
		},
		{
			name:    "application flow needs secret",
			env:     map[string]string{"CLIENT_SECRET": ""},
			wantErr: "client_secret is required",
		},
		{
			name:    "unknown auth flow",
			env:     map[string]string{"AUTH_FLOW": "magic"},
			wantErr: "unsupported auth_flow",
		},
		{
			name:    "bad timeout",
			env:     map[string]string{"REQUEST_TIMEOUT_SECONDS": "0"},
			wantErr: "request_timeout_seconds",
		},
		{
			name:    "bad rate limit",
			env:     map[string]string{"RATE_LIMIT_PER_SECOND": "-1"},
			wantErr: "rate_limit_per_second",
		},
		{
			name:    "bad cache ttl",
			env:     map[string]string{"CACHE_TTL_SECONDS": "0"},
			wantErr: "cache_ttl_seconds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
