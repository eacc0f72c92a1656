package main

import (
	"errors"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(nil, envMap(nil))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Host != "::1" {
		t.Errorf("Host = %q", cfg.Host)
	}
	if cfg.BackendURL != "http://[::1]:3000" {
		t.Errorf("BackendURL = %q", cfg.BackendURL)
	}
	if cfg.Width != 1200 || cfg.Height != 1697 {
		t.Errorf("viewport = %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.NavigationTimeout != 30*time.Second {
		t.Errorf("NavigationTimeout = %v", cfg.NavigationTimeout)
	}
	if cfg.MaxConcurrent != 0 {
		t.Errorf("MaxConcurrent = %d", cfg.MaxConcurrent)
	}
	if cfg.Credentials() != nil {
		t.Errorf("expected no credentials by default")
	}
	if cfg.Addr() != "[::1]:8686" {
		t.Errorf("Addr = %q", cfg.Addr())
	}
}

func TestLoadConfigEnvAndFlags(t *testing.T) {
	env := envMap(map[string]string{
		"GRAFANA_PDF_BIND_PORT":      "9000",
		"GRAFANA_PDF_BIND_HOST":      "0.0.0.0",
		"GRAFANA_PDF_BACKEND_URL":    "https://grafana.example.com/",
		"GRAFANA_PDF_BACKEND_USER":   "viewer",
		"GRAFANA_PDF_BACKEND_PASS":   "secret",
		"GRAFANA_PDF_CHROME_PATH":    "/usr/bin/chromium",
		"GRAFANA_PDF_WIDTH":          "1600",
		"GRAFANA_PDF_NAV_TIMEOUT":    "45s",
		"GRAFANA_PDF_MAX_CONCURRENT": "4",
		"GRAFANA_PDF_DEBUG":          "true",
	})

	cfg, err := LoadConfig([]string{"--port", "9100", "--height", "900"}, env)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Port != "9100" {
		t.Errorf("flag should win over env, Port = %q", cfg.Port)
	}
	if cfg.Addr() != "0.0.0.0:9100" {
		t.Errorf("Addr = %q", cfg.Addr())
	}
	if cfg.BackendURL != "https://grafana.example.com" {
		t.Errorf("trailing slash not trimmed: %q", cfg.BackendURL)
	}
	if cfg.Width != 1600 || cfg.Height != 900 {
		t.Errorf("viewport = %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.ChromePath != "/usr/bin/chromium" {
		t.Errorf("ChromePath = %q", cfg.ChromePath)
	}
	if cfg.NavigationTimeout != 45*time.Second {
		t.Errorf("NavigationTimeout = %v", cfg.NavigationTimeout)
	}
	if cfg.MaxConcurrent != 4 || !cfg.Debug {
		t.Errorf("MaxConcurrent = %d, Debug = %v", cfg.MaxConcurrent, cfg.Debug)
	}

	creds := cfg.Credentials()
	if creds == nil || creds.Username != "viewer" || creds.Password != "secret" {
		t.Errorf("Credentials = %+v", creds)
	}
}

func TestConfigCredentialsNeedBoth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BackendUser = "viewer"
	if cfg.Credentials() != nil {
		t.Error("user without password should not produce credentials")
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		env     map[string]string
		wantErr error
	}{
		{
			name:    "backend without scheme",
			env:     map[string]string{"GRAFANA_PDF_BACKEND_URL": "grafana:3000"},
			wantErr: ErrInvalidBackendURL,
		},
		{
			name:    "ftp backend",
			args:    []string{"--backend-url", "ftp://grafana"},
			wantErr: ErrInvalidBackendURL,
		},
		{
			name:    "zero width",
			args:    []string{"--width", "0"},
			wantErr: ErrInvalidViewport,
		},
		{
			name:    "negative concurrency",
			args:    []string{"--max-concurrent", "-1"},
			wantErr: ErrInvalidConcurrent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(tt.args, envMap(tt.env))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadConfigBadEnvValue(t *testing.T) {
	tests := map[string]string{
		"GRAFANA_PDF_WIDTH":       "wide",
		"GRAFANA_PDF_NAV_TIMEOUT": "soon",
		"GRAFANA_PDF_DEBUG":       "maybe",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			if _, err := LoadConfig(nil, envMap(map[string]string{key: value})); err == nil {
				t.Errorf("expected error for %s=%q", key, value)
			}
		})
	}
}
