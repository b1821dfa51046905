// Lanwarden - Smart Environment Security Monitoring and Attack Detection
// Copyright 2026 Lanwarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lanwarden/lanwarden

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8742 {
		t.Errorf("Server.Port = %d, want 8742", cfg.Server.Port)
	}
	if cfg.Server.Timeout != 30*time.Second {
		t.Errorf("Server.Timeout = %v, want 30s", cfg.Server.Timeout)
	}
	if cfg.Dispatcher.DrainTimeout != 10*time.Second {
		t.Errorf("Dispatcher.DrainTimeout = %v, want 10s", cfg.Dispatcher.DrainTimeout)
	}
	if cfg.Audit.Retention != 90*24*time.Hour {
		t.Errorf("Audit.Retention = %v, want 2160h", cfg.Audit.Retention)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Alerting.WebhookEnabled {
		t.Error("Alerting.WebhookEnabled = true by default, want false")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LANWARDEN_PORT", "9000")
	t.Setenv("LANWARDEN_LOG_LEVEL", "debug")
	t.Setenv("LANWARDEN_DEVICE_API_KEY", "device-key-1")
	t.Setenv("LANWARDEN_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Security.DeviceAPIKey != "device-key-1" {
		t.Errorf("Security.DeviceAPIKey = %q, want device-key-1", cfg.Security.DeviceAPIKey)
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[0] != want[0] || cfg.Server.CORSOrigins[1] != want[1] {
		t.Errorf("Server.CORSOrigins = %v, want %v", cfg.Server.CORSOrigins, want)
	}
}

func TestLoad_UnmappedEnvIgnored(t *testing.T) {
	t.Setenv("LANWARDEN_BOGUS_SETTING", "whatever")

	if _, err := Load(); err != nil {
		t.Fatalf("Load() error = %v with unmapped env var", err)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := strings.Join([]string{
		"server:",
		"  port: 7777",
		"audit:",
		"  path: /tmp/audit-test",
		"alerting:",
		"  webhook_enabled: true",
		"  webhook_url: https://hooks.example/lanwarden",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("LANWARDEN_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("Server.Port = %d, want 7777", cfg.Server.Port)
	}
	if cfg.Audit.Path != "/tmp/audit-test" {
		t.Errorf("Audit.Path = %q, want /tmp/audit-test", cfg.Audit.Path)
	}
	if !cfg.Alerting.WebhookEnabled {
		t.Error("Alerting.WebhookEnabled = false, want true")
	}
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 7777\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("LANWARDEN_CONFIG", path)
	t.Setenv("LANWARDEN_PORT", "8888")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8888 {
		t.Errorf("Server.Port = %d, want env override 8888", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(c *Config) {}, false},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, true},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, true},
		{"short jwt secret", func(c *Config) { c.Security.JWTSecret = "short" }, true},
		{"long jwt secret", func(c *Config) {
			c.Security.JWTSecret = strings.Repeat("s", 32)
		}, false},
		{"zero drain timeout", func(c *Config) { c.Dispatcher.DrainTimeout = 0 }, true},
		{"empty audit path", func(c *Config) { c.Audit.Path = "" }, true},
		{"webhook enabled without url", func(c *Config) {
			c.Alerting.WebhookEnabled = true
			c.Alerting.WebhookURL = ""
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
