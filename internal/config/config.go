// Lanwarden - Smart Environment Security Monitoring and Attack Detection
// Copyright 2026 Lanwarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lanwarden/lanwarden

// Package config loads layered configuration: built-in defaults, an
// optional YAML file, then environment variables. Precedence is
// ENV > file > defaults.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Security   SecurityConfig   `koanf:"security"`
	Dispatcher DispatcherConfig `koanf:"dispatcher"`
	Audit      AuditConfig      `koanf:"audit"`
	Alerting   AlertingConfig   `koanf:"alerting"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	CORSOrigins []string      `koanf:"cors_origins"`
}

// SecurityConfig holds authentication and rate limiting settings.
type SecurityConfig struct {
	// DeviceAPIKey authenticates device event submissions.
	DeviceAPIKey string `koanf:"device_api_key"`

	// AdminUsername and AdminPasswordHash (bcrypt) gate the admin
	// token endpoint.
	AdminUsername     string `koanf:"admin_username"`
	AdminPasswordHash string `koanf:"admin_password_hash"`

	JWTSecret    string        `koanf:"jwt_secret"`
	TokenExpires time.Duration `koanf:"token_expires"`

	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// DispatcherConfig tunes the per-device worker pool.
type DispatcherConfig struct {
	DrainTimeout time.Duration `koanf:"drain_timeout"`
}

// AuditConfig holds audit store settings.
type AuditConfig struct {
	Path          string        `koanf:"path"`
	Retention     time.Duration `koanf:"retention"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// AlertingConfig holds verdict fan-out settings.
type AlertingConfig struct {
	WebhookURL       string        `koanf:"webhook_url"`
	WebhookEnabled   bool          `koanf:"webhook_enabled"`
	WebhookRate      float64       `koanf:"webhook_rate"`
	WebhookBurst     int           `koanf:"webhook_burst"`
	FailureThreshold uint32        `koanf:"failure_threshold"`
	BreakerTimeout   time.Duration `koanf:"breaker_timeout"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// defaultConfig returns the built-in defaults, applied before the
// config file and environment layers.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8742,
			Timeout:     30 * time.Second,
			CORSOrigins: []string{"*"},
		},
		Security: SecurityConfig{
			TokenExpires:    24 * time.Hour,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Dispatcher: DispatcherConfig{
			DrainTimeout: 10 * time.Second,
		},
		Audit: AuditConfig{
			Path:          "/data/lanwarden/audit",
			Retention:     90 * 24 * time.Hour,
			SweepInterval: time.Hour,
		},
		Alerting: AlertingConfig{
			WebhookEnabled:   false,
			WebhookRate:      2,
			WebhookBurst:     5,
			FailureThreshold: 5,
			BreakerTimeout:   30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks settings that would otherwise fail at first use.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("config: server.timeout must be positive")
	}
	if c.Security.JWTSecret != "" && len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("config: security.jwt_secret must be at least 32 bytes")
	}
	if c.Security.TokenExpires <= 0 {
		return fmt.Errorf("config: security.token_expires must be positive")
	}
	if c.Dispatcher.DrainTimeout <= 0 {
		return fmt.Errorf("config: dispatcher.drain_timeout must be positive")
	}
	if c.Audit.Path == "" {
		return fmt.Errorf("config: audit.path must be set")
	}
	if c.Alerting.WebhookEnabled && c.Alerting.WebhookURL == "" {
		return fmt.Errorf("config: alerting.webhook_url required when webhook is enabled")
	}
	return nil
}
