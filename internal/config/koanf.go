// Lanwarden - Smart Environment Security Monitoring and Attack Detection
// Copyright 2026 Lanwarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lanwarden/lanwarden

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists config file locations in priority order.
// The first file found is used.
var DefaultConfigPaths = []string{
	"lanwarden.yaml",
	"lanwarden.yml",
	"/etc/lanwarden/config.yaml",
	"/etc/lanwarden/config.yml",
}

// ConfigPathEnvVar overrides the config file search.
const ConfigPathEnvVar = "LANWARDEN_CONFIG"

// envPrefix namespaces lanwarden environment variables.
const envPrefix = "LANWARDEN_"

// Load builds the configuration from defaults, an optional YAML file,
// and LANWARDEN_* environment variables, in that order.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile returns the first readable config file path.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransform maps LANWARDEN_* variables to config paths. Unmapped
// variables are skipped so stray environment noise cannot leak into
// the configuration.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))

	mappings := map[string]string{
		"host":         "server.host",
		"port":         "server.port",
		"http_timeout": "server.timeout",
		"cors_origins": "server.cors_origins",

		"device_api_key":      "security.device_api_key",
		"admin_username":      "security.admin_username",
		"admin_password_hash": "security.admin_password_hash",
		"jwt_secret":          "security.jwt_secret",
		"token_expires":       "security.token_expires",
		"rate_limit_requests": "security.rate_limit_reqs",
		"rate_limit_window":   "security.rate_limit_window",
		"disable_rate_limit":  "security.rate_limit_disabled",

		"drain_timeout": "dispatcher.drain_timeout",

		"audit_path":           "audit.path",
		"audit_retention":      "audit.retention",
		"audit_sweep_interval": "audit.sweep_interval",

		"webhook_url":               "alerting.webhook_url",
		"webhook_enabled":           "alerting.webhook_enabled",
		"webhook_rate":              "alerting.webhook_rate",
		"webhook_burst":             "alerting.webhook_burst",
		"webhook_failure_threshold": "alerting.failure_threshold",
		"webhook_breaker_timeout":   "alerting.breaker_timeout",

		"log_level":  "logging.level",
		"log_format": "logging.format",
	}

	if mapped, ok := mappings[key]; ok {
		return mapped
	}
	return ""
}

// sliceConfigPaths are fields that arrive from the environment as
// comma-separated strings but unmarshal as slices.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("config: set %s: %w", path, err)
			}
		}
	}
	return nil
}
