// Lanwarden - Smart Environment Security Monitoring and Attack Detection
// Copyright 2026 Lanwarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lanwarden/lanwarden

// Package main is the entry point for the Lanwarden server.
//
// Lanwarden watches a smart environment (LAN-connected devices such as
// thermostats, locks, cameras) for signs of attack. Devices submit
// security events over HTTP; each device gets a dedicated worker that
// runs the event through a chain of stateful detection rules. Verdicts
// fan out to an append-only audit store, a webhook notifier and live
// websocket subscribers.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: defaults, optional YAML file, LANWARDEN_ env vars (Koanf v2)
//  2. Detection registry: known actors, devices and monitored commands
//  3. Audit store: BadgerDB append-only verdict log with retention sweep
//  4. Alerting: watermill verdict bus, webhook notifier, websocket hub
//  5. Dispatcher: per-device workers feeding verdicts into the bus
//  6. Authentication: device API key, admin JWT, casbin RBAC
//  7. HTTP server: ingestion and management API
//
// All long-running components run under a suture supervision tree.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): LANWARDEN_ environment variables, a config file
// (lanwarden.yaml or LANWARDEN_CONFIG), then built-in defaults.
//
// Minimum production settings:
//   - LANWARDEN_DEVICE_API_KEY: static key devices present on ingestion
//   - LANWARDEN_JWT_SECRET: 32+ character secret for admin tokens
//   - LANWARDEN_ADMIN_USERNAME / LANWARDEN_ADMIN_PASSWORD_HASH: bcrypt
//     hash gating the token endpoint
//
// # Signal Handling
//
// On SIGINT or SIGTERM the server stops accepting requests, drains
// per-device worker queues within the configured drain timeout, then
// closes the alerting bus and audit store.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/lanwarden/lanwarden/internal/alerting"
	"github.com/lanwarden/lanwarden/internal/api"
	"github.com/lanwarden/lanwarden/internal/audit"
	"github.com/lanwarden/lanwarden/internal/auth"
	"github.com/lanwarden/lanwarden/internal/authz"
	"github.com/lanwarden/lanwarden/internal/config"
	"github.com/lanwarden/lanwarden/internal/detection"
	"github.com/lanwarden/lanwarden/internal/dispatch"
	"github.com/lanwarden/lanwarden/internal/logging"
	"github.com/lanwarden/lanwarden/internal/supervisor"
	ws "github.com/lanwarden/lanwarden/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	logging.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("audit_path", cfg.Audit.Path).
		Bool("webhook_enabled", cfg.Alerting.WebhookEnabled).
		Msg("Starting Lanwarden")

	// Detection state shared across workers.
	registry := detection.NewRegistry()
	flag := detection.NewFlag()

	// Audit store for every verdict record.
	store, err := audit.Open(audit.Config{
		Path:          cfg.Audit.Path,
		Retention:     cfg.Audit.Retention,
		SweepInterval: cfg.Audit.SweepInterval,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open audit store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing audit store")
		}
	}()

	// Alerting: bus with audit, webhook and websocket consumers.
	hub := ws.NewHub()
	notifier := alerting.NewWebhookNotifier(alerting.WebhookConfig{
		URL:              cfg.Alerting.WebhookURL,
		Enabled:          cfg.Alerting.WebhookEnabled,
		RatePerSecond:    cfg.Alerting.WebhookRate,
		Burst:            cfg.Alerting.WebhookBurst,
		FailureThreshold: cfg.Alerting.FailureThreshold,
		BreakerTimeout:   cfg.Alerting.BreakerTimeout,
	})

	bus, err := alerting.NewBus(alerting.DefaultBusConfig(), nil)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create verdict bus")
	}
	bus.AttachAuditStore(store)
	bus.AttachBroadcaster(hub)
	if notifier.Enabled() {
		bus.AttachWebhook(notifier)
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing verdict bus")
		}
	}()

	// Dispatcher delivers every verdict to the bus.
	dispatcher := dispatch.New(registry, flag, bus.Sink(), dispatch.Config{
		DrainTimeout: cfg.Dispatcher.DrainTimeout,
	})

	// Admin authentication. Disabled unless fully configured.
	var jwtManager *auth.JWTManager
	var creds *auth.Credentials
	if cfg.Security.JWTSecret != "" {
		jwtManager, err = auth.NewJWTManager(cfg.Security.JWTSecret, cfg.Security.TokenExpires)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
		}
		creds = auth.NewCredentials(cfg.Security.AdminUsername, cfg.Security.AdminPasswordHash)
	} else {
		logging.Warn().Msg("JWT secret not configured - admin API is disabled")
	}

	enforcer, err := authz.NewEnforcer(authz.Config{})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize authorization enforcer")
	}

	// HTTP surface.
	handlers := api.NewHandlers(dispatcher, registry, flag, store, hub, jwtManager, creds, cfg.Dispatcher.DrainTimeout)
	mw := api.NewMiddleware(api.MiddlewareConfig{
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
		RateLimitRequests:  cfg.Security.RateLimitReqs,
		RateLimitWindow:    cfg.Security.RateLimitWindow,
		RateLimitDisabled:  cfg.Security.RateLimitDisabled,
		DeviceAPIKey:       cfg.Security.DeviceAPIKey,
	}, jwtManager, enforcer)
	server := api.NewServer(api.ServerConfig{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		Timeout: cfg.Server.Timeout,
	}, api.NewRouter(handlers, mw).Setup())

	// Supervision tree. sutureslog consumes the slog adapter backed by
	// the zerolog logger.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddDetectionService(dispatcher)
	tree.AddDetectionService(store)
	tree.AddAlertingService(bus)
	tree.AddAlertingService(hub)
	tree.AddAPIService(server)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr()).Msg("Supervision tree starting")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervision tree terminated")
		os.Exit(1)
	}

	// Drain outstanding events before the deferred store/bus close.
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Dispatcher.DrainTimeout)
	defer cancel()
	if drained := dispatcher.Shutdown(drainCtx); !drained {
		logging.Warn().Msg("Dispatcher drain incomplete at shutdown")
	}

	logging.Info().Msg("Lanwarden stopped")
}
