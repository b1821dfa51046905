// Lanwarden - Smart Environment Security Monitoring and Attack Detection
// Copyright 2026 Lanwarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lanwarden/lanwarden

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router assembles the HTTP surface from handlers and middleware.
type Router struct {
	handlers   *Handlers
	middleware *Middleware
}

// NewRouter creates the router assembly.
func NewRouter(handlers *Handlers, mw *Middleware) *Router {
	return &Router{
		handlers:   handlers,
		middleware: mw,
	}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global stack, applied to every route in order.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.middleware.CORS())
	r.Use(RequestLogging())

	// Operational endpoints: liveness and Prometheus scrape.
	r.Group(func(r chi.Router) {
		r.Use(router.middleware.RateLimitCustom(RateLimitHealth))
		r.Get("/healthz", router.handlers.Health)
		r.Handle("/metrics", promhttp.Handler())
	})

	// Token issuance. Strict rate limit against credential stuffing.
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(router.middleware.RateLimitCustom(RateLimitAuth))
		r.Use(SecurityHeaders())
		r.Use(Metrics())
		r.Post("/token", router.handlers.Token)
	})

	// Device-facing ingestion, authenticated by static API key.
	r.Route("/api/v1/events", func(r chi.Router) {
		r.Use(router.middleware.RateLimitCustom(RateLimitIngest))
		r.Use(SecurityHeaders())
		r.Use(Metrics())
		r.Use(router.middleware.DeviceAuth())
		r.Post("/", router.handlers.SubmitEvent)
	})

	// Management surface, JWT-authenticated and RBAC-enforced.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.middleware.RateLimit())
		r.Use(SecurityHeaders())
		r.Use(Metrics())
		r.Use(router.middleware.JWTAuth())
		r.Use(router.middleware.Authorize())

		r.Get("/status", router.handlers.Status)
		r.Post("/status/clear", router.handlers.ClearStatus)

		r.Post("/config/actors", router.handlers.ConfigureActors)
		r.Post("/config/devices", router.handlers.ConfigureDevices)
		r.Post("/config/commands", router.handlers.ConfigureCommands)
		r.Get("/config/stats", router.handlers.ConfigStats)

		r.Get("/alerts", router.handlers.Alerts)
		r.Get("/alerts/stats", router.handlers.AlertStats)
		r.Get("/alerts/ws", router.handlers.AlertStream)

		r.Post("/shutdown", router.handlers.Shutdown)
	})

	return r
}
