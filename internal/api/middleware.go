// Lanwarden - Smart Environment Security Monitoring and Attack Detection
// Copyright 2026 Lanwarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lanwarden/lanwarden

package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/lanwarden/lanwarden/internal/auth"
	"github.com/lanwarden/lanwarden/internal/authz"
	"github.com/lanwarden/lanwarden/internal/logging"
	"github.com/lanwarden/lanwarden/internal/metrics"
)

// DeviceAPIKeyHeader carries the static ingestion key.
const DeviceAPIKeyHeader = "X-API-Key"

type contextKey string

const claimsContextKey contextKey = "lanwarden.claims"

// ClaimsFromContext returns the validated JWT claims, if any.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	return claims, ok
}

// MiddlewareConfig holds middleware settings derived from the security
// and server config sections.
type MiddlewareConfig struct {
	CORSAllowedOrigins []string

	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitDisabled bool

	DeviceAPIKey string
}

// RateLimitConfig defines rate limit parameters for specific endpoints.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Endpoint-specific rate limits. Auth is strict against credential
// stuffing; ingestion is deliberately generous because a monitored
// device under attack is exactly when events arrive in bulk.
var (
	RateLimitAuth   = RateLimitConfig{Requests: 5, Window: time.Minute}
	RateLimitIngest = RateLimitConfig{Requests: 5000, Window: time.Minute}
	RateLimitHealth = RateLimitConfig{Requests: 1000, Window: time.Minute}
)

// Middleware provides the router's middleware factories.
type Middleware struct {
	config   MiddlewareConfig
	cors     func(http.Handler) http.Handler
	jwt      *auth.JWTManager
	enforcer *authz.Enforcer
}

// NewMiddleware creates the middleware factory. jwtManager and
// enforcer may be nil when admin auth is disabled; protected routes
// then reject every request.
func NewMiddleware(config MiddlewareConfig, jwtManager *auth.JWTManager, enforcer *authz.Enforcer) *Middleware {
	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   config.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", DeviceAPIKeyHeader},
		AllowCredentials: false,
		MaxAge:           86400,
	})

	return &Middleware{
		config:   config,
		cors:     corsHandler,
		jwt:      jwtManager,
		enforcer: enforcer,
	}
}

// CORS returns the go-chi/cors middleware.
func (m *Middleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimit returns the default IP-keyed rate limiter.
func (m *Middleware) RateLimit() func(http.Handler) http.Handler {
	if m.config.RateLimitDisabled {
		return passthrough
	}
	return httprate.Limit(
		m.config.RateLimitRequests,
		m.config.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	)
}

// RateLimitCustom returns an IP-keyed rate limiter with endpoint-specific limits.
func (m *Middleware) RateLimitCustom(config RateLimitConfig) func(http.Handler) http.Handler {
	if m.config.RateLimitDisabled {
		return passthrough
	}
	return httprate.LimitByIP(config.Requests, config.Window)
}

func passthrough(next http.Handler) http.Handler { return next }

// SecurityHeaders adds standard hardening headers to API responses.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// DeviceAuth authenticates device ingestion via the static API key.
// An empty configured key disables ingestion entirely rather than
// leaving it open.
func (m *Middleware) DeviceAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(DeviceAPIKeyHeader)
			if m.config.DeviceAPIKey == "" ||
				subtle.ConstantTimeCompare([]byte(key), []byte(m.config.DeviceAPIKey)) != 1 {
				logging.Warn().
					Str("component", "api").
					Str("remote_addr", r.RemoteAddr).
					Str("path", r.URL.Path).
					Msg("Device authentication failed")
				NewResponseWriter(w, r).Unauthorized("Invalid or missing API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// JWTAuth validates the Bearer token and stores its claims in the
// request context for authorization.
func (m *Middleware) JWTAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.jwt == nil {
				NewResponseWriter(w, r).Unauthorized("Admin authentication is not configured")
				return
			}

			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				NewResponseWriter(w, r).Unauthorized("Missing bearer token")
				return
			}

			claims, err := m.jwt.ValidateToken(token)
			if err != nil {
				logging.Warn().
					Str("component", "api").
					Str("remote_addr", r.RemoteAddr).
					Err(err).
					Msg("Token validation failed")
				NewResponseWriter(w, r).Unauthorized("Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Authorize enforces RBAC for the authenticated role against the
// request path and method. Must follow JWTAuth.
func (m *Middleware) Authorize() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				NewResponseWriter(w, r).Unauthorized("Authentication required")
				return
			}
			if m.enforcer == nil {
				NewResponseWriter(w, r).Forbidden("Authorization is not configured")
				return
			}

			allowed, err := m.enforcer.Enforce(claims.Role, r.URL.Path, r.Method)
			if err != nil {
				logging.Error().Err(err).Msg("Authorization check failed")
				NewResponseWriter(w, r).InternalError("Authorization check failed")
				return
			}
			if !allowed {
				logging.Warn().
					Str("component", "api").
					Str("username", claims.Username).
					Str("role", claims.Role).
					Str("path", r.URL.Path).
					Str("method", r.Method).
					Msg("Access denied")
				NewResponseWriter(w, r).Forbidden("Insufficient privileges")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogging logs each request with status and duration. The chi
// wrapper keeps Hijacker intact for websocket upgrades.
func RequestLogging() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logging.Info().
				Str("component", "api").
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("Request completed")
		})
	}
}

// Metrics records per-endpoint request counts. The chi route pattern
// is used instead of the raw path to bound label cardinality.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			endpoint := chi.RouteContext(r.Context()).RoutePattern()
			if endpoint == "" {
				endpoint = "unmatched"
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			metrics.APIRequestsTotal.WithLabelValues(
				r.Method,
				endpoint,
				strconv.Itoa(status),
			).Inc()
		})
	}
}
