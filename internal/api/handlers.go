// Lanwarden - Smart Environment Security Monitoring and Attack Detection
// Copyright 2026 Lanwarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lanwarden/lanwarden

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"

	"github.com/lanwarden/lanwarden/internal/audit"
	"github.com/lanwarden/lanwarden/internal/auth"
	"github.com/lanwarden/lanwarden/internal/detection"
	"github.com/lanwarden/lanwarden/internal/dispatch"
	"github.com/lanwarden/lanwarden/internal/logging"
	"github.com/lanwarden/lanwarden/internal/websocket"
)

const (
	maxRequestBody    = 1 << 20 // 1 MiB
	defaultAlertLimit = 50
	maxAlertLimit     = 1000
)

// Handlers holds the dependencies for all HTTP handlers.
type Handlers struct {
	dispatcher   *dispatch.Dispatcher
	registry     *detection.Registry
	flag         *detection.Flag
	store        *audit.Store
	hub          *websocket.Hub
	jwt          *auth.JWTManager
	creds        *auth.Credentials
	drainTimeout time.Duration

	upgrader gorillaws.Upgrader
}

// NewHandlers creates the handler set. store, hub, jwt and creds may
// be nil when the corresponding subsystem is disabled.
func NewHandlers(
	dispatcher *dispatch.Dispatcher,
	registry *detection.Registry,
	flag *detection.Flag,
	store *audit.Store,
	hub *websocket.Hub,
	jwtManager *auth.JWTManager,
	creds *auth.Credentials,
	drainTimeout time.Duration,
) *Handlers {
	if drainTimeout <= 0 {
		drainTimeout = 10 * time.Second
	}
	return &Handlers{
		dispatcher:   dispatcher,
		registry:     registry,
		flag:         flag,
		store:        store,
		hub:          hub,
		jwt:          jwtManager,
		creds:        creds,
		drainTimeout: drainTimeout,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy is enforced by the CORS middleware; the
			// upgrade itself accepts any origin that got this far.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// decodeJSON decodes and validates a request body into dst. It writes
// the error response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	rw := NewResponseWriter(w, r)

	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		rw.BadRequest("Invalid JSON body: " + err.Error())
		return false
	}

	if err := validate.Struct(dst); err != nil {
		rw.ValidationError("Request validation failed", validationDetails(err))
		return false
	}
	return true
}

// SubmitEvent accepts a device event and hands it to the dispatcher.
// Responds 202: evaluation happens asynchronously on the device worker.
func (h *Handlers) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	var req SubmitEventRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	event := req.ToEvent(time.Now().UTC())
	if err := h.dispatcher.Submit(event); err != nil {
		if errors.Is(err, dispatch.ErrClosed) {
			NewResponseWriter(w, r).ServiceUnavailable("Dispatcher is shutting down")
			return
		}
		logging.Error().Err(err).Str("device", event.OriginAddress).Msg("Event submission failed")
		NewResponseWriter(w, r).InternalError("Event submission failed")
		return
	}

	NewResponseWriter(w, r).Accepted(map[string]any{
		"event_id":    event.ID,
		"queue_depth": h.dispatcher.QueueDepth(event.OriginAddress),
	})
}

// StatusResponse reports the environment's security state.
type StatusResponse struct {
	UnderAttack     bool           `json:"under_attack"`
	EventsSubmitted int64          `json:"events_submitted"`
	EventsProcessed int64          `json:"events_processed"`
	ActiveDevices   int            `json:"active_devices"`
	TotalQueueDepth int            `json:"total_queue_depth"`
	QueueDepths     map[string]int `json:"queue_depths"`
}

// Status reports the suspicious flag and dispatcher counters.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(StatusResponse{
		UnderAttack:     h.flag.IsSet(),
		EventsSubmitted: h.dispatcher.EventsSubmitted(),
		EventsProcessed: h.dispatcher.EventsProcessed(),
		ActiveDevices:   h.dispatcher.WorkerCount(),
		TotalQueueDepth: h.dispatcher.TotalQueueDepth(),
		QueueDepths:     h.dispatcher.QueueDepths(),
	})
}

// ClearStatus explicitly clears the suspicious flag.
func (h *Handlers) ClearStatus(w http.ResponseWriter, r *http.Request) {
	h.flag.Clear()
	logging.Info().Str("component", "api").Msg("Suspicious flag cleared")

	if h.hub != nil {
		h.hub.BroadcastStatus(false, h.dispatcher.WorkerCount())
	}
	NewResponseWriter(w, r).Success(map[string]any{"under_attack": false})
}

// ConfigureActors registers actors with their maximum privilege.
func (h *Handlers) ConfigureActors(w http.ResponseWriter, r *http.Request) {
	var req ActorsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	for _, actor := range req.Actors {
		h.registry.SetActor(actor.ActorID, detection.Role(actor.MaxPrivilege))
	}
	logging.Info().Int("count", len(req.Actors)).Msg("Actors registered")

	NewResponseWriter(w, r).Success(map[string]any{"registered": len(req.Actors)})
}

// ConfigureDevices registers device addresses with their types.
func (h *Handlers) ConfigureDevices(w http.ResponseWriter, r *http.Request) {
	var req DevicesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	for _, device := range req.Devices {
		h.registry.SetDevice(device.Address, device.DeviceType)
	}
	logging.Info().Int("count", len(req.Devices)).Msg("Devices registered")

	NewResponseWriter(w, r).Success(map[string]any{"registered": len(req.Devices)})
}

// ConfigureCommands replaces the monitored command list.
func (h *Handlers) ConfigureCommands(w http.ResponseWriter, r *http.Request) {
	var req CommandsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	h.registry.SetMonitoredCommands(req.Commands)
	logging.Info().Int("count", len(req.Commands)).Msg("Monitored commands replaced")

	NewResponseWriter(w, r).Success(map[string]any{"monitored": len(req.Commands)})
}

// ConfigStats reports registry table sizes.
func (h *Handlers) ConfigStats(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.registry.Stats())
}

// Alerts returns recent suspicious verdicts from the audit store.
func (h *Handlers) Alerts(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.store == nil {
		rw.ServiceUnavailable("Audit store is not available")
		return
	}

	limit := defaultAlertLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxAlertLimit {
			rw.BadRequest("limit must be an integer between 1 and " + strconv.Itoa(maxAlertLimit))
			return
		}
		limit = parsed
	}

	records, err := h.store.Recent(limit, true)
	if err != nil {
		logging.Error().Err(err).Msg("Alert query failed")
		rw.InternalError("Alert query failed")
		return
	}
	if records == nil {
		records = []dispatch.Record{}
	}

	rw.Success(map[string]any{
		"alerts": records,
		"count":  len(records),
	})
}

// AlertStats reports audit store totals.
func (h *Handlers) AlertStats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.store == nil {
		rw.ServiceUnavailable("Audit store is not available")
		return
	}

	stats, err := h.store.Stats()
	if err != nil {
		logging.Error().Err(err).Msg("Audit stats failed")
		rw.InternalError("Audit stats failed")
		return
	}
	rw.Success(stats)
}

// AlertStream upgrades the connection and attaches it to the hub for
// live verdict broadcasts.
func (h *Handlers) AlertStream(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		NewResponseWriter(w, r).ServiceUnavailable("Alert streaming is not available")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logging.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Websocket upgrade failed")
		return
	}

	client := websocket.NewClient(h.hub, conn)
	h.hub.Register <- client
	client.Start()
}

// Shutdown drains the dispatcher within the configured deadline and
// reports whether every worker finished.
func (h *Handlers) Shutdown(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.drainTimeout)
	defer cancel()

	drained := h.dispatcher.Shutdown(ctx)
	logging.Info().Bool("drained", drained).Msg("Dispatcher shutdown requested via API")

	NewResponseWriter(w, r).Success(map[string]any{"drained": drained})
}

// Token exchanges admin credentials for a JWT.
func (h *Handlers) Token(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.creds == nil || h.jwt == nil || !h.creds.Enabled() {
		rw.ServiceUnavailable("Admin authentication is not configured")
		return
	}

	var req TokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.creds.Verify(req.Username, req.Password); err != nil {
		logging.Warn().
			Str("component", "api").
			Str("remote_addr", r.RemoteAddr).
			Msg("Login attempt rejected")
		rw.Unauthorized("Invalid credentials")
		return
	}

	token, err := h.jwt.GenerateToken(req.Username, "admin")
	if err != nil {
		logging.Error().Err(err).Msg("Token generation failed")
		rw.InternalError("Token generation failed")
		return
	}

	rw.Success(TokenResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.jwt.TokenExpiry()),
	})
}

// Health is the liveness endpoint.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		logging.Error().Err(err).Msg("Failed to encode health response")
	}
}
