// Lanwarden - Smart Environment Security Monitoring and Attack Detection
// Copyright 2026 Lanwarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lanwarden/lanwarden

package alerting

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/lanwarden/lanwarden/internal/dispatch"
	"github.com/lanwarden/lanwarden/internal/logging"
	"github.com/lanwarden/lanwarden/internal/metrics"
)

// WebhookConfig configures the webhook notifier.
type WebhookConfig struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Enabled bool              `json:"enabled"`

	// RatePerSecond caps outbound deliveries. Zero means the default.
	RatePerSecond float64 `json:"rate_per_second"`
	Burst         int     `json:"burst"`

	// FailureThreshold is how many consecutive delivery failures open
	// the circuit breaker. Zero means the default.
	FailureThreshold uint32        `json:"failure_threshold"`
	BreakerTimeout   time.Duration `json:"breaker_timeout"`
	RequestTimeout   time.Duration `json:"request_timeout"`
}

// WebhookPayload is the JSON body sent to the webhook endpoint.
type WebhookPayload struct {
	Alert     dispatch.Record `json:"alert"`
	EventType string          `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
}

// WebhookNotifier delivers alert records to an HTTP endpoint. A rate
// limiter smooths bursts and a circuit breaker stops hammering an
// endpoint that keeps failing.
type WebhookNotifier struct {
	url     string
	headers map[string]string
	enabled bool
	mu      sync.RWMutex

	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewWebhookNotifier creates a webhook notifier from config.
func NewWebhookNotifier(config WebhookConfig) *WebhookNotifier {
	if config.RatePerSecond <= 0 {
		config.RatePerSecond = 2
	}
	if config.Burst <= 0 {
		config.Burst = 5
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.BreakerTimeout <= 0 {
		config.BreakerTimeout = 30 * time.Second
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 10 * time.Second
	}

	headers := make(map[string]string, len(config.Headers))
	for k, v := range config.Headers {
		headers[k] = v
	}

	settings := gobreaker.Settings{
		Name:    "webhook-notifier",
		Timeout: config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("webhook circuit breaker state change")
		},
	}

	return &WebhookNotifier{
		url:     config.URL,
		headers: headers,
		enabled: config.Enabled,
		client:  &http.Client{Timeout: config.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(config.RatePerSecond), config.Burst),
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

// Enabled reports whether the notifier will attempt deliveries.
func (n *WebhookNotifier) Enabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled && n.url != ""
}

// SetEnabled toggles delivery at runtime.
func (n *WebhookNotifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// BreakerState returns the circuit breaker state for status reporting.
func (n *WebhookNotifier) BreakerState() string {
	return n.breaker.State().String()
}

// Send delivers one alert record. Returns nil without delivering when
// the notifier is disabled.
func (n *WebhookNotifier) Send(ctx context.Context, rec dispatch.Record) error {
	n.mu.RLock()
	enabled := n.enabled
	url := n.url
	headers := make(map[string]string, len(n.headers))
	for k, v := range n.headers {
		headers[k] = v
	}
	n.mu.RUnlock()

	if !enabled || url == "" {
		return nil
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("alerting: rate limit wait: %w", err)
	}

	_, err := n.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, n.post(ctx, url, headers, rec)
	})
	if err != nil {
		metrics.WebhookDeliveries.WithLabelValues("failure").Inc()
		return err
	}
	metrics.WebhookDeliveries.WithLabelValues("success").Inc()
	return nil
}

func (n *WebhookNotifier) post(ctx context.Context, url string, headers map[string]string, rec dispatch.Record) error {
	payload := WebhookPayload{
		Alert:     rec,
		EventType: "security_alert",
		Timestamp: time.Now().UTC(),
		Source:    "lanwarden",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("alerting: marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("alerting: create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("alerting: send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("alerting: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
