// Lanwarden - Smart Environment Security Monitoring and Attack Detection
// Copyright 2026 Lanwarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lanwarden/lanwarden

// Package metrics exposes Prometheus instrumentation for the detection
// pipeline: ingestion volume, per-rule verdict counts, evaluation
// latency, queue pressure, and delivery of alerts to collaborators.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Dispatch metrics
	EventsSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lanwarden_events_submitted_total",
			Help: "Total number of events accepted by the dispatcher",
		},
	)

	EventsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lanwarden_events_processed_total",
			Help: "Total number of events evaluated by device workers",
		},
	)

	EvaluationPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lanwarden_evaluation_panics_total",
			Help: "Total number of recovered panics during event evaluation",
		},
	)

	DeviceWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lanwarden_device_workers",
			Help: "Current number of per-device evaluation workers",
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lanwarden_queue_depth",
			Help: "Total number of events waiting in device queues",
		},
	)

	// Rule engine metrics
	VerdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanwarden_verdicts_total",
			Help: "Total number of verdicts by rule and classification",
		},
		[]string{"rule", "suspicious"},
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lanwarden_evaluation_duration_seconds",
			Help:    "Duration of single-event rule chain evaluation",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
		},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanwarden_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	// Alerting metrics
	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanwarden_webhook_deliveries_total",
			Help: "Total number of webhook delivery attempts by outcome",
		},
		[]string{"outcome"},
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lanwarden_websocket_clients",
			Help: "Current number of connected alert stream clients",
		},
	)

	AuditRecords = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lanwarden_audit_records_total",
			Help: "Total number of verdict records appended to the audit store",
		},
	)
)
