// Lanwarden - Smart Environment Security Monitoring and Attack Detection
// Copyright 2026 Lanwarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lanwarden/lanwarden

package detection

import (
	"strconv"
	"time"
)

// EventKind identifies the type of a reported security event.
type EventKind string

const (
	// EventKindLoginAttempt is a user authentication attempt.
	// Context: "success" (bool).
	EventKindLoginAttempt EventKind = "login_attempt"

	// EventKindControlCommand is a device control operation.
	// Context: "command" (string).
	EventKindControlCommand EventKind = "control_command"

	// EventKindPowerConsumption is a power usage reading.
	// Context: "percent" (number, 0-100).
	EventKindPowerConsumption EventKind = "power_consumption"

	// EventKindPacketSYN is a SYN packet rate report.
	// Context: "rate" (number), "multi_user" (bool).
	EventKindPacketSYN EventKind = "packet_syn"

	// EventKindResourceUsage is a CPU/memory/bandwidth usage sample.
	// Context: "usage" (number, 0.0-1.0).
	EventKindResourceUsage EventKind = "system_resource_usage"

	// EventKindBulkMessages marks receipt of a batch of 10,000 broker
	// messages. The literal name is the wire value devices report.
	EventKindBulkMessages EventKind = "10000_messages_received"
)

// BulkMessageBatchSize is the number of messages each bulk-message
// event represents.
const BulkMessageBatchSize = 10000

// Role is the role an actor claims when triggering an event.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleUser    Role = "USER"
)

// KnownRole reports whether r is one of the three recognized roles.
func KnownRole(r Role) bool {
	return r == RoleAdmin || r == RoleManager || r == RoleUser
}

// Event is a single security-relevant occurrence reported by a device.
// Events are immutable once constructed; the engine never modifies them.
type Event struct {
	// ID uniquely identifies the event for audit correlation.
	ID string `json:"id"`

	// Kind is the type of event being reported.
	Kind EventKind `json:"kind"`

	// ActorRole is the role the reporting actor claims.
	ActorRole Role `json:"actor_role"`

	// ActorID identifies the user who triggered the event.
	ActorID string `json:"actor_id"`

	// OriginAddress is the IPv4 address of the reporting device.
	OriginAddress string `json:"origin_address"`

	// Timestamp is when the event occurred, used for window analysis.
	Timestamp time.Time `json:"timestamp"`

	// Context carries event-specific fields keyed by name.
	Context map[string]any `json:"context,omitempty"`
}

// ContextBool returns the named context field as a bool.
// Missing or non-bool values yield the fallback.
func (e *Event) ContextBool(key string, fallback bool) bool {
	v, ok := e.Context[key]
	if !ok {
		return fallback
	}
	b, ok := v.(bool)
	if !ok {
		return fallback
	}
	return b
}

// ContextString returns the named context field as a string,
// or "" when absent or not a string.
func (e *Event) ContextString(key string) string {
	s, _ := e.Context[key].(string)
	return s
}

// ContextFloat returns the named context field as a float64.
// JSON decoding yields float64 for all numbers, but devices also send
// numeric strings, so those are parsed too. The second return value
// reports whether a usable number was found.
func (e *Event) ContextFloat(key string) (float64, bool) {
	v, ok := e.Context[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
