// Lanwarden - Smart Environment Security Monitoring and Attack Detection
// Copyright 2026 Lanwarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lanwarden/lanwarden

package api

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/lanwarden/lanwarden/internal/detection"
)

// validate is the shared validator instance. validator.Validate is
// safe for concurrent use and caches struct metadata.
var validate = validator.New()

// SubmitEventRequest is the device-facing event ingestion payload.
type SubmitEventRequest struct {
	// ID uniquely identifies the event. Generated when omitted.
	ID string `json:"id" validate:"omitempty,max=128"`

	// Kind is the event type, e.g. login_attempt or control_command.
	Kind string `json:"kind" validate:"required,max=64"`

	// ActorRole is the role the reporting actor claims.
	ActorRole string `json:"actor_role" validate:"omitempty,max=32"`

	// ActorID identifies the user who triggered the event.
	ActorID string `json:"actor_id" validate:"omitempty,max=128"`

	// OriginAddress is the reporting device address as sent, verbatim.
	// Malformed addresses are still accepted: format checking is a
	// detection rule, not an ingestion error.
	OriginAddress string `json:"origin_address" validate:"required,max=64"`

	// Timestamp is when the event occurred. Defaults to now.
	Timestamp time.Time `json:"timestamp"`

	// Context carries event-specific fields keyed by name.
	Context map[string]any `json:"context"`
}

// ToEvent converts the request into a detection event, filling defaults.
func (r *SubmitEventRequest) ToEvent(now time.Time) *detection.Event {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = now
	}
	return &detection.Event{
		ID:            r.ID,
		Kind:          detection.EventKind(r.Kind),
		ActorRole:     detection.Role(r.ActorRole),
		ActorID:       r.ActorID,
		OriginAddress: r.OriginAddress,
		Timestamp:     ts,
		Context:       r.Context,
	}
}

// TokenRequest exchanges admin credentials for a JWT.
type TokenRequest struct {
	Username string `json:"username" validate:"required,max=128"`
	Password string `json:"password" validate:"required,max=256"`
}

// TokenResponse carries the issued token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ActorEntry registers one actor with its maximum privilege.
type ActorEntry struct {
	ActorID      string `json:"actor_id" validate:"required,max=128"`
	MaxPrivilege string `json:"max_privilege" validate:"required,oneof=ADMIN MANAGER USER"`
}

// ActorsRequest replaces or extends the known-actor table.
type ActorsRequest struct {
	Actors []ActorEntry `json:"actors" validate:"required,min=1,dive"`
}

// DeviceEntry registers one device address with its type.
type DeviceEntry struct {
	Address    string `json:"address" validate:"required,max=64"`
	DeviceType string `json:"device_type" validate:"required,max=64"`
}

// DevicesRequest replaces or extends the known-device table.
type DevicesRequest struct {
	Devices []DeviceEntry `json:"devices" validate:"required,min=1,dive"`
}

// CommandsRequest sets the monitored command list.
type CommandsRequest struct {
	Commands []string `json:"commands" validate:"required,min=1,dive,required,max=128"`
}

// ValidationFieldError describes a single failed field for clients.
type ValidationFieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Value string `json:"value,omitempty"`
}

// validationDetails converts validator errors into client-facing details.
func validationDetails(err error) []ValidationFieldError {
	var details []ValidationFieldError
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return details
	}
	for _, fe := range validationErrs {
		details = append(details, ValidationFieldError{
			Field: fe.Field(),
			Rule:  fe.Tag(),
			Value: fmt.Sprintf("%v", fe.Value()),
		})
	}
	return details
}
