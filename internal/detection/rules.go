// Lanwarden - Smart Environment Security Monitoring and Attack Detection
// Copyright 2026 Lanwarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lanwarden/lanwarden

// Package detection implements the stateful rule evaluator at the core
// of Lanwarden. One RuleEngine instance exists per reporting device and
// evaluates that device's events strictly sequentially, so the sliding
// windows it owns need no locking. The engine consults the shared
// Registry (immutable snapshots) and raises the shared suspicious Flag.
package detection

import (
	"math"
	"net/netip"
	"time"
)

// Detection thresholds. These are fixed policy constants, not tunables.
const (
	// FailedLoginLimit is the failed-login count above which a brute
	// force attack is declared, within FailedLoginWindow per actor.
	FailedLoginLimit  = 5
	FailedLoginWindow = 60 * time.Second

	// CommandBurstLimit is the monitored-command count above which
	// command abuse is declared, within CommandBurstWindow per actor.
	// ADMIN actors are unconditionally exempt.
	CommandBurstLimit  = 3
	CommandBurstWindow = 30 * time.Second

	// PowerWindow bounds the baseline history for power readings.
	// PowerMinSamples prior readings are required before a reading is
	// judged; a reading above PowerSpikeRatio times the baseline mean
	// is an anomaly.
	PowerWindow     = 5 * time.Minute
	PowerMinSamples = 5
	PowerSpikeRatio = 1.5

	// SYNFloodRate is the packets-per-second rate above which a SYN
	// flood is declared.
	SYNFloodRate = 100

	// ResourceHighUsage is the per-sample usage floor for the
	// exhaustion rule; the rule fires when the window holds
	// ResourceWindowSeconds samples all at or above it.
	ResourceHighUsage     = 0.80
	ResourceWindow        = 90 * time.Second
	ResourceWindowSeconds = 90

	// MessageFloodEvents bulk-message batches within MessageFloodWindow
	// constitute a flood (>= 20,000 messages).
	MessageFloodEvents = 2
	MessageFloodWindow = 100 * time.Second
)

// RuleEngine evaluates events for a single device. It owns all sliding
// window state for that device; the per-device worker model guarantees
// no other goroutine touches it.
type RuleEngine struct {
	device   string
	registry *Registry
	flag     *Flag

	failedLogins  map[string]*timeWindow // keyed by actor
	commandBursts map[string]*timeWindow // keyed by actor
	powerReadings *sampleWindow
	resourceUsage *sampleWindow
	bulkMessages  *timeWindow
}

// NewRuleEngine creates the evaluator for one device. The registry and
// flag are shared across all engines.
func NewRuleEngine(device string, registry *Registry, flag *Flag) *RuleEngine {
	return &RuleEngine{
		device:        device,
		registry:      registry,
		flag:          flag,
		failedLogins:  make(map[string]*timeWindow),
		commandBursts: make(map[string]*timeWindow),
		powerReadings: newSampleWindow(PowerWindow),
		resourceUsage: newSampleWindow(ResourceWindow),
		bulkMessages:  newTimeWindow(MessageFloodWindow),
	}
}

// ruleFunc is one link in the evaluation chain. A nil result means the
// rule did not match and the chain continues.
type ruleFunc func(*Event) *Verdict

// Evaluate runs the event through the fixed rule chain and returns the
// first non-neutral verdict, or a neutral verdict when nothing matched.
func (e *RuleEngine) Evaluate(event *Event) Verdict {
	chain := []ruleFunc{
		e.validateNetwork,
		e.validateIdentity,
		e.detectBruteForce,
		e.detectCommandAbuse,
		e.detectPowerAnomaly,
		e.detectSYNFlood,
		e.detectResourceExhaustion,
		e.detectMessageFlood,
	}
	for _, rule := range chain {
		if v := rule(event); v != nil {
			return *v
		}
	}
	return neutral()
}

// alert builds a suspicious verdict and raises the global flag.
func (e *RuleEngine) alert(rule RuleID, detail map[string]any) *Verdict {
	e.flag.Set()
	return &Verdict{Suspicious: true, Rule: rule, Detail: detail}
}

// note builds an informational, non-suspicious verdict.
func note(rule RuleID, detail map[string]any) *Verdict {
	return &Verdict{Suspicious: false, Rule: rule, Detail: detail}
}

// validateNetwork rejects events whose origin address is unparsable or
// outside the local network. Both cases are classified suspicious, not
// treated as errors.
func (e *RuleEngine) validateNetwork(event *Event) *Verdict {
	addr, err := netip.ParseAddr(event.OriginAddress)
	if err != nil || !addr.Is4() {
		return e.alert(RuleBadIPFormat, map[string]any{
			"address": event.OriginAddress,
		})
	}
	if !lanAddress(addr) {
		return e.alert(RuleNonLANAccess, map[string]any{
			"address": event.OriginAddress,
		})
	}
	return nil
}

// lanAddress reports whether addr belongs to the local environment:
// RFC 1918 private space, loopback, or link-local.
func lanAddress(addr netip.Addr) bool {
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast()
}

// validateIdentity checks device registration, actor registration, role
// validity, and privilege claims. All findings are informational: they
// are recorded for the audit trail but do not raise the flag.
func (e *RuleEngine) validateIdentity(event *Event) *Verdict {
	if _, known := e.registry.DeviceType(event.OriginAddress); !known {
		return note(RuleUnknownDevice, map[string]any{
			"address": event.OriginAddress,
		})
	}

	priv, known := e.registry.ActorPrivilege(event.ActorID)
	if !known {
		return note(RuleUnknownUser, map[string]any{
			"actor": event.ActorID,
		})
	}

	if !KnownRole(event.ActorRole) {
		return note(RuleRoleUnknown, map[string]any{
			"actor": event.ActorID,
			"role":  string(event.ActorRole),
		})
	}

	// A USER claim from an actor registered above USER suggests a
	// downgraded session probing for access.
	if event.ActorRole == RoleUser && priv != RoleUser {
		return note(RulePrivilegeEscalation, map[string]any{
			"actor":         event.ActorID,
			"claimed_role":  string(event.ActorRole),
			"max_privilege": string(priv),
		})
	}
	return nil
}

// detectBruteForce tracks failed login attempts per actor in a sliding
// window and fires once the count exceeds the limit.
func (e *RuleEngine) detectBruteForce(event *Event) *Verdict {
	if event.Kind != EventKindLoginAttempt {
		return nil
	}
	if event.ContextBool("success", true) {
		return nil
	}

	w := e.failedLogins[event.ActorID]
	if w == nil {
		w = newTimeWindow(FailedLoginWindow)
		e.failedLogins[event.ActorID] = w
	}
	if attempts := w.observe(event.Timestamp); attempts > FailedLoginLimit {
		return e.alert(RuleBruteForceLogin, map[string]any{
			"actor":    event.ActorID,
			"attempts": attempts,
		})
	}
	return nil
}

// detectCommandAbuse tracks monitored-command use per actor. The window
// advances for every actor including admins, but only non-ADMIN roles
// can trigger.
func (e *RuleEngine) detectCommandAbuse(event *Event) *Verdict {
	if event.Kind != EventKindControlCommand {
		return nil
	}
	command := event.ContextString("command")
	if !e.registry.IsMonitoredCommand(command) {
		return nil
	}

	w := e.commandBursts[event.ActorID]
	if w == nil {
		w = newTimeWindow(CommandBurstWindow)
		e.commandBursts[event.ActorID] = w
	}
	count := w.observe(event.Timestamp)
	if count > CommandBurstLimit && event.ActorRole != RoleAdmin {
		return e.alert(RuleCommandInjection, map[string]any{
			"command": command,
			"actor":   event.ActorID,
			"count":   count,
		})
	}
	return nil
}

// detectPowerAnomaly compares a reading against the mean of the prior
// readings in the window. Invalid readings yield informational verdicts
// and are excluded from the baseline; valid readings always enter the
// window whatever the outcome.
func (e *RuleEngine) detectPowerAnomaly(event *Event) *Verdict {
	if event.Kind != EventKindPowerConsumption {
		return nil
	}

	percent, ok := event.ContextFloat("percent")
	if !ok {
		return note(RuleInvalidPowerData, map[string]any{
			"data": event.Context["percent"],
		})
	}
	if percent < 0 || percent > 100 {
		return note(RulePowerOutOfRange, map[string]any{
			"value": percent,
		})
	}

	e.powerReadings.evict(event.Timestamp)

	// The baseline excludes the current reading, and needs enough
	// history to be stable.
	if e.powerReadings.len() < PowerMinSamples {
		e.powerReadings.append(percent, event.Timestamp)
		return nil
	}

	baseline := e.powerReadings.mean()
	samples := e.powerReadings.len()
	e.powerReadings.append(percent, event.Timestamp)

	if percent > PowerSpikeRatio*baseline {
		ratio := 0.0
		if baseline > 0 {
			ratio = percent / baseline
		}
		deviceType, _ := e.registry.DeviceType(e.device)
		return e.alert(RulePowerAnomaly, map[string]any{
			"device":        deviceType,
			"current_value": percent,
			"baseline_mean": round2(baseline),
			"spike_ratio":   round2(ratio),
			"samples":       samples,
		})
	}
	return nil
}

// detectSYNFlood fires when a reported SYN packet rate exceeds the
// threshold. When the event carries the multi-actor marker the verdict
// attributes the flood to "multiple" rather than a single actor.
func (e *RuleEngine) detectSYNFlood(event *Event) *Verdict {
	if event.Kind != EventKindPacketSYN {
		return nil
	}
	rate, _ := event.ContextFloat("rate")
	if rate <= SYNFloodRate {
		return nil
	}

	actor := event.ActorID
	if event.ContextBool("multi_user", false) {
		actor = "multiple"
	}
	return e.alert(RuleSYNFlood, map[string]any{
		"actor":  actor,
		"rate":   rate,
		"source": event.OriginAddress,
	})
}

// detectResourceExhaustion fires when the usage window is full (one
// sample per second over the window) and every sample sits at or above
// the high-usage floor. Unparsable usage samples are skipped.
func (e *RuleEngine) detectResourceExhaustion(event *Event) *Verdict {
	if event.Kind != EventKindResourceUsage {
		return nil
	}
	usage, ok := event.ContextFloat("usage")
	if !ok {
		return nil
	}

	e.resourceUsage.append(usage, event.Timestamp)
	e.resourceUsage.evict(event.Timestamp)

	if e.resourceUsage.len() >= ResourceWindowSeconds &&
		e.resourceUsage.allAtLeast(ResourceHighUsage) {
		deviceType, _ := e.registry.DeviceType(e.device)
		return e.alert(RuleResourceExhaustion, map[string]any{
			"device":           deviceType,
			"duration_seconds": e.resourceUsage.len(),
			"avg_usage":        round3(e.resourceUsage.mean()),
		})
	}
	return nil
}

// detectMessageFlood counts bulk-message batches for the whole device.
// Two batches within the window represent at least 20,000 messages.
func (e *RuleEngine) detectMessageFlood(event *Event) *Verdict {
	if event.Kind != EventKindBulkMessages {
		return nil
	}

	if batches := e.bulkMessages.observe(event.Timestamp); batches >= MessageFloodEvents {
		return e.alert(RuleMessageFlood, map[string]any{
			"events_in_window":   batches,
			"estimated_messages": batches * BulkMessageBatchSize,
		})
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
