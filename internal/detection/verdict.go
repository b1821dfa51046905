// Lanwarden - Smart Environment Security Monitoring and Attack Detection
// Copyright 2026 Lanwarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lanwarden/lanwarden

package detection

import "sync/atomic"

// RuleID identifies the detection rule that produced a verdict.
type RuleID string

const (
	// RuleBadIPFormat fires when the origin address is not parseable IPv4.
	RuleBadIPFormat RuleID = "BAD_IP_FORMAT"

	// RuleNonLANAccess fires when the origin address is outside the
	// private ranges.
	RuleNonLANAccess RuleID = "NON_LAN_ACCESS"

	// RuleUnknownDevice notes an event from an unregistered device.
	RuleUnknownDevice RuleID = "UNKNOWN_DEVICE"

	// RuleUnknownUser notes an event from an unregistered actor.
	RuleUnknownUser RuleID = "UNKNOWN_USER"

	// RuleRoleUnknown notes a claimed role outside the recognized set.
	RuleRoleUnknown RuleID = "ROLE_UNKNOWN"

	// RulePrivilegeEscalation notes a USER-role actor whose registered
	// maximum privilege is higher than USER.
	RulePrivilegeEscalation RuleID = "PRIVILEGE_ESCALATION"

	// RuleBruteForceLogin fires on repeated failed logins per actor.
	RuleBruteForceLogin RuleID = "BRUTE_FORCE_LOGIN"

	// RuleCommandInjection fires on monitored-command bursts per actor.
	RuleCommandInjection RuleID = "COMMAND_INJECTION"

	// RuleInvalidPowerData notes a power reading with missing or
	// non-numeric percent data.
	RuleInvalidPowerData RuleID = "INVALID_POWER_DATA"

	// RulePowerOutOfRange notes a power reading outside 0-100.
	RulePowerOutOfRange RuleID = "POWER_OUT_OF_RANGE"

	// RulePowerAnomaly fires when a reading spikes above the baseline.
	RulePowerAnomaly RuleID = "POWER_ANOMALY"

	// RuleSYNFlood fires on excessive SYN packet rates.
	RuleSYNFlood RuleID = "SYN_FLOOD"

	// RuleResourceExhaustion fires on sustained high resource usage.
	RuleResourceExhaustion RuleID = "RESOURCE_EXHAUSTION"

	// RuleMessageFlood fires on repeated bulk-message batches.
	RuleMessageFlood RuleID = "MESSAGE_FLOOD"
)

// Verdict is the classification result of evaluating one event against
// the full rule chain. A zero Rule means no rule matched. Verdicts are
// produced fresh per evaluation and never mutated after return.
type Verdict struct {
	// Suspicious reports whether the event indicates a potential attack.
	Suspicious bool `json:"suspicious"`

	// Rule names the rule that matched, empty when none did.
	Rule RuleID `json:"rule,omitempty"`

	// Detail carries diagnostic fields about the detection.
	Detail map[string]any `json:"detail,omitempty"`
}

// neutral is the verdict returned when no rule matches.
func neutral() Verdict {
	return Verdict{}
}

// Flag is the process-wide suspicious activity indicator. Workers set it
// monotonically when any rule classifies an event as an attack; it is
// cleared only by an explicit operator action.
type Flag struct {
	set atomic.Bool
}

// NewFlag returns a cleared flag.
func NewFlag() *Flag {
	return &Flag{}
}

// Set marks suspicious activity as detected.
func (f *Flag) Set() {
	f.set.Store(true)
}

// Clear resets the flag. Only external monitoring calls this.
func (f *Flag) Clear() {
	f.set.Store(false)
}

// IsSet reports whether suspicious activity has been detected since the
// last clear.
func (f *Flag) IsSet() bool {
	return f.set.Load()
}
