// Lanwarden - Smart Environment Security Monitoring and Attack Detection
// Copyright 2026 Lanwarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lanwarden/lanwarden

package detection

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

const (
	testDevice = "192.168.1.50"
	testActor  = "alice"
)

var testBase = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

// testRegistry returns a registry seeded with one known device, three
// actors covering each privilege level, and two monitored commands.
func testRegistry() *Registry {
	r := NewRegistry()
	r.SetDevice(testDevice, "sensor")
	r.SetActor(testActor, RoleUser)
	r.SetActor("root_admin", RoleAdmin)
	r.SetActor("facilities", RoleManager)
	r.SetMonitoredCommands([]string{"unlock_door", "disable_alarm"})
	return r
}

func testEngine() (*RuleEngine, *Flag) {
	flag := NewFlag()
	return NewRuleEngine(testDevice, testRegistry(), flag), flag
}

func makeEvent(kind EventKind, role Role, actor, origin string, ts time.Time, ctx map[string]any) *Event {
	return &Event{
		ID:            "evt-test",
		Kind:          kind,
		ActorRole:     role,
		ActorID:       actor,
		OriginAddress: origin,
		Timestamp:     ts,
		Context:       ctx,
	}
}

// benignEvent is a successful login from a known actor and device.
func benignEvent(ts time.Time) *Event {
	return makeEvent(EventKindLoginAttempt, RoleUser, testActor, testDevice, ts,
		map[string]any{"success": true})
}

func TestEvaluate_BadIPFormat(t *testing.T) {
	addresses := []string{"", "not-an-ip", "999.1.2.3", "192.168.1", "2001:db8::1"}

	for _, addr := range addresses {
		engine, flag := testEngine()
		ev := benignEvent(testBase)
		ev = makeEvent(ev.Kind, ev.ActorRole, ev.ActorID, addr, ev.Timestamp, ev.Context)

		v := engine.Evaluate(ev)
		if !v.Suspicious || v.Rule != RuleBadIPFormat {
			t.Errorf("address %q: got rule %q suspicious=%v, want BAD_IP_FORMAT suspicious", addr, v.Rule, v.Suspicious)
		}
		if !flag.IsSet() {
			t.Errorf("address %q: global flag not set", addr)
		}
	}
}

func TestEvaluate_NonLANAccess(t *testing.T) {
	engine, flag := testEngine()
	ev := makeEvent(EventKindLoginAttempt, RoleUser, testActor, "8.8.8.8", testBase,
		map[string]any{"success": true})

	v := engine.Evaluate(ev)
	if !v.Suspicious || v.Rule != RuleNonLANAccess {
		t.Fatalf("got rule %q suspicious=%v, want NON_LAN_ACCESS suspicious", v.Rule, v.Suspicious)
	}
	if !flag.IsSet() {
		t.Fatal("global flag not set after non-LAN access")
	}
}

func TestEvaluate_LANAddressesAccepted(t *testing.T) {
	addresses := []string{"192.168.1.50", "10.0.0.7", "172.16.4.9", "127.0.0.1", "169.254.3.3"}

	for _, addr := range addresses {
		registry := testRegistry()
		registry.SetDevice(addr, "sensor")
		engine := NewRuleEngine(addr, registry, NewFlag())

		ev := makeEvent(EventKindLoginAttempt, RoleUser, testActor, addr, testBase,
			map[string]any{"success": true})
		if v := engine.Evaluate(ev); v.Rule != "" {
			t.Errorf("address %q: unexpected rule %q", addr, v.Rule)
		}
	}
}

func TestEvaluate_IdentityValidation(t *testing.T) {
	tests := []struct {
		name     string
		event    *Event
		wantRule RuleID
	}{
		{
			name: "unknown device",
			event: makeEvent(EventKindLoginAttempt, RoleUser, testActor, "192.168.1.99",
				testBase, map[string]any{"success": true}),
			wantRule: RuleUnknownDevice,
		},
		{
			name: "unknown user",
			event: makeEvent(EventKindLoginAttempt, RoleUser, "stranger", testDevice,
				testBase, map[string]any{"success": true}),
			wantRule: RuleUnknownUser,
		},
		{
			name: "unknown role",
			event: makeEvent(EventKindLoginAttempt, Role("SUPERUSER"), testActor, testDevice,
				testBase, map[string]any{"success": true}),
			wantRule: RuleRoleUnknown,
		},
		{
			name: "privilege escalation",
			event: makeEvent(EventKindLoginAttempt, RoleUser, "root_admin", testDevice,
				testBase, map[string]any{"success": true}),
			wantRule: RulePrivilegeEscalation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, flag := testEngine()
			v := engine.Evaluate(tt.event)
			if v.Rule != tt.wantRule {
				t.Fatalf("got rule %q, want %q", v.Rule, tt.wantRule)
			}
			if v.Suspicious {
				t.Error("identity findings must be informational, not suspicious")
			}
			if flag.IsSet() {
				t.Error("identity findings must not raise the global flag")
			}
		})
	}
}

func TestEvaluate_NetworkValidationPrecedesIdentity(t *testing.T) {
	// An unknown device on a public address must be reported for the
	// network violation, not the registration gap.
	engine, _ := testEngine()
	ev := makeEvent(EventKindLoginAttempt, RoleUser, "stranger", "203.0.113.9",
		testBase, map[string]any{"success": true})

	if v := engine.Evaluate(ev); v.Rule != RuleNonLANAccess {
		t.Fatalf("got rule %q, want NON_LAN_ACCESS", v.Rule)
	}
}

func failedLogin(actor string, ts time.Time) *Event {
	return makeEvent(EventKindLoginAttempt, RoleUser, actor, testDevice, ts,
		map[string]any{"success": false})
}

func TestBruteForce_TriggersAboveLimit(t *testing.T) {
	engine, flag := testEngine()

	for i := 0; i < FailedLoginLimit; i++ {
		ts := testBase.Add(time.Duration(i) * time.Second)
		if v := engine.Evaluate(failedLogin(testActor, ts)); v.Rule != "" {
			t.Fatalf("attempt %d: unexpected rule %q", i+1, v.Rule)
		}
	}
	if flag.IsSet() {
		t.Fatal("flag set before limit exceeded")
	}

	v := engine.Evaluate(failedLogin(testActor, testBase.Add(6*time.Second)))
	if !v.Suspicious || v.Rule != RuleBruteForceLogin {
		t.Fatalf("6th failure: got rule %q suspicious=%v, want BRUTE_FORCE_LOGIN", v.Rule, v.Suspicious)
	}
	if v.Detail["attempts"] != 6 {
		t.Errorf("attempts detail = %v, want 6", v.Detail["attempts"])
	}
	if !flag.IsSet() {
		t.Fatal("global flag not set after brute force detection")
	}

	// Subsequent failures keep triggering.
	if v := engine.Evaluate(failedLogin(testActor, testBase.Add(7*time.Second))); v.Rule != RuleBruteForceLogin {
		t.Fatalf("7th failure: got rule %q, want BRUTE_FORCE_LOGIN", v.Rule)
	}
}

func TestBruteForce_WindowExpiry(t *testing.T) {
	engine, _ := testEngine()

	// Six failures, but spread so the first has aged out of the 60s
	// window by the time the sixth arrives.
	for i := 0; i < 6; i++ {
		ts := testBase.Add(time.Duration(i) * 13 * time.Second)
		if v := engine.Evaluate(failedLogin(testActor, ts)); v.Rule != "" {
			t.Fatalf("attempt %d: unexpected rule %q", i+1, v.Rule)
		}
	}
}

func TestBruteForce_SuccessfulLoginsNotCounted(t *testing.T) {
	engine, _ := testEngine()

	for i := 0; i < 20; i++ {
		ts := testBase.Add(time.Duration(i) * time.Second)
		if v := engine.Evaluate(benignEvent(ts)); v.Rule != "" {
			t.Fatalf("successful login %d: unexpected rule %q", i+1, v.Rule)
		}
	}
}

func TestBruteForce_WindowsKeyedPerActor(t *testing.T) {
	engine, _ := testEngine()
	engine.registry.SetActor("bob", RoleUser)

	// Three failures each for two actors inside the same window must
	// not combine into a single actor's burst.
	for i := 0; i < 3; i++ {
		ts := testBase.Add(time.Duration(i) * time.Second)
		if v := engine.Evaluate(failedLogin(testActor, ts)); v.Rule != "" {
			t.Fatalf("alice attempt %d: unexpected rule %q", i+1, v.Rule)
		}
		if v := engine.Evaluate(failedLogin("bob", ts)); v.Rule != "" {
			t.Fatalf("bob attempt %d: unexpected rule %q", i+1, v.Rule)
		}
	}
}

func monitoredCommand(role Role, actor string, ts time.Time) *Event {
	return makeEvent(EventKindControlCommand, role, actor, testDevice, ts,
		map[string]any{"command": "unlock_door"})
}

func TestCommandAbuse_TriggersForUser(t *testing.T) {
	engine, flag := testEngine()

	for i := 0; i < CommandBurstLimit; i++ {
		ts := testBase.Add(time.Duration(i) * time.Second)
		if v := engine.Evaluate(monitoredCommand(RoleUser, testActor, ts)); v.Rule != "" {
			t.Fatalf("command %d: unexpected rule %q", i+1, v.Rule)
		}
	}

	v := engine.Evaluate(monitoredCommand(RoleUser, testActor, testBase.Add(4*time.Second)))
	if !v.Suspicious || v.Rule != RuleCommandInjection {
		t.Fatalf("4th command: got rule %q suspicious=%v, want COMMAND_INJECTION", v.Rule, v.Suspicious)
	}
	if !flag.IsSet() {
		t.Fatal("global flag not set after command abuse detection")
	}
}

func TestCommandAbuse_AdminExempt(t *testing.T) {
	engine, flag := testEngine()

	for i := 0; i < 10; i++ {
		ts := testBase.Add(time.Duration(i) * time.Second)
		if v := engine.Evaluate(monitoredCommand(RoleAdmin, "root_admin", ts)); v.Rule != "" {
			t.Fatalf("admin command %d: unexpected rule %q", i+1, v.Rule)
		}
	}
	if flag.IsSet() {
		t.Fatal("admin command burst must not raise the flag")
	}
}

func TestCommandAbuse_UnmonitoredCommandIgnored(t *testing.T) {
	engine, _ := testEngine()

	for i := 0; i < 10; i++ {
		ts := testBase.Add(time.Duration(i) * time.Second)
		ev := makeEvent(EventKindControlCommand, RoleUser, testActor, testDevice, ts,
			map[string]any{"command": "set_thermostat"})
		if v := engine.Evaluate(ev); v.Rule != "" {
			t.Fatalf("command %d: unexpected rule %q", i+1, v.Rule)
		}
	}
}

func powerReading(percent any, ts time.Time) *Event {
	return makeEvent(EventKindPowerConsumption, RoleUser, testActor, testDevice, ts,
		map[string]any{"percent": percent})
}

func TestPowerAnomaly_SpikeDetected(t *testing.T) {
	engine, flag := testEngine()

	for i := 0; i < PowerMinSamples; i++ {
		ts := testBase.Add(time.Duration(i) * time.Second)
		if v := engine.Evaluate(powerReading(30.0, ts)); v.Rule != "" {
			t.Fatalf("baseline sample %d: unexpected rule %q", i+1, v.Rule)
		}
	}

	v := engine.Evaluate(powerReading(80.0, testBase.Add(6*time.Second)))
	if !v.Suspicious || v.Rule != RulePowerAnomaly {
		t.Fatalf("got rule %q suspicious=%v, want POWER_ANOMALY", v.Rule, v.Suspicious)
	}
	if v.Detail["baseline_mean"] != 30.0 {
		t.Errorf("baseline_mean = %v, want 30", v.Detail["baseline_mean"])
	}
	if v.Detail["current_value"] != 80.0 {
		t.Errorf("current_value = %v, want 80", v.Detail["current_value"])
	}
	if v.Detail["samples"] != PowerMinSamples {
		t.Errorf("samples = %v, want %d", v.Detail["samples"], PowerMinSamples)
	}
	if !flag.IsSet() {
		t.Fatal("global flag not set after power anomaly")
	}
}

func TestPowerAnomaly_ModerateReadingAccepted(t *testing.T) {
	engine, _ := testEngine()

	for i := 0; i < PowerMinSamples; i++ {
		ts := testBase.Add(time.Duration(i) * time.Second)
		engine.Evaluate(powerReading(30.0, ts))
	}

	// 40 < 1.5 * 30, within tolerance.
	if v := engine.Evaluate(powerReading(40.0, testBase.Add(6*time.Second))); v.Rule != "" {
		t.Fatalf("unexpected rule %q for moderate reading", v.Rule)
	}
}

func TestPowerAnomaly_InvalidData(t *testing.T) {
	tests := []struct {
		name     string
		percent  any
		wantRule RuleID
	}{
		{"missing", nil, RuleInvalidPowerData},
		{"non-numeric", "lots", RuleInvalidPowerData},
		{"negative", -4.0, RulePowerOutOfRange},
		{"above range", 130.0, RulePowerOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, flag := testEngine()
			ev := powerReading(tt.percent, testBase)
			if tt.percent == nil {
				delete(ev.Context, "percent")
			}

			v := engine.Evaluate(ev)
			if v.Rule != tt.wantRule {
				t.Fatalf("got rule %q, want %q", v.Rule, tt.wantRule)
			}
			if v.Suspicious {
				t.Error("invalid power data must be informational")
			}
			if flag.IsSet() {
				t.Error("invalid power data must not raise the flag")
			}
		})
	}
}

func TestPowerAnomaly_RejectedReadingsExcludedFromBaseline(t *testing.T) {
	engine, _ := testEngine()

	// Interleave out-of-range readings with the baseline; they must
	// not advance the sample count.
	for i := 0; i < PowerMinSamples-1; i++ {
		ts := testBase.Add(time.Duration(i) * time.Second)
		engine.Evaluate(powerReading(30.0, ts))
		engine.Evaluate(powerReading(400.0, ts))
	}

	// Only 4 valid samples so far, so this spike is still absorbed
	// into the baseline instead of being judged.
	if v := engine.Evaluate(powerReading(95.0, testBase.Add(10*time.Second))); v.Rule != "" {
		t.Fatalf("unexpected rule %q before minimum samples reached", v.Rule)
	}
}

func resourceSample(usage any, ts time.Time) *Event {
	return makeEvent(EventKindResourceUsage, RoleUser, testActor, testDevice, ts,
		map[string]any{"usage": usage})
}

func TestResourceExhaustion_SustainedHighUsage(t *testing.T) {
	engine, flag := testEngine()

	triggered := -1
	for i := 0; i < 95; i++ {
		ts := testBase.Add(time.Duration(i) * time.Second)
		v := engine.Evaluate(resourceSample(0.85, ts))
		if v.Rule == RuleResourceExhaustion {
			triggered = i
			break
		}
		if v.Rule != "" {
			t.Fatalf("sample %d: unexpected rule %q", i+1, v.Rule)
		}
	}
	if triggered < 0 {
		t.Fatal("sustained high usage never triggered RESOURCE_EXHAUSTION")
	}
	if triggered != ResourceWindowSeconds-1 {
		t.Errorf("triggered at sample %d, want %d", triggered+1, ResourceWindowSeconds)
	}
	if !flag.IsSet() {
		t.Fatal("global flag not set after resource exhaustion")
	}
}

func TestResourceExhaustion_SingleLowSampleResets(t *testing.T) {
	engine, _ := testEngine()

	for i := 0; i < 95; i++ {
		ts := testBase.Add(time.Duration(i) * time.Second)
		usage := 0.85
		if i == 50 {
			usage = 0.40
		}
		if v := engine.Evaluate(resourceSample(usage, ts)); v.Rule != "" {
			t.Fatalf("sample %d: unexpected rule %q", i+1, v.Rule)
		}
	}
}

func TestResourceExhaustion_UnparsableUsageSkipped(t *testing.T) {
	engine, _ := testEngine()

	if v := engine.Evaluate(resourceSample("busy", testBase)); v.Rule != "" {
		t.Fatalf("unexpected rule %q for unparsable usage", v.Rule)
	}
}

func bulkMessages(ts time.Time) *Event {
	return makeEvent(EventKindBulkMessages, RoleUser, testActor, testDevice, ts, nil)
}

func TestMessageFlood_TwoBatchesInWindow(t *testing.T) {
	engine, flag := testEngine()

	if v := engine.Evaluate(bulkMessages(testBase)); v.Rule != "" {
		t.Fatalf("first batch: unexpected rule %q", v.Rule)
	}

	v := engine.Evaluate(bulkMessages(testBase.Add(40 * time.Second)))
	if !v.Suspicious || v.Rule != RuleMessageFlood {
		t.Fatalf("got rule %q suspicious=%v, want MESSAGE_FLOOD", v.Rule, v.Suspicious)
	}
	if v.Detail["estimated_messages"] != 2*BulkMessageBatchSize {
		t.Errorf("estimated_messages = %v, want %d", v.Detail["estimated_messages"], 2*BulkMessageBatchSize)
	}
	if !flag.IsSet() {
		t.Fatal("global flag not set after message flood")
	}
}

func TestMessageFlood_SpacedBatchesIgnored(t *testing.T) {
	engine, _ := testEngine()

	for i := 0; i < 5; i++ {
		ts := testBase.Add(time.Duration(i) * 101 * time.Second)
		if v := engine.Evaluate(bulkMessages(ts)); v.Rule != "" {
			t.Fatalf("batch %d: unexpected rule %q", i+1, v.Rule)
		}
	}
}

func TestDeviceIsolation_ParallelBruteForceStreams(t *testing.T) {
	registry := testRegistry()
	registry.SetDevice("192.168.1.60", "camera")
	registry.SetActor("intruder-0", RoleUser)
	registry.SetActor("intruder-1", RoleUser)
	flag := NewFlag()

	devices := []string{testDevice, "192.168.1.60"}
	verdicts := make([][]Verdict, len(devices))

	var wg sync.WaitGroup
	for i, device := range devices {
		wg.Add(1)
		go func(i int, device string) {
			defer wg.Done()
			engine := NewRuleEngine(device, registry, flag)
			actor := fmt.Sprintf("intruder-%d", i)
			for n := 0; n < 6; n++ {
				ts := testBase.Add(time.Duration(n) * time.Second)
				ev := makeEvent(EventKindLoginAttempt, RoleUser, actor, device, ts,
					map[string]any{"success": false})
				verdicts[i] = append(verdicts[i], engine.Evaluate(ev))
			}
		}(i, device)
	}
	wg.Wait()

	for i := range devices {
		got := verdicts[i]
		if len(got) != 6 {
			t.Fatalf("device %d: %d verdicts, want 6", i, len(got))
		}
		for n := 0; n < 5; n++ {
			if got[n].Rule != "" {
				t.Errorf("device %d verdict %d: unexpected rule %q", i, n+1, got[n].Rule)
			}
		}
		last := got[5]
		if last.Rule != RuleBruteForceLogin {
			t.Errorf("device %d: 6th verdict rule %q, want BRUTE_FORCE_LOGIN", i, last.Rule)
		}
		if last.Detail["attempts"] != 6 {
			t.Errorf("device %d: attempts %v, want 6 (window leaked across devices?)", i, last.Detail["attempts"])
		}
	}
}

func TestFlag_ClearedOnlyExplicitly(t *testing.T) {
	engine, flag := testEngine()

	engine.Evaluate(makeEvent(EventKindLoginAttempt, RoleUser, testActor, "bogus", testBase, nil))
	if !flag.IsSet() {
		t.Fatal("flag not set")
	}

	// Benign traffic must not clear it.
	engine.Evaluate(benignEvent(testBase.Add(time.Second)))
	if !flag.IsSet() {
		t.Fatal("flag cleared by benign traffic")
	}

	flag.Clear()
	if flag.IsSet() {
		t.Fatal("flag still set after explicit clear")
	}
}

func TestEvaluate_NeutralVerdict(t *testing.T) {
	engine, flag := testEngine()

	v := engine.Evaluate(benignEvent(testBase))
	if v.Suspicious || v.Rule != "" {
		t.Fatalf("got rule %q suspicious=%v, want neutral", v.Rule, v.Suspicious)
	}
	if flag.IsSet() {
		t.Fatal("flag set by neutral event")
	}
}
