// Lanwarden - Smart Environment Security Monitoring and Attack Detection
// Copyright 2026 Lanwarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lanwarden/lanwarden

package detection

import (
	"sync"
	"sync/atomic"
)

// Registry holds the shared lookup tables consulted by every rule
// engine: verified actors and their maximum privilege, registered
// device addresses and their types, and the set of monitored command
// names.
//
// Each table is an immutable snapshot behind an atomic pointer. Writers
// build a fresh table and swap it in whole, so a concurrent reader
// either sees the previous snapshot or the new one, never a partially
// updated table. Reads are lock-free; the write path serializes
// copy-on-write updates with a mutex.
type Registry struct {
	writeMu sync.Mutex

	actors   atomic.Pointer[map[string]Role]
	devices  atomic.Pointer[map[string]string]
	commands atomic.Pointer[map[string]struct{}]
}

// NewRegistry returns a registry with empty tables.
func NewRegistry() *Registry {
	r := &Registry{}
	actors := map[string]Role{}
	devices := map[string]string{}
	commands := map[string]struct{}{}
	r.actors.Store(&actors)
	r.devices.Store(&devices)
	r.commands.Store(&commands)
	return r
}

// SetActor registers an actor with the highest role it may assume,
// replacing any previous entry.
func (r *Registry) SetActor(actorID string, maxPrivilege Role) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	old := *r.actors.Load()
	next := make(map[string]Role, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[actorID] = maxPrivilege
	r.actors.Store(&next)
}

// SetDevice registers a device address as known, with its type.
func (r *Registry) SetDevice(address, deviceType string) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	old := *r.devices.Load()
	next := make(map[string]string, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[address] = deviceType
	r.devices.Store(&next)
}

// SetMonitoredCommands replaces the whole monitored-command set. An
// in-flight reader observes either the previous set or this one, never
// a cleared-but-refilling intermediate.
func (r *Registry) SetMonitoredCommands(commands []string) {
	next := make(map[string]struct{}, len(commands))
	for _, c := range commands {
		next[c] = struct{}{}
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.commands.Store(&next)
}

// ActorPrivilege returns the registered maximum privilege for an actor
// and whether the actor is known.
func (r *Registry) ActorPrivilege(actorID string) (Role, bool) {
	priv, ok := (*r.actors.Load())[actorID]
	return priv, ok
}

// DeviceType returns the registered type for a device address and
// whether the device is known.
func (r *Registry) DeviceType(address string) (string, bool) {
	t, ok := (*r.devices.Load())[address]
	return t, ok
}

// IsMonitoredCommand reports whether the named command is subject to
// per-actor rate limiting.
func (r *Registry) IsMonitoredCommand(command string) bool {
	_, ok := (*r.commands.Load())[command]
	return ok
}

// Stats reports the size of each table, for configuration endpoints.
func (r *Registry) Stats() RegistryStats {
	return RegistryStats{
		Actors:            len(*r.actors.Load()),
		Devices:           len(*r.devices.Load()),
		MonitoredCommands: len(*r.commands.Load()),
	}
}

// RegistryStats summarizes registry table sizes.
type RegistryStats struct {
	Actors            int `json:"actors"`
	Devices           int `json:"devices"`
	MonitoredCommands int `json:"monitored_commands"`
}
