// Lanwarden - Smart Environment Security Monitoring and Attack Detection
// Copyright 2026 Lanwarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lanwarden/lanwarden

package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/lanwarden/lanwarden/internal/detection"
	"github.com/lanwarden/lanwarden/internal/dispatch"
)

// startHub runs the hub's serve loop for the duration of a test.
func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("hub did not stop")
		}
	})
	return hub, cancel
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("ClientCount() = %d, want %d", hub.ClientCount(), want)
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub, _ := startHub(t)

	client := NewClient(hub, nil)
	hub.Register <- client
	waitForClients(t, hub, 1)

	hub.Unregister <- client
	waitForClients(t, hub, 0)

	// The hub closes the send channel on unregister.
	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("send channel delivered a message after unregister")
		}
	case <-time.After(time.Second):
		t.Error("send channel not closed after unregister")
	}
}

func TestHub_BroadcastAlertReachesAllClients(t *testing.T) {
	hub, _ := startHub(t)

	first := NewClient(hub, nil)
	second := NewClient(hub, nil)
	hub.Register <- first
	hub.Register <- second
	waitForClients(t, hub, 2)

	rec := dispatch.Record{
		ID:     "evt-1",
		Device: "192.168.1.50",
		Verdict: detection.Verdict{
			Suspicious: true,
			Rule:       detection.RuleBruteForceLogin,
		},
	}
	hub.BroadcastAlert(rec)

	for _, client := range []*Client{first, second} {
		select {
		case msg := <-client.send:
			if msg.Type != MessageTypeAlert {
				t.Errorf("message type = %q, want %q", msg.Type, MessageTypeAlert)
			}
			got, ok := msg.Data.(dispatch.Record)
			if !ok {
				t.Fatalf("message data type = %T, want dispatch.Record", msg.Data)
			}
			if got.ID != "evt-1" {
				t.Errorf("record ID = %q, want evt-1", got.ID)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("client %d did not receive the alert", client.ID())
		}
	}
}

func TestHub_SlowClientDropped(t *testing.T) {
	hub, _ := startHub(t)

	slow := NewClient(hub, nil)
	slow.send = make(chan Message) // unbuffered and never read
	hub.Register <- slow
	waitForClients(t, hub, 1)

	hub.BroadcastAlert(dispatch.Record{ID: "evt-1"})
	waitForClients(t, hub, 0)
}

func TestHub_BroadcastStatus(t *testing.T) {
	hub, _ := startHub(t)

	client := NewClient(hub, nil)
	hub.Register <- client
	waitForClients(t, hub, 1)

	hub.BroadcastStatus(true, 4)

	select {
	case msg := <-client.send:
		if msg.Type != MessageTypeStatus {
			t.Errorf("message type = %q, want %q", msg.Type, MessageTypeStatus)
		}
		data, ok := msg.Data.(StatusData)
		if !ok {
			t.Fatalf("message data type = %T, want StatusData", msg.Data)
		}
		if !data.UnderAttack {
			t.Error("UnderAttack = false, want true")
		}
		if data.ActiveDevices != 4 {
			t.Errorf("ActiveDevices = %d, want 4", data.ActiveDevices)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("client did not receive the status update")
	}
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub, cancel := startHub(t)

	client := NewClient(hub, nil)
	hub.Register <- client
	waitForClients(t, hub, 1)

	cancel()

	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("send channel delivered a message during shutdown")
		}
	case <-time.After(5 * time.Second):
		t.Error("send channel not closed on shutdown")
	}
}
