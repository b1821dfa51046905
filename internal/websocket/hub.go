// Lanwarden - Smart Environment Security Monitoring and Attack Detection
// Copyright 2026 Lanwarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lanwarden/lanwarden

// Package websocket streams security alerts to connected dashboard
// clients over gorilla/websocket. A central hub tracks clients and
// broadcasts; each client gets its own read and write pumps.
package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lanwarden/lanwarden/internal/dispatch"
	"github.com/lanwarden/lanwarden/internal/logging"
	"github.com/lanwarden/lanwarden/internal/metrics"
)

// Message types for client communication.
const (
	MessageTypeAlert  = "security_alert"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
	MessageTypeStatus = "status_update"
)

// Message is the envelope for every websocket frame.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// StatusData is sent with status_update messages.
type StatusData struct {
	Timestamp     string `json:"timestamp"`
	UnderAttack   bool   `json:"under_attack"`
	ActiveDevices int    `json:"active_devices"`
}

// Hub maintains the set of active clients and broadcasts messages.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a hub with a buffered broadcast channel.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Serve runs the hub until the context is canceled, then closes all
// clients. Designed for suture supervision. Lifecycle events are
// drained before broadcasts so client state is settled when a message
// fans out.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WebsocketClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WebsocketClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

func (h *Hub) shutdown(ctx context.Context) {
	closed := h.closeAllClients()
	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", reason).
		Int("clients_closed", closed).
		Msg("websocket hub stopped")
}

// broadcastToClients fans a message out to every client in client-ID
// order. A client whose send buffer is full is dropped; a stalled
// consumer must not hold up the rest.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := sortedClients(h.clients)

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
	}
	if len(toRemove) > 0 {
		metrics.WebsocketClients.Set(float64(len(h.clients)))
		logging.Warn().Int("dropped", len(toRemove)).Msg("dropped slow websocket clients")
	}
}

func (h *Hub) closeAllClients() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := sortedClients(h.clients)
	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.WebsocketClients.Set(0)
	return len(clients)
}

// sortedClients returns clients in ID order for deterministic
// broadcast and shutdown sequencing.
func sortedClients(set map[*Client]bool) []*Client {
	clients := make([]*Client, 0, len(set))
	for client := range set {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

// BroadcastAlert sends a suspicious verdict record to all clients.
// Implements the alerting.Broadcaster interface.
func (h *Hub) BroadcastAlert(rec dispatch.Record) {
	message := Message{
		Type: MessageTypeAlert,
		Data: rec,
	}
	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Str("record_id", rec.ID).Msg("broadcast channel full, dropping alert")
	}
}

// BroadcastStatus notifies all clients of the current system status.
func (h *Hub) BroadcastStatus(underAttack bool, activeDevices int) {
	message := Message{
		Type: MessageTypeStatus,
		Data: StatusData{
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
			UnderAttack:   underAttack,
			ActiveDevices: activeDevices,
		},
	}
	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Msg("broadcast channel full, dropping status_update")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
