package realtime

import (
	"log/slog"
	"sync"

	"nestwatch/cmd/internal/metrics"
)

// Hub is the per-session subscription registry and fanout primitive.
//
// Concurrency guarantees:
// - Subscribe/Unsubscribe are safe under concurrent Broadcast.
// - Broadcast never blocks; a subscriber whose queue is full is dropped
//   from the registry so one slow consumer cannot delay the rest.
// - Broadcast is panic-safe because Client.Send is never closed by the server.
//
// The hub holds no history: a subscriber that connects after an event fired
// reads the session event log over HTTP instead.
type Hub struct {
	log *slog.Logger

	mu       sync.RWMutex
	members  map[string]map[string]*Client // sessionID -> connID -> client
	sessions map[string]string             // connID -> sessionID
}

// NewHub constructs a Hub instance.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:      log,
		members:  make(map[string]map[string]*Client),
		sessions: make(map[string]string),
	}
}

// Subscribe registers a client under a session. A client re-subscribing to a
// different session is moved, so a connection is associated with at most one
// session at a time.
func (h *Hub) Subscribe(client *Client, sessionID string) {
	if client == nil || client.ID == "" || sessionID == "" {
		return
	}

	h.mu.Lock()
	if prev, ok := h.sessions[client.ID]; ok && prev != sessionID {
		h.removeLocked(client.ID, prev)
	}
	set := h.members[sessionID]
	if set == nil {
		set = make(map[string]*Client)
		h.members[sessionID] = set
	}
	set[client.ID] = client
	h.sessions[client.ID] = sessionID
	h.mu.Unlock()

	h.log.Info("hub.subscribe", "session_id", sessionID, "conn_id", client.ID)
}

// Unsubscribe removes a connection from whatever session it belonged to.
// Safe to call for connections that never subscribed.
func (h *Hub) Unsubscribe(connID string) {
	if connID == "" {
		return
	}

	h.mu.Lock()
	sessionID, ok := h.sessions[connID]
	if ok {
		h.removeLocked(connID, sessionID)
	}
	h.mu.Unlock()

	if ok {
		h.log.Info("hub.unsubscribe", "session_id", sessionID, "conn_id", connID)
	}
}

// Broadcast fans one event out to every subscriber of the session.
// Subscribers that are shutting down or whose queue is full are dropped;
// delivery to the rest proceeds regardless.
func (h *Hub) Broadcast(sessionID, eventType string, payload map[string]any) {
	frame := eventFrame(sessionID, eventType, payload)

	var stale []string

	h.mu.RLock()
	for connID, c := range h.members[sessionID] {
		if c == nil {
			stale = append(stale, connID)
			continue
		}

		select {
		case <-c.Done():
			stale = append(stale, connID)
			continue
		default:
		}

		select {
		case c.Send <- frame:
		default:
			// Full queue: this subscriber is not keeping up. Drop it.
			stale = append(stale, connID)
		}
	}
	h.mu.RUnlock()

	for _, connID := range stale {
		metrics.BroadcastDropped.Inc()

		h.mu.Lock()
		c := h.members[sessionID][connID]
		h.removeLocked(connID, sessionID)
		h.mu.Unlock()

		if c != nil {
			c.Close()
		}
		h.log.Info("hub.drop.backpressure", "session_id", sessionID, "conn_id", connID, "event", eventType)
	}
}

// Subscribers reports how many connections are registered for a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members[sessionID])
}

// removeLocked deletes a connection from the registry. Callers must hold h.mu.
func (h *Hub) removeLocked(connID, sessionID string) {
	if set := h.members[sessionID]; set != nil {
		delete(set, connID)
		if len(set) == 0 {
			delete(h.members, sessionID)
		}
	}
	delete(h.sessions, connID)
}
