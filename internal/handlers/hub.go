// internal/handlers/hub.go
package handlers

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/threes/internal/room"
	"github.com/sirupsen/logrus"
)

// ReasonReplaced is the close reason given to a connection whose player
// resumed on another connection.
const ReasonReplaced = "session resumed on another connection"

// Hub routes room events to live connections. It implements room.Notifier.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[uuid.UUID]room.Client
	log   logrus.FieldLogger
}

// NewHub returns an empty hub.
func NewHub(logger logrus.FieldLogger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		rooms: make(map[string]map[uuid.UUID]room.Client),
		log:   logger,
	}
}

// Attach binds c to the player. A connection previously bound to the same
// player is closed.
func (h *Hub) Attach(code string, playerID uuid.UUID, c room.Client) {
	h.mu.Lock()
	members, ok := h.rooms[code]
	if !ok {
		members = make(map[uuid.UUID]room.Client)
		h.rooms[code] = members
	}
	old := members[playerID]
	members[playerID] = c
	h.mu.Unlock()

	if old != nil && old != c {
		old.Close(ReasonReplaced)
	}
}

// Detach unbinds the player's connection, if any.
func (h *Hub) Detach(code string, playerID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[code]
	if !ok {
		return
	}
	delete(members, playerID)
	if len(members) == 0 {
		delete(h.rooms, code)
	}
}

// Send queues ev for one player.
func (h *Hub) Send(code string, playerID uuid.UUID, ev room.Event) {
	h.mu.RLock()
	c := h.rooms[code][playerID]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	if !c.Send(ev) {
		h.log.WithFields(logrus.Fields{"room": code, "player": playerID}).Warnf("outbound queue full, dropped %s", ev.Type)
	}
}

// Broadcast queues ev for every attached player except the given one.
func (h *Hub) Broadcast(code string, ev room.Event, except uuid.UUID) {
	type target struct {
		id uuid.UUID
		c  room.Client
	}
	h.mu.RLock()
	targets := make([]target, 0, len(h.rooms[code]))
	for id, c := range h.rooms[code] {
		if id != except {
			targets = append(targets, target{id, c})
		}
	}
	h.mu.RUnlock()

	for _, t := range targets {
		if !t.c.Send(ev) {
			h.log.WithFields(logrus.Fields{"room": code, "player": t.id}).Warnf("outbound queue full, dropped %s", ev.Type)
		}
	}
}

// Release forgets every binding for a closed room.
func (h *Hub) Release(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, code)
}

// Connections returns how many connections are bound to the room.
func (h *Hub) Connections(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[code])
}
