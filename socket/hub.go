package socket

import (
	"sort"
	"sync"

	"docsync/pkg/logger"
	"docsync/pkg/metrics"
)

// Hub tracks which connections are in which document room. Rooms exist only
// while they have members.
type Hub struct {
	mu       sync.Mutex
	rooms    map[string]map[*Client]struct{}
	memberOf map[*Client]map[string]struct{}
	clients  map[*Client]struct{}
	closed   bool
}

func NewHub() *Hub {
	return &Hub{
		rooms:    make(map[string]map[*Client]struct{}),
		memberOf: make(map[*Client]map[string]struct{}),
		clients:  make(map[*Client]struct{}),
	}
}

// register tracks a live connection so Shutdown can reach it. It returns
// false once the hub is shut down.
func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	metrics.WSConnections.Inc()
	return true
}

// unregister drops c from every room and from the live set.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveAllLocked(c)
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		metrics.WSConnections.Dec()
	}
}

// Join adds c to roomID. Joining a room twice is a no-op.
func (h *Hub) Join(roomID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[roomID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[roomID] = room
		metrics.RoomsActive.Inc()
	}
	room[c] = struct{}{}

	joined, ok := h.memberOf[c]
	if !ok {
		joined = make(map[string]struct{})
		h.memberOf[c] = joined
	}
	joined[roomID] = struct{}{}
}

func (h *Hub) Leave(roomID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(roomID, c)
}

// LeaveAll removes c from every room it joined.
func (h *Hub) LeaveAll(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveAllLocked(c)
}

func (h *Hub) leaveLocked(roomID string, c *Client) {
	if room, ok := h.rooms[roomID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, roomID)
			metrics.RoomsActive.Dec()
		}
	}
	if joined, ok := h.memberOf[c]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(h.memberOf, c)
		}
	}
}

func (h *Hub) leaveAllLocked(c *Client) {
	for roomID := range h.memberOf[c] {
		h.leaveLocked(roomID, c)
	}
}

func (h *Hub) snapshot(roomID string, except *Client) []*Client {
	room := h.rooms[roomID]
	out := make([]*Client, 0, len(room))
	for c := range room {
		if c != except {
			out = append(out, c)
		}
	}
	return out
}

// Broadcast queues payload for every member of roomID except sender and
// returns the number of members it was queued for. Members whose queue is
// full are evicted and disconnected.
func (h *Hub) Broadcast(roomID string, sender *Client, payload []byte) int {
	h.mu.Lock()
	targets := h.snapshot(roomID, sender)
	h.mu.Unlock()

	delivered := 0
	for _, c := range targets {
		if c.enqueue(payload) {
			delivered++
			continue
		}
		logger.Sugar.Warnf("Client %s's send buffer is full. Evicting from room %s.", c.label(), roomID)
		metrics.RelayDropped.WithLabelValues("slow_consumer").Inc()
		h.unregister(c)
		c.close()
	}
	return delivered
}

// CloseRoom sends payload to every member of roomID and then removes the room.
// Connections stay open.
func (h *Hub) CloseRoom(roomID string, payload []byte) {
	h.mu.Lock()
	targets := h.snapshot(roomID, nil)
	for _, c := range targets {
		h.leaveLocked(roomID, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.forget(roomID)
		if payload != nil && !c.enqueue(payload) {
			metrics.RelayDropped.WithLabelValues("slow_consumer").Inc()
		}
	}
	if len(targets) > 0 {
		logger.Sugar.Infof("Closed room %s with %d members", roomID, len(targets))
	}
}

// Members returns the number of connections in roomID.
func (h *Hub) Members(roomID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[roomID])
}

// Rooms returns the ids of all non-empty rooms, sorted.
func (h *Hub) Rooms() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Shutdown disconnects every client and refuses new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
		c.close()
	}
	logger.Sugar.Infof("Hub shut down, disconnected %d clients", len(clients))
}
