package ws

import (
	"log"
	"sync"
	"time"

	"codeblocks-live/internal/db"
	"codeblocks-live/internal/protocol"
	"codeblocks-live/internal/room"
)

// How long evicted students get to render the template reset before the
// final mentor-left broadcast.
const defaultGraceDelay = 500 * time.Millisecond

// BlockFetcher looks up the code block a room is keyed by. Used only to
// recover the original template when a mentor departs.
type BlockFetcher interface {
	GetCodeBlock(id string) (db.CodeBlock, error)
}

// Message is a frame to fan out to a room, skipping the sender.
type Message struct {
	RoomID string
	Data   []byte
	Sender *Client
}

type joinRequest struct {
	client *Client
	roomID string
}

type leaveRequest struct {
	client *Client
	roomID string
}

// Hub coordinates every room. The registry is the single source of truth
// for membership and roles; the rooms map only holds delivery sets. All
// mutation funnels through the Run loop, so no two room events interleave.
type Hub struct {
	registry *room.Registry
	blocks   BlockFetcher

	// Delivery sets by room, and each client's current room
	rooms    map[string]map[*Client]bool
	memberOf map[*Client]string

	// Pending mentor-departure timers by room
	evictions map[string]*time.Timer

	register   chan joinRequest
	unregister chan leaveRequest
	disconnect chan *Client
	broadcast  chan *Message
	evict      chan string

	graceDelay time.Duration

	mu sync.RWMutex
}

func NewHub(blocks BlockFetcher) *Hub {
	return &Hub{
		registry:   room.NewRegistry(),
		blocks:     blocks,
		rooms:      make(map[string]map[*Client]bool),
		memberOf:   make(map[*Client]string),
		evictions:  make(map[string]*time.Timer),
		register:   make(chan joinRequest),
		unregister: make(chan leaveRequest),
		disconnect: make(chan *Client),
		broadcast:  make(chan *Message),
		evict:      make(chan string),
		graceDelay: defaultGraceDelay,
	}
}

// SetGraceDelay overrides the mentor-departure grace delay. Call before Run.
func (h *Hub) SetGraceDelay(d time.Duration) {
	h.graceDelay = d
}

func (h *Hub) Run() {
	for {
		select {
		case req := <-h.register:
			h.handleJoin(req)

		case req := <-h.unregister:
			h.handleLeave(req)

		case client := <-h.disconnect:
			h.handleDisconnect(client)

		case message := <-h.broadcast:
			h.mu.Lock()
			h.broadcastRoom(message.RoomID, message.Data, message.Sender)
			h.mu.Unlock()

		case roomID := <-h.evict:
			h.handleEviction(roomID)
		}
	}
}

func (h *Hub) handleJoin(req joinRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := req.client
	if current, joined := h.memberOf[c]; joined {
		// One room per connection; a second join is ignored until the
		// client leaves the first.
		log.Printf("Client %s already in room %s, ignoring join for %s", c.id, current, req.roomID)
		return
	}

	role := h.registry.Join(req.roomID, c.id)
	if h.rooms[req.roomID] == nil {
		h.rooms[req.roomID] = make(map[*Client]bool)
	}
	h.rooms[req.roomID][c] = true
	h.memberOf[c] = req.roomID

	if role == room.RoleMentor {
		// A join can land on a room whose mentor slot emptied while the
		// eviction timer is still pending. The new mentor revives the room.
		h.cancelEviction(req.roomID)
	}

	c.enqueue(frame(protocol.EventRoleAssigned, string(role)))
	h.publishCount(req.roomID)
	log.Printf("%s joined room %s as %s", c.id, req.roomID, role)
}

func (h *Hub) handleLeave(req leaveRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := req.client
	roomID, joined := h.memberOf[c]
	if !joined {
		// Leave without membership is a no-op
		return
	}
	if req.roomID != "" && req.roomID != roomID {
		return
	}

	h.dropFromRoom(c, roomID)
	h.reconcile(h.registry.Leave(roomID, c.id))
	log.Printf("%s left room %s", c.id, roomID)
}

func (h *Hub) handleDisconnect(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, dep := range h.registry.DisconnectAll(c.id) {
		h.dropFromRoom(c, dep.RoomID)
		h.reconcile(dep)
	}
	close(c.send)
	log.Printf("%s disconnected", c.id)
}

// dropFromRoom removes a client from the delivery set only. The registry
// is updated by the caller.
func (h *Hub) dropFromRoom(c *Client, roomID string) {
	if clients, ok := h.rooms[roomID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.rooms, roomID)
		}
	}
	delete(h.memberOf, c)
}

// reconcile publishes the consequences of a departure: a fresh student
// count, or the mentor-departure reset/evict sequence.
func (h *Hub) reconcile(dep room.Departure) {
	if !dep.WasMember {
		return
	}
	switch {
	case dep.WasMentor && !dep.Empty:
		h.startEviction(dep.RoomID)
	case dep.Empty:
		h.cancelEviction(dep.RoomID)
		log.Printf("Room %s closed (empty)", dep.RoomID)
	default:
		h.publishCount(dep.RoomID)
	}
}

// startEviction runs the mentor-departure path: broadcast the original
// template as soon as the lookup returns, and evict everyone after the
// grace delay no matter what the lookup does.
func (h *Hub) startEviction(roomID string) {
	log.Printf("Mentor left room %s, eviction in %v", roomID, h.graceDelay)

	// The lookup must not block other rooms, and a slow lookup must not
	// delay eviction, so it re-enters the loop through the broadcast
	// channel. If the room is gone by then, the frame goes nowhere.
	go func() {
		block, err := h.blocks.GetCodeBlock(roomID)
		if err != nil {
			log.Printf("Code block lookup for room %s: %v", roomID, err)
			return
		}
		h.broadcast <- &Message{RoomID: roomID, Data: frame(protocol.EventResetCode, block.Template)}
	}()

	if t, ok := h.evictions[roomID]; ok {
		t.Stop()
	}
	h.evictions[roomID] = time.AfterFunc(h.graceDelay, func() {
		h.evict <- roomID
	})
}

func (h *Hub) cancelEviction(roomID string) {
	if t, ok := h.evictions[roomID]; ok {
		t.Stop()
		delete(h.evictions, roomID)
	}
}

// handleEviction fires after the grace delay: mentor-left to everyone
// still present, then the room is purged regardless of membership.
// Firing on a room that emptied or found a new mentor first is a no-op.
func (h *Hub) handleEviction(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.evictions, roomID)

	snap, ok := h.registry.Snapshot(roomID)
	if !ok || snap.Mentor != "" {
		return
	}

	h.broadcastRoom(roomID, frame(protocol.EventMentorLeft, nil), nil)
	h.registry.Purge(roomID)
	for client := range h.rooms[roomID] {
		delete(h.memberOf, client)
	}
	delete(h.rooms, roomID)
	log.Printf("Room %s evicted after mentor departure", roomID)
}

// publishCount broadcasts the registry's student count to the whole room,
// mentor included.
func (h *Hub) publishCount(roomID string) {
	snap, ok := h.registry.Snapshot(roomID)
	if !ok {
		return
	}
	h.broadcastRoom(roomID, frame(protocol.EventStudentCount, snap.StudentCount), nil)
}

// broadcastRoom delivers a frame to every client in the room except the
// sender. A client whose buffer is full misses the frame; last-write-wins
// payloads make that safe.
func (h *Hub) broadcastRoom(roomID string, data []byte, sender *Client) {
	for client := range h.rooms[roomID] {
		if client == sender {
			continue
		}
		client.enqueue(data)
	}
}

func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.memberOf)
}

func frame(event string, data any) []byte {
	b, _ := protocol.Encode(event, data)
	return b
}
