package ws

import (
	"encoding/json"
	"sync"
)

// Room name prefixes are a protocol contract shared with existing
// clients; do not change them.
const (
	userRoomPrefix         = "user:"
	conversationRoomPrefix = "conversation:"
)

func UserRoom(userID string) string { return userRoomPrefix + userID }

func ConversationRoom(conversationID string) string {
	return conversationRoomPrefix + conversationID
}

// Hub is the room router: the single registry of live sockets and their
// room memberships, injected into the gateway at construction so tests
// can run isolated instances. Personal rooms (user:{id}) are joined on
// authenticate; conversation rooms (conversation:{id}) are joined
// opportunistically when a socket creates or views a conversation, never
// eagerly for every conversation the user belongs to.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client             // socket id -> client
	rooms   map[string]map[string]struct{} // room -> socket ids
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]struct{}),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.SocketID] = c
}

// Unregister removes the client and its membership in every room.
func (h *Hub) Unregister(socketID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, socketID)
	for room, members := range h.rooms {
		delete(members, socketID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) join(socketID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[socketID]; !ok {
		return
	}
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[string]struct{})
	}
	h.rooms[room][socketID] = struct{}{}
}

func (h *Hub) JoinPersonal(socketID, userID string) {
	h.join(socketID, UserRoom(userID))
}

func (h *Hub) JoinConversation(socketID, conversationID string) {
	h.join(socketID, ConversationRoom(conversationID))
}

// InRoom reports membership; used by handlers and tests.
func (h *Hub) InRoom(socketID, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][socketID]
	return ok
}

func (h *Hub) send(c *Client, b []byte) {
	select {
	case c.send <- b:
	default:
		// slow consumer; drop rather than stall the event loop
	}
}

func (h *Hub) toRoom(room, exceptSocket string, frame ServerFrame) {
	b, err := json.Marshal(frame)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sid := range h.rooms[room] {
		if sid == exceptSocket {
			continue
		}
		if c, ok := h.clients[sid]; ok {
			h.send(c, b)
		}
	}
}

func (h *Hub) ToConversation(conversationID string, frame ServerFrame) {
	h.toRoom(ConversationRoom(conversationID), "", frame)
}

func (h *Hub) ToConversationExcept(conversationID, exceptSocket string, frame ServerFrame) {
	h.toRoom(ConversationRoom(conversationID), exceptSocket, frame)
}

func (h *Hub) ToUser(userID string, frame ServerFrame) {
	h.toRoom(UserRoom(userID), "", frame)
}

func (h *Hub) ToUserExcept(userID, exceptSocket string, frame ServerFrame) {
	h.toRoom(UserRoom(userID), exceptSocket, frame)
}

// ToAllExcept fans out to every connected socket but the sender, room
// membership regardless. Used for user_status_changed.
func (h *Hub) ToAllExcept(exceptSocket string, frame ServerFrame) {
	b, err := json.Marshal(frame)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sid, c := range h.clients {
		if sid == exceptSocket {
			continue
		}
		h.send(c, b)
	}
}

func (h *Hub) ToSocket(socketID string, frame ServerFrame) {
	b, err := json.Marshal(frame)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.clients[socketID]; ok {
		h.send(c, b)
	}
}

// Size returns the number of registered sockets.
func (h *Hub) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
