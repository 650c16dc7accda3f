package ws

import (
	"encoding/json"
	"log"
	"sync"

	"rhythmhub/internal/model"
	"rhythmhub/internal/service"
)

// Message is the server-to-client WebSocket envelope format
type Message struct {
	Event   model.EventType `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Connection represents a WebSocket connection
type Connection struct {
	ID      string
	UserID  int64
	TokenID string
	Kind    service.HubKind
	Send    chan []byte
	Hub     *Hub
}

// BroadcastMessage is a message to broadcast
type BroadcastMessage struct {
	Group   string // Non-empty means deliver to a group
	UserID  int64  // Non-zero means deliver to every connection of one user
	ConnID  string // Non-empty means deliver to a single connection
	Message *Message
}

// Hub manages WebSocket connections and broadcast groups. Group
// membership is keyed by user id so it survives reconnects of the same
// client instance.
type Hub struct {
	// Connection -> conn, user -> connections, group -> member users
	conns     map[string]*Connection
	userConns map[int64]map[string]*Connection
	groups    map[string]map[int64]struct{}

	mu sync.RWMutex

	// Channels for coordination
	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *BroadcastMessage
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	h := &Hub{
		conns:      make(map[string]*Connection),
		userConns:  make(map[int64]map[string]*Connection),
		groups:     make(map[string]map[int64]struct{}),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *BroadcastMessage, 256),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.conns[conn.ID] = conn
			if h.userConns[conn.UserID] == nil {
				h.userConns[conn.UserID] = make(map[string]*Connection)
			}
			h.userConns[conn.UserID][conn.ID] = conn
			h.mu.Unlock()
			log.Printf("user %d connected to %s hub (%s)", conn.UserID, conn.Kind, conn.ID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if existing, ok := h.conns[conn.ID]; ok && existing == conn {
				delete(h.conns, conn.ID)
				if conns, ok := h.userConns[conn.UserID]; ok {
					delete(conns, conn.ID)
					if len(conns) == 0 {
						delete(h.userConns, conn.UserID)
					}
				}
				close(conn.Send)
				log.Printf("user %d disconnected from %s hub (%s)", conn.UserID, conn.Kind, conn.ID)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			data, _ := json.Marshal(msg.Message)

			switch {
			case msg.ConnID != "":
				if conn, ok := h.conns[msg.ConnID]; ok {
					h.send(conn, data)
				}
			case msg.UserID != 0:
				for _, conn := range h.userConns[msg.UserID] {
					h.send(conn, data)
				}
			case msg.Group != "":
				for userID := range h.groups[msg.Group] {
					for _, conn := range h.userConns[userID] {
						h.send(conn, data)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) send(conn *Connection, data []byte) {
	select {
	case conn.Send <- data:
	default:
		// Drop message if buffer full
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// BroadcastToGroup sends an event to every member of a group (implements service.Broadcaster)
func (h *Hub) BroadcastToGroup(group string, event model.EventType, payload any) {
	h.broadcast <- &BroadcastMessage{Group: group, Message: newMessage(event, payload)}
}

// BroadcastToUser sends an event to every connection of a user (implements service.Broadcaster)
func (h *Hub) BroadcastToUser(userID int64, event model.EventType, payload any) {
	h.broadcast <- &BroadcastMessage{UserID: userID, Message: newMessage(event, payload)}
}

// BroadcastToConnection sends an event to a single connection (implements service.Broadcaster)
func (h *Hub) BroadcastToConnection(connID string, event model.EventType, payload any) {
	h.broadcast <- &BroadcastMessage{ConnID: connID, Message: newMessage(event, payload)}
}

// AddUserToGroup adds a user to a broadcast group (implements service.Broadcaster)
func (h *Hub) AddUserToGroup(userID int64, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.groups[group] == nil {
		h.groups[group] = make(map[int64]struct{})
	}
	h.groups[group][userID] = struct{}{}
}

// RemoveUserFromGroup removes a user from a broadcast group (implements service.Broadcaster)
func (h *Hub) RemoveUserFromGroup(userID int64, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.groups[group]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
}

// RequestDisconnect asks a connection to close, then tears it down
// server-side. Buffered messages, the disconnect event included, are
// still flushed before the socket closes (implements service.Broadcaster)
func (h *Hub) RequestDisconnect(connID string) {
	h.mu.RLock()
	conn, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	data, _ := json.Marshal(newMessage(model.EventDisconnectRequested, nil))
	h.send(conn, data)
	h.Unregister(conn)
}

func newMessage(event model.EventType, payload any) *Message {
	var data json.RawMessage
	if payload != nil {
		data, _ = json.Marshal(payload)
	}
	return &Message{Event: event, Payload: data}
}
