package server

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

// Client is one websocket connection. All writes go through outbox and are
// drained by WritePump, so the socket has a single writer.
type Client struct {
	ID     string
	conn   *websocket.Conn
	outbox chan []byte
	done   chan struct{}
	once   sync.Once
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

// WritePump delivers queued frames until ctx ends, the client is
// unregistered, or a write fails.
func (c *Client) WritePump(ctx context.Context, logger *log.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case data := <-c.outbox:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warn("Write failed", "conn", c.ID, "err", err)
				return
			}
		}
	}
}

// Hub tracks live connections and room membership. It implements Gateway;
// its lock is never held while calling out.
type Hub struct {
	clients    map[string]*Client
	rooms      map[string]map[string]struct{} // roomID → connection ids
	outboxSize int
	logger     *log.Logger
	mu         sync.RWMutex
}

func NewHub(outboxSize int, logger *log.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]struct{}),
		outboxSize: outboxSize,
		logger:     logger.With("component", "hub"),
	}
}

func (h *Hub) Register(id string, conn *websocket.Conn) *Client {
	client := &Client{
		ID:     id,
		conn:   conn,
		outbox: make(chan []byte, h.outboxSize),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[id] = client
	return client
}

// Unregister forgets the connection and drops it from every room.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, exists := h.clients[id]
	if !exists {
		return
	}
	delete(h.clients, id)
	for roomID, members := range h.rooms {
		delete(members, id)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	client.close()
}

func (h *Hub) JoinRoom(connectionID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, exists := h.rooms[roomID]
	if !exists {
		members = make(map[string]struct{})
		h.rooms[roomID] = members
	}
	members[connectionID] = struct{}{}
}

func (h *Hub) LeaveRoom(connectionID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, exists := h.rooms[roomID]
	if !exists {
		return
	}
	delete(members, connectionID)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
}

func (h *Hub) Send(connectionID, event string, payload any) {
	data, ok := h.encode(event, payload)
	if !ok {
		return
	}

	h.mu.RLock()
	client := h.clients[connectionID]
	h.mu.RUnlock()

	if client == nil {
		h.logger.Debug("Send to unknown connection", "conn", connectionID, "event", event)
		return
	}
	h.enqueue(client, event, data)
}

func (h *Hub) BroadcastToRoom(roomID, event string, payload any, exclude ...string) {
	data, ok := h.encode(event, payload)
	if !ok {
		return
	}

	h.mu.RLock()
	recipients := make([]*Client, 0, len(h.rooms[roomID]))
	for id := range h.rooms[roomID] {
		if client := h.clients[id]; client != nil && !slices.Contains(exclude, id) {
			recipients = append(recipients, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range recipients {
		h.enqueue(client, event, data)
	}
}

func (h *Hub) encode(event string, payload any) ([]byte, bool) {
	data, err := json.Marshal(ServerMessage{Type: event, Payload: payload})
	if err != nil {
		h.logger.Error("Marshal error", "event", event, "err", err)
		return nil, false
	}
	return data, true
}

// enqueue never blocks. A full outbox means the peer is not keeping up and
// the frame is dropped.
func (h *Hub) enqueue(client *Client, event string, data []byte) {
	select {
	case <-client.done:
	case client.outbox <- data:
	default:
		h.logger.Warn("Outbox full, dropping message", "conn", client.ID, "event", event)
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) members(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// CloseAll sends a close frame to every connection and waits for the
// handshakes, bounded by ctx.
func (h *Hub) CloseAll(ctx context.Context, reason string) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for _, client := range h.clients {
		if client.conn != nil {
			conns = append(conns, client.conn)
		}
	}
	h.mu.RUnlock()

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn.Close(websocket.StatusGoingAway, reason)
		}()
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		h.logger.Warn("Timed out closing connections", "open", len(conns))
	}
}
