package ws

import (
	"context"
	"sync"
	"time"

	"github.com/busqai/internal/logger"
	"github.com/busqai/internal/model"
)

// Hub раздаёт события по комнатам: одна комната — один чат переговоров.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[*Client]struct{}
	total    int
	maxConns int
	cfg      Settings

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(maxConns int, cfg Settings) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		rooms:      make(map[string]map[*Client]struct{}),
		maxConns:   maxConns,
		cfg:        cfg.withDefaults(),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	all := make([]*Client, 0, h.total)
	for _, clients := range h.rooms {
		for c := range clients {
			all = append(all, c)
		}
	}
	h.rooms = make(map[string]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
	for _, c := range all {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.userID)
		c.Close()
		return
	}
	room, ok := h.rooms[c.chatID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[c.chatID] = room
	}
	room[c] = struct{}{}
	h.total++
	h.mu.Unlock()
	logger.Debugf("ws join chat=%s user=%s", c.chatID, c.userID)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[c.chatID]
	if ok {
		if _, exists := room[c]; exists {
			delete(room, c)
			h.total--
			if len(room) == 0 {
				delete(h.rooms, c.chatID)
			}
		}
	}
	h.mu.Unlock()
	c.Close()
}

// RoomSize — число открытых соединений в комнате чата.
func (h *Hub) RoomSize(chatID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[chatID])
}

// HandleMessage обрабатывает кадр клиента.
func (h *Hub) HandleMessage(c *Client, msg IncomingMessage) {
	switch msg.Type {
	case EventTyping:
		h.relay(c, OutgoingMessage{Type: EventTyping, Payload: TypingPayload{ChatID: c.chatID, UserID: c.userID}})
	case EventNewMessage:
		h.sendToClient(c, errorEvent("messages are sent via POST /api/chats/{id}/messages"))
	default:
		h.sendToClient(c, errorEvent("unknown event type"))
	}
}

// BroadcastToChat отправляет событие всем соединениям комнаты.
func (h *Hub) BroadcastToChat(chatID string, msg OutgoingMessage) {
	defer logger.DeferLogDuration("ws.BroadcastToChat", time.Now())()
	for _, c := range h.roomClients(chatID, nil) {
		h.sendToClient(c, msg)
	}
}

// PublishMessage рассылает сохранённое сообщение переговоров участникам чата.
func (h *Hub) PublishMessage(m model.NegotiationMessage) {
	h.BroadcastToChat(m.ChatID, NewMessageEvent(m))
}

// relay — всем соединениям комнаты, кроме отправителя.
func (h *Hub) relay(from *Client, msg OutgoingMessage) {
	for _, c := range h.roomClients(from.chatID, from) {
		h.sendToClient(c, msg)
	}
}

func (h *Hub) roomClients(chatID string, except *Client) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room := h.rooms[chatID]
	out := make([]*Client, 0, len(room))
	for c := range room {
		if c != except {
			out = append(out, c)
		}
	}
	return out
}

func (h *Hub) sendToClient(c *Client, msg OutgoingMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		logger.Errorf("ws send buffer full, closing slow client chat=%s user=%s", c.chatID, c.userID)
		c.Close()
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
