package realtime

import "encoding/json"

// Типы событий канала /ws/chats/{chatId}. Совпадают с internal/ws.
const (
	EventNewMessage = "new_message"
	EventTyping     = "typing"
	EventError      = "error"
)

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type typingPayload struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
}

type outgoing struct {
	Type   string `json:"type"`
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id,omitempty"`
}
