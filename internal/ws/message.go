package ws

import "github.com/busqai/internal/model"

type EventType string

// События канала /ws/chats/{chatId}.
const (
	EventNewMessage EventType = "new_message"
	EventTyping     EventType = "typing"
	EventError      EventType = "error"
)

// IncomingMessage — кадр от клиента. Сообщения переговоров идут через REST, по сокету только typing.
type IncomingMessage struct {
	Type   EventType `json:"type"`
	ChatID string    `json:"chat_id,omitempty"`
	UserID string    `json:"user_id,omitempty"`
}

// OutgoingMessage — кадр сервера.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

type TypingPayload struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
}

// NewMessageEvent оборачивает сохранённое сообщение переговоров.
func NewMessageEvent(m model.NegotiationMessage) OutgoingMessage {
	return OutgoingMessage{Type: EventNewMessage, Payload: m}
}

func errorEvent(msg string) OutgoingMessage {
	return OutgoingMessage{Type: EventError, Payload: msg}
}
