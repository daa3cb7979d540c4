package model

import "time"

// MessageKind — тип сообщения в переговорах.
type MessageKind string

const (
	KindText   MessageKind = "text"
	KindOffer  MessageKind = "offer"
	KindAccept MessageKind = "accept"
	KindReject MessageKind = "reject"
	KindSystem MessageKind = "system"
)

// Valid сообщает, известен ли тип.
func (k MessageKind) Valid() bool {
	switch k {
	case KindText, KindOffer, KindAccept, KindReject, KindSystem:
		return true
	}
	return false
}

// Terminal — accept и reject завершают переговоры.
func (k MessageKind) Terminal() bool {
	return k == KindAccept || k == KindReject
}

// NegotiationMessage — одна запись в истории переговоров. После создания не изменяется.
// Порядок внутри чата: CreatedAt по возрастанию, при равенстве — ID.
type NegotiationMessage struct {
	ID          string      `json:"id"`
	ChatID      string      `json:"chat_id"`
	SenderID    string      `json:"sender_id"`
	Kind        MessageKind `json:"message_type"`
	Content     string      `json:"content"`
	OfferAmount *float64    `json:"offer_price,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Before задаёт полный порядок сообщений одного чата.
func (m NegotiationMessage) Before(other NegotiationMessage) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}

// Amount возвращает сумму предложения или 0.
func (m NegotiationMessage) Amount() float64 {
	if m.OfferAmount == nil {
		return 0
	}
	return *m.OfferAmount
}

// Price — удобный конструктор указателя на сумму.
func Price(v float64) *float64 { return &v }
