package model

import "time"

type ChatStatus string

const (
	ChatStatusActive    ChatStatus = "active"
	ChatStatusAgreed    ChatStatus = "agreed"
	ChatStatusCancelled ChatStatus = "cancelled"
)

// Role — сторона в переговорах.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// Chat — переговоры по одному товару между покупателем и продавцом.
type Chat struct {
	ID         string     `json:"id"`
	ProductID  string     `json:"product_id"`
	BuyerID    string     `json:"buyer_id"`
	SellerID   string     `json:"seller_id"`
	Status     ChatStatus `json:"status"`
	FinalPrice *float64   `json:"final_price,omitempty"`
	AgreedAt   *time.Time `json:"agreed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// RoleOf возвращает роль пользователя в чате; ok=false если он не участник.
func (c *Chat) RoleOf(userID string) (Role, bool) {
	switch userID {
	case c.BuyerID:
		return RoleBuyer, true
	case c.SellerID:
		return RoleSeller, true
	}
	return "", false
}

// Counterpart возвращает id второй стороны.
func (c *Chat) Counterpart(userID string) string {
	if userID == c.BuyerID {
		return c.SellerID
	}
	return c.BuyerID
}

// ChatSummary — чат с товаром и последним сообщением для списков.
type ChatSummary struct {
	Chat         Chat                `json:"chat"`
	ProductTitle string              `json:"product_title"`
	ProductImage string              `json:"product_image,omitempty"`
	Counterpart  string              `json:"counterpart_name"`
	LastMessage  *NegotiationMessage `json:"last_message,omitempty"`
}
