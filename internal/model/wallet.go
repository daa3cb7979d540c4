package model

import "time"

type Wallet struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Balance     float64   `json:"balance"`
	TotalEarned float64   `json:"total_earned"`
	TotalSpent  float64   `json:"total_spent"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type MovementType string

const (
	MovementCredit MovementType = "credit"
	MovementDebit  MovementType = "debit"
)

// Тип основания движения по кошельку.
const (
	ReferenceRecharge   = "recharge"
	ReferenceCommission = "commission"
)

type WalletMovement struct {
	ID            string       `json:"id"`
	WalletID      string       `json:"wallet_id"`
	UserID        string       `json:"user_id"`
	Type          MovementType `json:"type"`
	Amount        float64      `json:"amount"`
	Description   string       `json:"description"`
	ReferenceID   string       `json:"reference_id,omitempty"`
	ReferenceType string       `json:"reference_type,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

type SaleStatus string

const (
	SaleStatusPending   SaleStatus = "pending"
	SaleStatusCompleted SaleStatus = "completed"
	SaleStatusCancelled SaleStatus = "cancelled"
)

// Sale — завершённая сделка; комиссия списывается с кошелька продавца.
type Sale struct {
	ID               string     `json:"id"`
	ChatID           string     `json:"chat_id"`
	ProductID        string     `json:"product_id"`
	BuyerID          string     `json:"buyer_id"`
	SellerID         string     `json:"seller_id"`
	FinalPrice       float64    `json:"final_price"`
	CommissionRate   float64    `json:"commission_rate"`
	CommissionAmount float64    `json:"commission_amount"`
	SellerEarnings   float64    `json:"seller_earnings"`
	Status           SaleStatus `json:"status"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// SellerMetrics — сводка для панели продавца.
type SellerMetrics struct {
	Products    int     `json:"products"`
	ActiveChats int     `json:"active_chats"`
	Sales       int     `json:"sales"`
	Revenue     float64 `json:"revenue"`
	Commissions float64 `json:"commissions"`
	Views       int     `json:"views"`
}

// AcceptResult — ответ транзакции принятия предложения.
type AcceptResult struct {
	Message NegotiationMessage `json:"message"`
	Sale    Sale               `json:"sale"`
}
