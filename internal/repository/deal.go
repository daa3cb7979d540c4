package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/busqai/internal/logger"
	"github.com/busqai/internal/model"
)

const saleCols = `id, chat_id, product_id, buyer_id, seller_id, final_price, commission_rate,
	commission_amount, seller_earnings, status, completed_at, created_at`

// AcceptParams — принятие предложения; комиссия уже посчитана вызывающим.
type AcceptParams struct {
	Message          model.NegotiationMessage
	CommissionRate   float64
	CommissionAmount float64
	SellerEarnings   float64
}

// DealRepository — транзакция сделки и продажи продавца.
type DealRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewDealRepository(pool *pgxpool.Pool) *DealRepository {
	return &DealRepository{pool: pool, now: time.Now}
}

func saleDest(s *model.Sale) []any {
	return []any{&s.ID, &s.ChatID, &s.ProductID, &s.BuyerID, &s.SellerID, &s.FinalPrice, &s.CommissionRate,
		&s.CommissionAmount, &s.SellerEarnings, &s.Status, &s.CompletedAt, &s.CreatedAt}
}

// Accept — всё или ничего: блокировка чата, проверка, сообщение accept, чат agreed с итоговой ценой,
// продажа, списание комиссии с кошелька продавца, счётчик продаж товара.
// Кто первым взял блокировку строки чата, тот и закрыл переговоры.
func (r *DealRepository) Accept(ctx context.Context, p AcceptParams, check AppendCheck) (*model.AcceptResult, *model.Chat, error) {
	defer logger.DeferLogDuration("deal.Accept", time.Now())()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("dealRepo.Accept: %w", err)
	}
	defer tx.Rollback(ctx)

	msg := p.Message
	chat, err := getChat(ctx, tx, msg.ChatID, true)
	if err != nil {
		return nil, nil, fmt.Errorf("dealRepo.Accept: %w", err)
	}
	if chat.Status != model.ChatStatusActive {
		return nil, nil, ErrChatClosed
	}
	history, err := listMessages(ctx, tx, chat.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("dealRepo.Accept history: %w", err)
	}
	if check != nil {
		if err := check(chat, history); err != nil {
			return nil, nil, err
		}
	}
	stampMessage(&msg, history, r.now())
	if err := insertMessage(ctx, tx, &msg); err != nil {
		return nil, nil, fmt.Errorf("dealRepo.Accept message: %w", err)
	}

	price := msg.Amount()
	now := msg.CreatedAt
	if _, err := tx.Exec(ctx,
		`UPDATE chats SET status = $2, final_price = $3, agreed_at = $4, updated_at = $4 WHERE id = $1`,
		chat.ID, model.ChatStatusAgreed, price, now); err != nil {
		return nil, nil, fmt.Errorf("dealRepo.Accept chat: %w", err)
	}
	chat.Status = model.ChatStatusAgreed
	chat.FinalPrice = &price
	chat.AgreedAt = &now
	chat.UpdatedAt = now

	sale := model.Sale{
		ID: uuid.New().String(), ChatID: chat.ID, ProductID: chat.ProductID,
		BuyerID: chat.BuyerID, SellerID: chat.SellerID, FinalPrice: price,
		CommissionRate: p.CommissionRate, CommissionAmount: p.CommissionAmount, SellerEarnings: p.SellerEarnings,
		Status: model.SaleStatusCompleted, CompletedAt: &now, CreatedAt: now,
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO sales (id, chat_id, product_id, buyer_id, seller_id, final_price, commission_rate,
		   commission_amount, seller_earnings, status, completed_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		sale.ID, sale.ChatID, sale.ProductID, sale.BuyerID, sale.SellerID, sale.FinalPrice, sale.CommissionRate,
		sale.CommissionAmount, sale.SellerEarnings, sale.Status, sale.CompletedAt, sale.CreatedAt); err != nil {
		return nil, nil, fmt.Errorf("dealRepo.Accept sale: %w", err)
	}

	wallet, err := ensureWallet(ctx, tx, chat.SellerID)
	if err != nil {
		return nil, nil, fmt.Errorf("dealRepo.Accept wallet: %w", err)
	}
	if p.CommissionAmount > 0 {
		mv := &model.WalletMovement{
			ID: uuid.New().String(), Type: model.MovementDebit, Amount: p.CommissionAmount,
			Description: fmt.Sprintf("Comisión %.0f%% venta Bs %.2f", p.CommissionRate*100, price),
			ReferenceID: sale.ID, ReferenceType: model.ReferenceCommission, CreatedAt: now,
		}
		if err := addMovement(ctx, tx, wallet, mv); err != nil {
			return nil, nil, fmt.Errorf("dealRepo.Accept commission: %w", err)
		}
	}
	if _, err := tx.Exec(ctx,
		`UPDATE wallets SET total_earned = total_earned + $2 WHERE id = $1`, wallet.ID, p.SellerEarnings); err != nil {
		return nil, nil, fmt.Errorf("dealRepo.Accept earnings: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE products SET sale_count = sale_count + 1, stock = GREATEST(stock - 1, 0),
		   is_available = stock - 1 > 0, updated_at = $2
		 WHERE id = $1`, chat.ProductID, now); err != nil {
		return nil, nil, fmt.Errorf("dealRepo.Accept product: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("dealRepo.Accept commit: %w", err)
	}
	return &model.AcceptResult{Message: msg, Sale: sale}, chat, nil
}

// SalesBySeller — продажи продавца, новые сверху.
func (r *DealRepository) SalesBySeller(ctx context.Context, sellerID string, limit int) ([]model.Sale, error) {
	defer logger.DeferLogDuration("deal.SalesBySeller", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+saleCols+` FROM sales WHERE seller_id = $1 ORDER BY created_at DESC LIMIT $2`,
		sellerID, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("dealRepo.SalesBySeller: %w", err)
	}
	defer rows.Close()
	list := []model.Sale{}
	for rows.Next() {
		var s model.Sale
		if err := rows.Scan(saleDest(&s)...); err != nil {
			return nil, fmt.Errorf("dealRepo.SalesBySeller: %w", err)
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// Metrics — сводка панели продавца.
func (r *DealRepository) Metrics(ctx context.Context, sellerID string) (*model.SellerMetrics, error) {
	defer logger.DeferLogDuration("deal.Metrics", time.Now())()
	m := &model.SellerMetrics{}
	err := r.pool.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM products WHERE seller_id = $1),
		   (SELECT COALESCE(SUM(view_count), 0) FROM products WHERE seller_id = $1),
		   (SELECT COUNT(*) FROM chats WHERE seller_id = $1 AND status = 'active'),
		   COUNT(s.id), COALESCE(SUM(s.final_price), 0), COALESCE(SUM(s.commission_amount), 0)
		 FROM sales s WHERE s.seller_id = $1 AND s.status = 'completed'`, sellerID,
	).Scan(&m.Products, &m.Views, &m.ActiveChats, &m.Sales, &m.Revenue, &m.Commissions)
	if err != nil {
		return nil, fmt.Errorf("dealRepo.Metrics: %w", err)
	}
	return m, nil
}
