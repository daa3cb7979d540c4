package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/busqai/internal/logger"
	"github.com/busqai/internal/model"
)

// GreetingText — первое сообщение покупателя в новом чате.
const GreetingText = "¡Hola! Estoy interesado en este producto."

const chatCols = `c.id, c.product_id, c.buyer_id, c.seller_id, c.status, c.final_price, c.agreed_at, c.created_at, c.updated_at`

// querier — общее у pgxpool.Pool и pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type ChatRepository struct {
	pool *pgxpool.Pool
}

func NewChatRepository(pool *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{pool: pool}
}

func chatDest(c *model.Chat) []any {
	return []any{&c.ID, &c.ProductID, &c.BuyerID, &c.SellerID, &c.Status, &c.FinalPrice, &c.AgreedAt, &c.CreatedAt, &c.UpdatedAt}
}

func getChat(ctx context.Context, q querier, id string, forUpdate bool) (*model.Chat, error) {
	sql := `SELECT ` + chatCols + ` FROM chats c WHERE c.id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	c := &model.Chat{}
	if err := q.QueryRow(ctx, sql, id).Scan(chatDest(c)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *ChatRepository) GetByID(ctx context.Context, id string) (*model.Chat, error) {
	defer logger.DeferLogDuration("chat.GetByID", time.Now())()
	c, err := getChat(ctx, r.pool, id, false)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("chatRepo.GetByID: %w", err)
	}
	return c, err
}

// FindByParticipants — чат по товару между покупателем и продавцом.
func (r *ChatRepository) FindByParticipants(ctx context.Context, productID, buyerID, sellerID string) (*model.Chat, error) {
	defer logger.DeferLogDuration("chat.FindByParticipants", time.Now())()
	c := &model.Chat{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+chatCols+` FROM chats c WHERE c.product_id = $1 AND c.buyer_id = $2 AND c.seller_id = $3`,
		productID, buyerID, sellerID,
	).Scan(chatDest(c)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chatRepo.FindByParticipants: %w", err)
	}
	return c, nil
}

// Open создаёт чат с приветствием покупателя и увеличивает chat_count товара.
// При гонке двух открытий возвращается уже созданный чат.
func (r *ChatRepository) Open(ctx context.Context, productID, buyerID, sellerID string) (*model.Chat, bool, error) {
	defer logger.DeferLogDuration("chat.Open", time.Now())()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("chatRepo.Open: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC().Truncate(time.Microsecond)
	c := &model.Chat{
		ID: uuid.New().String(), ProductID: productID, BuyerID: buyerID, SellerID: sellerID,
		Status: model.ChatStatusActive, CreatedAt: now, UpdatedAt: now,
	}
	tag, err := tx.Exec(ctx,
		`INSERT INTO chats (id, product_id, buyer_id, seller_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 ON CONFLICT (product_id, buyer_id, seller_id) DO NOTHING`,
		c.ID, c.ProductID, c.BuyerID, c.SellerID, c.Status, now)
	if err != nil {
		return nil, false, fmt.Errorf("chatRepo.Open: %w", err)
	}
	if tag.RowsAffected() == 0 {
		tx.Rollback(ctx)
		existing, err := r.FindByParticipants(ctx, productID, buyerID, sellerID)
		return existing, false, err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO chat_messages (id, chat_id, sender_id, message_type, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New().String(), c.ID, buyerID, model.KindText, GreetingText, now); err != nil {
		return nil, false, fmt.Errorf("chatRepo.Open greeting: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE products SET chat_count = chat_count + 1 WHERE id = $1`, productID); err != nil {
		return nil, false, fmt.Errorf("chatRepo.Open chat_count: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("chatRepo.Open commit: %w", err)
	}
	return c, true, nil
}

// ListForUser — чаты пользователя (как покупателя и как продавца) с товаром,
// именем собеседника и последним сообщением; свежие сверху.
func (r *ChatRepository) ListForUser(ctx context.Context, userID string) ([]model.ChatSummary, error) {
	defer logger.DeferLogDuration("chat.ListForUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+chatCols+`, p.title, p.image_url, cp.full_name,
		        m.id, m.sender_id, m.message_type, m.content, m.offer_price, m.created_at
		 FROM chats c
		 JOIN products p ON p.id = c.product_id
		 JOIN profiles cp ON cp.id = CASE WHEN c.buyer_id = $1 THEN c.seller_id ELSE c.buyer_id END
		 LEFT JOIN LATERAL (
		   SELECT id, sender_id, message_type, content, offer_price, created_at
		   FROM chat_messages WHERE chat_id = c.id
		   ORDER BY created_at DESC, id DESC LIMIT 1
		 ) m ON TRUE
		 WHERE c.buyer_id = $1 OR c.seller_id = $1
		 ORDER BY COALESCE(m.created_at, c.created_at) DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("chatRepo.ListForUser: %w", err)
	}
	defer rows.Close()
	list := []model.ChatSummary{}
	for rows.Next() {
		var (
			s                        model.ChatSummary
			msgID, sender, kind, txt *string
			price                    *float64
			at                       *time.Time
		)
		dest := append(chatDest(&s.Chat), &s.ProductTitle, &s.ProductImage, &s.Counterpart,
			&msgID, &sender, &kind, &txt, &price, &at)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("chatRepo.ListForUser: %w", err)
		}
		if msgID != nil {
			s.LastMessage = &model.NegotiationMessage{
				ID: *msgID, ChatID: s.Chat.ID, SenderID: *sender, Kind: model.MessageKind(*kind),
				Content: *txt, OfferAmount: price, CreatedAt: *at,
			}
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
