package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/busqai/internal/logger"
	"github.com/busqai/internal/model"
)

const messageCols = `id, chat_id, sender_id, message_type, content, offer_price, created_at`

// AppendCheck решает, можно ли добавить сообщение, по заблокированному чату и его истории.
// Вызывается внутри транзакции; ошибка отменяет вставку и возвращается как есть.
type AppendCheck func(chat *model.Chat, history []model.NegotiationMessage) error

type MessageRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool, now: time.Now}
}

// stampMessage ставит created_at под блокировкой чата: с точностью timestamptz (мкс)
// и строго позже последнего сообщения истории, чтобы порядок совпадал с порядком вставки.
func stampMessage(m *model.NegotiationMessage, history []model.NegotiationMessage, now time.Time) {
	at := now.UTC().Truncate(time.Microsecond)
	if n := len(history); n > 0 {
		if last := history[n-1].CreatedAt.UTC(); !at.After(last) {
			at = last.Add(time.Microsecond)
		}
	}
	m.CreatedAt = at
}

func listMessages(ctx context.Context, q querier, chatID string) ([]model.NegotiationMessage, error) {
	rows, err := q.Query(ctx,
		`SELECT `+messageCols+` FROM chat_messages WHERE chat_id = $1 ORDER BY created_at ASC, id ASC`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []model.NegotiationMessage{}
	for rows.Next() {
		var m model.NegotiationMessage
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Kind, &m.Content, &m.OfferAmount, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		list = append(list, m)
	}
	return list, rows.Err()
}

func insertMessage(ctx context.Context, q querier, m *model.NegotiationMessage) error {
	_, err := q.Exec(ctx,
		`INSERT INTO chat_messages (id, chat_id, sender_id, message_type, content, offer_price, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.ChatID, m.SenderID, m.Kind, m.Content, m.OfferAmount, m.CreatedAt)
	return err
}

// ListByChat — история чата по возрастанию (created_at, id).
func (r *MessageRepository) ListByChat(ctx context.Context, chatID string) ([]model.NegotiationMessage, error) {
	defer logger.DeferLogDuration("message.ListByChat", time.Now())()
	list, err := listMessages(ctx, r.pool, chatID)
	if err != nil {
		return nil, fmt.Errorf("messageRepo.ListByChat: %w", err)
	}
	return list, nil
}

// Append добавляет сообщение под блокировкой строки чата. reject переводит чат в cancelled.
// m.CreatedAt заполняется сохранённым значением. Возвращает чат в состоянии после вставки.
func (r *MessageRepository) Append(ctx context.Context, m *model.NegotiationMessage, check AppendCheck) (*model.Chat, error) {
	defer logger.DeferLogDuration("message.Append", time.Now())()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("messageRepo.Append: %w", err)
	}
	defer tx.Rollback(ctx)

	chat, err := getChat(ctx, tx, m.ChatID, true)
	if err != nil {
		return nil, fmt.Errorf("messageRepo.Append: %w", err)
	}
	history, err := listMessages(ctx, tx, m.ChatID)
	if err != nil {
		return nil, fmt.Errorf("messageRepo.Append history: %w", err)
	}
	if check != nil {
		if err := check(chat, history); err != nil {
			return nil, err
		}
	}
	stampMessage(m, history, r.now())
	if err := insertMessage(ctx, tx, m); err != nil {
		return nil, fmt.Errorf("messageRepo.Append insert: %w", err)
	}
	status := chat.Status
	if m.Kind == model.KindReject {
		status = model.ChatStatusCancelled
	}
	if _, err := tx.Exec(ctx, `UPDATE chats SET status = $2, updated_at = $3 WHERE id = $1`,
		chat.ID, status, m.CreatedAt); err != nil {
		return nil, fmt.Errorf("messageRepo.Append chat: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("messageRepo.Append commit: %w", err)
	}
	chat.Status = status
	chat.UpdatedAt = m.CreatedAt
	return chat, nil
}
