package negotiation

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthRequired — действие без аутентифицированного пользователя. Повтор не поможет.
	ErrAuthRequired = errors.New("negotiation: authentication required")
	// ErrInvalidAmount — сумма не конечна или не положительна.
	ErrInvalidAmount = errors.New("negotiation: amount must be a finite number > 0")
	// ErrOfferNotAllowed — переговоры завершены или исчерпан лимит раундов.
	ErrOfferNotAllowed = errors.New("negotiation: offers are closed")
	// ErrAcceptNotAllowed — нет предложения другой стороны, которое можно принять или отклонить.
	ErrAcceptNotAllowed = errors.New("negotiation: nothing to accept")
	// ErrNegotiationClosed — бэкенд отказал: чат уже завершён (например, другая сторона успела принять).
	ErrNegotiationClosed = errors.New("negotiation: chat already resolved")
	// ErrChatNotFound — чата нет (удалён или неверный id). Повтор не поможет.
	ErrChatNotFound = errors.New("negotiation: chat not found")
	// ErrEmptyMessage — пустой текст сообщения.
	ErrEmptyMessage = errors.New("negotiation: empty message")
	// ErrNotReady — история ещё не загружена или контроллер закрыт.
	ErrNotReady = errors.New("negotiation: session not ready")
)

// LoadError — не удалось загрузить историю (сеть, права, чат не найден).
type LoadError struct {
	ChatID string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load history chat=%s: %v", e.ChatID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SendError — не удалось отправить сообщение/принять/отклонить. Локально ничего не добавлено.
type SendError struct {
	Action string
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %s: %v", e.Action, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// SubscriptionError — realtime-канал не установлен или оборвался.
type SubscriptionError struct {
	ChatID string
	Err    error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("realtime chat=%s: %v", e.ChatID, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }
