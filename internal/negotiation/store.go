package negotiation

import (
	"context"
	"sort"

	"github.com/busqai/internal/model"
)

// HistorySource отдаёт историю чата по возрастанию created_at.
type HistorySource interface {
	LoadMessages(ctx context.Context, chatID string) ([]model.NegotiationMessage, error)
}

// Store — упорядоченный журнал сообщений одного чата без дублей.
// Не потокобезопасен: владелец (Controller) сериализует доступ.
type Store struct {
	chatID string
	msgs   []model.NegotiationMessage
	ids    map[string]struct{}
}

func NewStore(chatID string) *Store {
	return &Store{chatID: chatID, ids: make(map[string]struct{})}
}

func (s *Store) ChatID() string { return s.chatID }

// LoadHistory загружает историю и объединяет её с уже полученными сообщениями.
// Объединение (а не замена) сохраняет сообщения, пришедшие по realtime раньше ответа.
func (s *Store) LoadHistory(ctx context.Context, src HistorySource) error {
	msgs, err := src.LoadMessages(ctx, s.chatID)
	if err != nil {
		return &LoadError{ChatID: s.chatID, Err: err}
	}
	s.Merge(msgs)
	return nil
}

// Merge добавляет пачку сообщений. Возвращает число реально добавленных.
func (s *Store) Merge(msgs []model.NegotiationMessage) int {
	added := 0
	for _, m := range msgs {
		if s.Append(m) {
			added++
		}
	}
	return added
}

// Append вставляет сообщение с сохранением порядка (created_at, id).
// Повторное сообщение с тем же id и сообщения чужого чата игнорируются.
func (s *Store) Append(m model.NegotiationMessage) bool {
	if m.ID == "" || m.ChatID != s.chatID {
		return false
	}
	if _, ok := s.ids[m.ID]; ok {
		return false
	}
	s.ids[m.ID] = struct{}{}
	i := sort.Search(len(s.msgs), func(i int) bool { return m.Before(s.msgs[i]) })
	s.msgs = append(s.msgs, model.NegotiationMessage{})
	copy(s.msgs[i+1:], s.msgs[i:])
	s.msgs[i] = m
	return true
}

func (s *Store) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *Store) Len() int { return len(s.msgs) }

// Messages возвращает копию журнала.
func (s *Store) Messages() []model.NegotiationMessage {
	out := make([]model.NegotiationMessage, len(s.msgs))
	copy(out, s.msgs)
	return out
}
