package negotiation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/busqai/internal/model"
)

type historyFunc func(ctx context.Context, chatID string) ([]model.NegotiationMessage, error)

func (f historyFunc) LoadMessages(ctx context.Context, chatID string) ([]model.NegotiationMessage, error) {
	return f(ctx, chatID)
}

func TestStoreAppendIsIdempotent(t *testing.T) {
	s := NewStore(testChat)
	m := offer("m1", testBuyer, 100, 1)

	assert.True(t, s.Append(m))
	before := s.Messages()
	assert.False(t, s.Append(m), "second append of the same id must be a no-op")
	assert.Equal(t, before, s.Messages())
	assert.Equal(t, 1, s.Len())
}

func TestStoreKeepsChronologicalOrder(t *testing.T) {
	s := NewStore(testChat)
	s.Append(offer("c", testBuyer, 90, 3))
	s.Append(text("a", testBuyer, "hola", 1))
	s.Append(offer("b", testSeller, 95, 2))
	// тот же created_at, порядок по id
	s.Append(text("b0", testSeller, "?", 2))

	var ids []string
	for _, m := range s.Messages() {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"a", "b", "b0", "c"}, ids)
}

func TestStoreIgnoresForeignChat(t *testing.T) {
	s := NewStore(testChat)
	m := offer("m1", testBuyer, 100, 1)
	m.ChatID = "other"
	assert.False(t, s.Append(m))
	assert.False(t, s.Append(model.NegotiationMessage{ChatID: testChat}))
	assert.Equal(t, 0, s.Len())
}

func TestStoreMessagesReturnsCopy(t *testing.T) {
	s := NewStore(testChat)
	s.Append(offer("m1", testBuyer, 100, 1))
	out := s.Messages()
	out[0].Content = "mutated"
	assert.Equal(t, OfferContent(100), s.Messages()[0].Content)
}

func TestStoreLoadHistoryMergesWithLiveMessages(t *testing.T) {
	s := NewStore(testChat)
	// эхо пришло раньше, чем ответ на загрузку истории
	require.True(t, s.Append(offer("m2", testBuyer, 90, 2)))

	src := historyFunc(func(_ context.Context, chatID string) ([]model.NegotiationMessage, error) {
		assert.Equal(t, testChat, chatID)
		return []model.NegotiationMessage{
			text("m1", testBuyer, "hola", 1),
			offer("m2", testBuyer, 90, 2),
		}, nil
	})
	require.NoError(t, s.LoadHistory(context.Background(), src))
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Contains("m1"))
}

func TestStoreLoadHistoryError(t *testing.T) {
	s := NewStore(testChat)
	boom := errors.New("network down")
	err := s.LoadHistory(context.Background(), historyFunc(func(context.Context, string) ([]model.NegotiationMessage, error) {
		return nil, boom
	}))

	var lerr *LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, testChat, lerr.ChatID)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.Len())
}
