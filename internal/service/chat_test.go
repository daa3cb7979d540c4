package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/busqai/internal/model"
	"github.com/busqai/internal/negotiation"
)

const (
	chatID = "chat-1"
	buyer  = "buyer-1"
	seller = "seller-1"
)

var base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func activeChat() *model.Chat {
	return &model.Chat{ID: chatID, BuyerID: buyer, SellerID: seller, Status: model.ChatStatusActive}
}

func offerMsg(id, from string, sec int, amount float64) model.NegotiationMessage {
	return model.NegotiationMessage{
		ID: id, ChatID: chatID, SenderID: from, Kind: model.KindOffer,
		OfferAmount: model.Price(amount), CreatedAt: base.Add(time.Duration(sec) * time.Second),
	}
}

func newMsg(from string, kind model.MessageKind, amount *float64) *model.NegotiationMessage {
	return &model.NegotiationMessage{ID: "new", ChatID: chatID, SenderID: from, Kind: kind, OfferAmount: amount, CreatedAt: base.Add(time.Hour)}
}

func TestAppendRuleParticipantAndStatus(t *testing.T) {
	rule := AppendRule(5, newMsg("stranger", model.KindText, nil))
	assert.ErrorIs(t, rule(activeChat(), nil), ErrForbidden)

	closed := activeChat()
	closed.Status = model.ChatStatusAgreed
	rule = AppendRule(5, newMsg(buyer, model.KindText, nil))
	assert.ErrorIs(t, rule(closed, nil), ErrChatClosed)

	assert.NoError(t, rule(activeChat(), nil))
}

func TestAppendRuleOfferCeiling(t *testing.T) {
	var history []model.NegotiationMessage
	for i := 0; i < 4; i++ {
		from := buyer
		if i%2 == 1 {
			from = seller
		}
		history = append(history, offerMsg("o"+string(rune('a'+i)), from, i, float64(100+i)))
	}
	rule := AppendRule(5, newMsg(buyer, model.KindOffer, model.Price(110)))
	require.NoError(t, rule(activeChat(), history), "fifth offer is still within the ceiling")

	history = append(history, offerMsg("oe", buyer, 5, 110))
	rule = AppendRule(5, newMsg(seller, model.KindOffer, model.Price(105)))
	assert.ErrorIs(t, rule(activeChat(), history), ErrNotAllowed)

	text := AppendRule(5, newMsg(seller, model.KindText, nil))
	assert.NoError(t, text(activeChat(), history), "text is allowed after the ceiling")
}

func TestAppendRuleReject(t *testing.T) {
	history := []model.NegotiationMessage{offerMsg("o1", buyer, 0, 80)}

	own := AppendRule(5, newMsg(buyer, model.KindReject, nil))
	assert.ErrorIs(t, own(activeChat(), history), ErrNotAllowed)

	none := AppendRule(5, newMsg(seller, model.KindReject, nil))
	assert.ErrorIs(t, none(activeChat(), nil), ErrNotAllowed)

	assert.NoError(t, none(activeChat(), history))
}

func TestAppendRuleAfterTerminalMessage(t *testing.T) {
	history := []model.NegotiationMessage{
		offerMsg("o1", buyer, 0, 80),
		{ID: "r1", ChatID: chatID, SenderID: seller, Kind: model.KindReject, CreatedAt: base.Add(time.Second)},
	}
	// строка чата ещё active, но история уже завершена
	rule := AppendRule(5, newMsg(buyer, model.KindOffer, model.Price(90)))
	assert.ErrorIs(t, rule(activeChat(), history), ErrChatClosed)
}

func TestAcceptRule(t *testing.T) {
	history := []model.NegotiationMessage{
		offerMsg("o1", buyer, 0, 80),
		offerMsg("o2", seller, 1, 95),
	}
	assert.NoError(t, AcceptRule(5, buyer, 95)(activeChat(), history))
	assert.NoError(t, AcceptRule(5, buyer, 95.001)(activeChat(), history))
	assert.ErrorIs(t, AcceptRule(5, buyer, 90)(activeChat(), history), ErrNotAllowed, "amount must match the offer")
	assert.ErrorIs(t, AcceptRule(5, seller, 95)(activeChat(), history), ErrNotAllowed, "own offer")
	assert.ErrorIs(t, AcceptRule(5, "x", 95)(activeChat(), history), ErrForbidden)

	cancelled := activeChat()
	cancelled.Status = model.ChatStatusCancelled
	assert.ErrorIs(t, AcceptRule(5, buyer, 95)(cancelled, history), ErrChatClosed)
}

func TestAcceptRuleAtCeiling(t *testing.T) {
	history := []model.NegotiationMessage{
		offerMsg("o1", buyer, 0, 80),
		offerMsg("o2", seller, 1, 95),
	}
	n := negotiation.DeriveWithLimit(history, 2)
	require.Equal(t, negotiation.StatusClosed, n.Status)
	assert.NoError(t, AcceptRule(2, buyer, 95)(activeChat(), history))
}

func TestBuildMessage(t *testing.T) {
	s := &ChatService{}

	m, err := s.buildMessage(buyer, chatID, model.SendMessageRequest{MessageType: model.KindOffer, OfferPrice: model.Price(99.999)})
	require.NoError(t, err)
	assert.Equal(t, 100.0, m.Amount())
	assert.Equal(t, negotiation.OfferContent(100), m.Content)
	assert.NotEmpty(t, m.ID)
	assert.True(t, m.CreatedAt.IsZero(), "created_at ставится при вставке")

	m, err = s.buildMessage(buyer, chatID, model.SendMessageRequest{Content: "  hola  "})
	require.NoError(t, err)
	assert.Equal(t, model.KindText, m.Kind)
	assert.Equal(t, "hola", m.Content)

	m, err = s.buildMessage(seller, chatID, model.SendMessageRequest{MessageType: model.KindReject})
	require.NoError(t, err)
	assert.Equal(t, negotiation.RejectContent, m.Content)

	bad := []model.SendMessageRequest{
		{Content: "   "},
		{MessageType: model.KindOffer},
		{MessageType: model.KindOffer, OfferPrice: model.Price(-1)},
		{MessageType: model.KindAccept, OfferPrice: model.Price(10)},
		{MessageType: model.KindSystem, Content: "x"},
		{MessageType: "bogus", Content: "x"},
	}
	for _, req := range bad {
		_, err := s.buildMessage(buyer, chatID, req)
		assert.ErrorIs(t, err, ErrInvalidMessage, "%+v", req)
	}
}
