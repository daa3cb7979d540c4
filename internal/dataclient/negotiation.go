package dataclient

import (
	"context"
	"net/url"

	"github.com/busqai/internal/model"
	"github.com/busqai/internal/negotiation"
)

var _ negotiation.DataService = (*Client)(nil)

func chatPath(chatID string, suffix string) string {
	return "/api/chats/" + url.PathEscape(chatID) + suffix
}

// LoadMessages возвращает историю чата по возрастанию created_at.
func (c *Client) LoadMessages(ctx context.Context, chatID string) ([]model.NegotiationMessage, error) {
	var out []model.NegotiationMessage
	if err := c.get(ctx, chatPath(chatID, "/messages"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AppendMessage(ctx context.Context, chatID, content string, kind model.MessageKind, offerAmount *float64) (*model.NegotiationMessage, error) {
	req := model.SendMessageRequest{Content: content, MessageType: kind, OfferPrice: offerAmount}
	var out model.NegotiationMessage
	if err := c.post(ctx, chatPath(chatID, "/messages"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AcceptOffer — транзакция на сервере: фиксирует цену, списывает комиссию, создаёт продажу.
func (c *Client) AcceptOffer(ctx context.Context, chatID string, amount float64) (*model.AcceptResult, error) {
	var out model.AcceptResult
	if err := c.post(ctx, chatPath(chatID, "/accept"), model.AcceptOfferRequest{Amount: amount}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OpenChat открывает переговоры по товару или возвращает уже существующие.
func (c *Client) OpenChat(ctx context.Context, productID string) (*model.Chat, error) {
	var out model.Chat
	if err := c.post(ctx, "/api/chats", model.OpenChatRequest{ProductID: productID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListChats(ctx context.Context) ([]model.ChatSummary, error) {
	var out []model.ChatSummary
	if err := c.get(ctx, "/api/chats", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetChat(ctx context.Context, chatID string) (*model.Chat, error) {
	var out model.Chat
	if err := c.get(ctx, chatPath(chatID, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
