package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/busqai/internal/logger"
	"github.com/busqai/internal/model"
	"github.com/busqai/internal/push"
	"github.com/busqai/internal/repository"
	"github.com/busqai/internal/service"
)

// ChatAPI — переговоры по товару (service.ChatService).
type ChatAPI interface {
	Open(ctx context.Context, buyerID, productID string) (*model.Chat, bool, error)
	Get(ctx context.Context, userID, chatID string) (*model.Chat, error)
	List(ctx context.Context, userID string) ([]model.ChatSummary, error)
	Messages(ctx context.Context, userID, chatID string) ([]model.NegotiationMessage, error)
	Append(ctx context.Context, userID, chatID string, req model.SendMessageRequest) (*model.NegotiationMessage, *model.Chat, error)
	Accept(ctx context.Context, userID, chatID string, amount float64) (*model.AcceptResult, *model.Chat, error)
}

// MessagePublisher рассылает сохранённое сообщение в комнату чата (ws.Hub).
type MessagePublisher interface {
	PublishMessage(m model.NegotiationMessage)
}

// Notifier отправляет пуш второй стороне (push.Client).
type Notifier interface {
	Notify(ctx context.Context, n push.NotifyRequest)
}

type ProductLookup interface {
	GetByID(ctx context.Context, id string) (*model.ProductSearchResult, error)
}

type ChatHandler struct {
	chats    ChatAPI
	hub      MessagePublisher
	notifier Notifier
	products ProductLookup
}

// NewChatHandler: notifier и products могут быть nil — тогда пуши не отправляются.
func NewChatHandler(chats ChatAPI, hub MessagePublisher, notifier Notifier, products ProductLookup) *ChatHandler {
	return &ChatHandler{chats: chats, hub: hub, notifier: notifier, products: products}
}

// writeChatError переводит ошибки переговоров в HTTP-статусы.
func writeChatError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrChatClosed), errors.Is(err, service.ErrNotAllowed),
		errors.Is(err, service.ErrProductUnavailable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidMessage), errors.Is(err, service.ErrOwnProduct),
		errors.Is(err, service.ErrNotSeller):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		logger.Errorf("%s: %v", op, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// Open — POST /api/chats: открыть или получить существующий чат по товару.
func (h *ChatHandler) Open(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(w, r)
	if userID == "" {
		return
	}
	var req model.OpenChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		writeError(w, http.StatusBadRequest, "product_id required")
		return
	}
	chat, created, err := h.chats.Open(r.Context(), userID, req.ProductID)
	if err != nil {
		writeChatError(w, "chat open", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, chat)
}

func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(w, r)
	if userID == "" {
		return
	}
	list, err := h.chats.List(r.Context(), userID)
	if err != nil {
		writeChatError(w, "chat list", err)
		return
	}
	if list == nil {
		list = []model.ChatSummary{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(w, r)
	if userID == "" {
		return
	}
	chat, err := h.chats.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeChatError(w, "chat get", err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

// Messages — вся история чата по возрастанию.
func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("chat.Messages", time.Now())()
	userID := currentUser(w, r)
	if userID == "" {
		return
	}
	list, err := h.chats.Messages(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeChatError(w, "chat messages", err)
		return
	}
	if list == nil {
		list = []model.NegotiationMessage{}
	}
	writeJSON(w, http.StatusOK, list)
}

// SendMessage — text, offer или reject. Сохранённое сообщение уходит в комнату и пушем собеседнику.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("chat.SendMessage", time.Now())()
	userID := currentUser(w, r)
	if userID == "" {
		return
	}
	var req model.SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, chat, err := h.chats.Append(r.Context(), userID, chi.URLParam(r, "id"), req)
	if err != nil {
		writeChatError(w, "chat append", err)
		return
	}
	h.publish(*msg, chat, userID)
	writeJSON(w, http.StatusCreated, msg)
}

// Accept — POST /api/chats/{id}/accept: сделка по последнему предложению собеседника.
func (h *ChatHandler) Accept(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("chat.Accept", time.Now())()
	userID := currentUser(w, r)
	if userID == "" {
		return
	}
	var req model.AcceptOfferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, chat, err := h.chats.Accept(r.Context(), userID, chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		writeChatError(w, "chat accept", err)
		return
	}
	h.publish(res.Message, chat, userID)
	writeJSON(w, http.StatusOK, res)
}

func (h *ChatHandler) publish(m model.NegotiationMessage, chat *model.Chat, senderID string) {
	if h.hub != nil {
		h.hub.PublishMessage(m)
	}
	if h.notifier == nil || chat == nil {
		return
	}
	recipient := chat.Counterpart(senderID)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		title := ""
		if h.products != nil {
			if p, err := h.products.GetByID(ctx, chat.ProductID); err == nil {
				title = p.Title
			}
		}
		if n, ok := push.NegotiationNotice(recipient, title, m); ok {
			h.notifier.Notify(ctx, n)
		}
	}()
}
