package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/busqai/internal/logger"
	"github.com/busqai/internal/model"
	"github.com/busqai/internal/repository"
	"github.com/busqai/internal/service"
	"github.com/busqai/internal/ws"
)

// ChatAccess проверяет, что пользователь — участник чата.
type ChatAccess interface {
	Get(ctx context.Context, userID, chatID string) (*model.Chat, error)
}

type WSHandler struct {
	hub            *ws.Hub
	chats          ChatAccess
	allowedOrigins string
}

// NewWSHandler создаёт обработчик WebSocket. allowedOrigins — как в CORS (через запятую или "*").
func NewWSHandler(hub *ws.Hub, chats ChatAccess, allowedOrigins string) *WSHandler {
	return &WSHandler{hub: hub, chats: chats, allowedOrigins: strings.TrimSpace(allowedOrigins)}
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if h.allowedOrigins == "*" || h.allowedOrigins == "" {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, o := range strings.Split(h.allowedOrigins, ",") {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}

// ServeWS — GET /ws/chats/{chatId}: подписка участника на комнату чата.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(w, r)
	if userID == "" {
		return
	}
	if !h.checkOrigin(r) {
		writeError(w, http.StatusForbidden, "origin not allowed")
		return
	}
	chatID := chi.URLParam(r, "chatId")
	if _, err := h.chats.Get(r.Context(), userID, chatID); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "chat not found")
		case errors.Is(err, service.ErrForbidden):
			writeError(w, http.StatusForbidden, err.Error())
		default:
			logger.Errorf("ws chat %s: %v", chatID, err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := ws.NewClient(h.hub, conn, chatID, userID)
	client.Start(ctx, cancel)
	h.hub.Register(client)
}
