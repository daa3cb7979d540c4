package handler

import (
	"context"
	"net/http"

	"github.com/busqai/internal/logger"
	"github.com/busqai/internal/push"
)

// Subscriber — подписки пользователя на пуши (push.Client).
type Subscriber interface {
	Subscribe(ctx context.Context, userID string, sub push.Subscription) error
	Unsubscribe(ctx context.Context, userID, endpoint string) error
}

type PushHandler struct {
	client Subscriber
}

func NewPushHandler(client Subscriber) *PushHandler {
	return &PushHandler{client: client}
}

type subscribeBody struct {
	Subscription push.Subscription `json:"subscription"`
}

func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(w, r)
	if userID == "" {
		return
	}
	var req subscribeBody
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Subscription.Valid() {
		writeError(w, http.StatusBadRequest, "subscription.endpoint and subscription.keys required")
		return
	}
	if err := h.client.Subscribe(r.Context(), userID, req.Subscription); err != nil {
		logger.Errorf("push subscribe %s: %v", userID, err)
		writeError(w, http.StatusBadGateway, "failed to subscribe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(w, r)
	if userID == "" {
		return
	}
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint required")
		return
	}
	if err := h.client.Unsubscribe(r.Context(), userID, req.Endpoint); err != nil {
		logger.Errorf("push unsubscribe %s: %v", userID, err)
		writeError(w, http.StatusBadGateway, "failed to unsubscribe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
