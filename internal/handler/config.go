package handler

import (
	"net/http"

	"github.com/busqai/internal/config"
)

// ConfigHandler отдаёт публичные параметры для клиентов (без авторизации).
type ConfigHandler struct {
	cfg *config.Config
}

func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

// GetNegotiationConfig — лимит раундов, комиссия и тайминги клиента.
func (h *ConfigHandler) GetNegotiationConfig(w http.ResponseWriter, r *http.Request) {
	n := h.cfg.Negotiation
	writeJSON(w, http.StatusOK, map[string]any{
		"max_rounds":        n.MaxRounds,
		"commission_rate":   n.CommissionRate,
		"typing_quiet_ms":   n.TypingQuietMS,
		"poll_interval_sec": n.PollIntervalSec,
	})
}

// GetPushConfig — публичный VAPID-ключ, если пуши включены.
func (h *ConfigHandler) GetPushConfig(w http.ResponseWriter, r *http.Request) {
	if h.cfg.PushServiceURL == "" || h.cfg.PushVAPIDPublicKey == "" {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":          true,
		"vapid_public_key": h.cfg.PushVAPIDPublicKey,
	})
}
