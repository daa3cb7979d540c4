package handler

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/busqai/internal/logger"
	"github.com/busqai/internal/middleware"
	"github.com/busqai/internal/model"
	"github.com/busqai/internal/service"
	"github.com/busqai/internal/signing"
)

// OTPService — вход по SMS и управление сессиями (service.OTPAuthService).
type OTPService interface {
	RequestCode(ctx context.Context, req model.RequestCodeRequest) error
	VerifyCode(ctx context.Context, req model.VerifyCodeRequest) (*model.VerifyCodeResponse, error)
	ListSessions(ctx context.Context, profileID string) ([]model.Session, error)
	LogoutSession(ctx context.Context, profileID, sessionID string) (bool, error)
	LogoutAllSessions(ctx context.Context, profileID string) (int, error)
	ValidateRequest(ctx context.Context, p signing.Params, method, path, body string) (string, error)
}

type AuthHandler struct {
	otpSvc OTPService
}

func NewAuthHandler(otpSvc OTPService) *AuthHandler {
	return &AuthHandler{otpSvc: otpSvc}
}

func (h *AuthHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
	var req model.RequestCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Phone) == "" {
		writeError(w, http.StatusBadRequest, "phone es obligatorio")
		return
	}
	err := h.otpSvc.RequestCode(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, service.ErrRateLimitExceeded):
		writeError(w, http.StatusTooManyRequests, "Demasiadas solicitudes. Intenta más tarde.")
	case errors.Is(err, service.ErrInvalidPhone):
		writeError(w, http.StatusBadRequest, "Número de teléfono inválido")
	default:
		logger.Errorf("request-code: %v", err)
		writeError(w, http.StatusInternalServerError, "No se pudo enviar el código")
	}
}

func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req model.VerifyCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := h.otpSvc.VerifyCode(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidOTP):
			writeError(w, http.StatusUnauthorized, "Código inválido o expirado")
		case errors.Is(err, service.ErrInvalidPhone):
			writeError(w, http.StatusBadRequest, "Número de teléfono inválido")
		case errors.Is(err, service.ErrUserDisabled):
			writeError(w, http.StatusForbidden, "Usuario deshabilitado")
		default:
			logger.Errorf("verify-code device_id=%s: %v", req.DeviceID, err)
			msg := "Error de verificación"
			if os.Getenv("APP_ENV") != "production" && os.Getenv("DEBUG") != "" {
				msg += ": " + strings.ReplaceAll(err.Error(), "\n", " ")
			}
			writeError(w, http.StatusInternalServerError, msg)
		}
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetSessions отдаёт список сессий профиля массивом.
func (h *AuthHandler) GetSessions(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(w, r)
	if userID == "" {
		return
	}
	list, err := h.otpSvc.ListSessions(r.Context(), userID)
	if err != nil {
		logger.Errorf("sessions user=%s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to load sessions")
		return
	}
	if list == nil {
		list = []model.Session{}
	}
	writeJSON(w, http.StatusOK, list)
}

// LogoutSession — DELETE /api/auth/sessions/{id}; id "current" — текущая сессия.
func (h *AuthHandler) LogoutSession(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(w, r)
	if userID == "" {
		return
	}
	sessionID := chi.URLParam(r, "id")
	if sessionID == "" || sessionID == "current" {
		sessionID = middleware.GetSessionID(r.Context())
	}
	ok, err := h.otpSvc.LogoutSession(r.Context(), userID, sessionID)
	if err != nil {
		logger.Errorf("logout session=%s: %v", middleware.MaskSessionID(sessionID), err)
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) LogoutAllSessions(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(w, r)
	if userID == "" {
		return
	}
	n, err := h.otpSvc.LogoutAllSessions(r.Context(), userID)
	if err != nil {
		logger.Errorf("logout-all user=%s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

// ValidateSession — POST /internal/validate для API и медиа-сервиса.
func (h *AuthHandler) ValidateSession(w http.ResponseWriter, r *http.Request) {
	var req middleware.ValidateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p := signing.Params{SessionID: req.SessionID, Timestamp: req.Timestamp, Signature: req.Signature}
	userID, err := h.otpSvc.ValidateRequest(r.Context(), p, req.Method, req.Path, req.Body)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, middleware.ValidateResponse{UserID: userID})
}
