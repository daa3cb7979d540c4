package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/busqai/internal/logger"
	"github.com/busqai/internal/signing"
)

// ValidateRequest — тело POST /internal/validate сервиса авторизации.
type ValidateRequest struct {
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp"`
	Signature string `json:"signature"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Body      string `json:"body"`
}

// ValidateResponse — ответ сервиса авторизации при валидной подписи.
type ValidateResponse struct {
	UserID string `json:"user_id"`
}

func unauthorized(w http.ResponseWriter) {
	writeJSONError(w, http.StatusUnauthorized, "unauthorized")
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// readSignedBody читает тело и возвращает его для повторного чтения обработчиком.
// Multipart подписывается клиентом с пустым телом.
func readSignedBody(r *http.Request) (string, error) {
	if r.Body == nil {
		return "", nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return "", err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return "", nil
	}
	return string(body), nil
}

func withIdentity(r *http.Request, userID, sessionID string) *http.Request {
	ctx := context.WithValue(r.Context(), UserIDKey, userID)
	ctx = context.WithValue(ctx, SessionIDKey, sessionID)
	return r.WithContext(ctx)
}

// AuthServiceValidate проверяет подпись запроса через сервис авторизации (POST /internal/validate).
func AuthServiceValidate(authServiceURL string, client *http.Client) func(http.Handler) http.Handler {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	authServiceURL = strings.TrimSuffix(authServiceURL, "/")
	internalSecret := strings.TrimSpace(os.Getenv("INTERNAL_VALIDATE_SECRET"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := signing.FromRequest(r)
			if !p.Complete() {
				unauthorized(w)
				return
			}
			body, err := readSignedBody(r)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "bad request")
				return
			}
			// Подписывается только путь, без query.
			payload, _ := json.Marshal(ValidateRequest{
				SessionID: p.SessionID, Timestamp: p.Timestamp, Signature: p.Signature,
				Method: r.Method, Path: r.URL.Path, Body: body,
			})
			req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, authServiceURL+"/internal/validate", bytes.NewReader(payload))
			if err != nil {
				writeJSONError(w, http.StatusInternalServerError, "internal")
				return
			}
			req.Header.Set("Content-Type", "application/json")
			if internalSecret != "" {
				req.Header.Set("X-Internal-Secret", internalSecret)
			}
			resp, err := client.Do(req)
			if err != nil {
				logger.Errorf("auth validate: %v", err)
				unauthorized(w)
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				logger.Debugf("auth validate: session=%s status=%d", MaskSessionID(p.SessionID), resp.StatusCode)
				unauthorized(w)
				return
			}
			var result ValidateResponse
			if err := json.NewDecoder(resp.Body).Decode(&result); err != nil || result.UserID == "" {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, withIdentity(r, result.UserID, p.SessionID))
		})
	}
}
