package middleware

import (
	"context"
	"net/http"

	"github.com/busqai/internal/signing"
)

// RequestValidator проверяет подпись и возвращает id профиля (service.OTPAuthService).
type RequestValidator interface {
	ValidateRequest(ctx context.Context, p signing.Params, method, path, body string) (string, error)
}

// SessionAuth — проверка подписи внутри сервиса авторизации, без сетевого вызова.
func SessionAuth(v RequestValidator) func(http.Handler) http.Handler {
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
			userID, err := v.ValidateRequest(r.Context(), p, r.Method, r.URL.Path, body)
			if err != nil || userID == "" {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, withIdentity(r, userID, p.SessionID))
		})
	}
}
