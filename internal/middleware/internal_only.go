package middleware

import (
	"net"
	"net/http"
	"os"
	"strings"
)

// InternalOnly пропускает запрос с приватного адреса или с X-Internal-Secret == INTERNAL_VALIDATE_SECRET.
// Используется для /internal/validate и API пуш-сервиса.
func InternalOnly(next http.Handler) http.Handler {
	secret := strings.TrimSpace(os.Getenv("INTERNAL_VALIDATE_SECRET"))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if secret != "" && r.Header.Get("X-Internal-Secret") == secret {
			next.ServeHTTP(w, r)
			return
		}
		if isPrivateIP(clientIP(r)) {
			next.ServeHTTP(w, r)
			return
		}
		writeJSONError(w, http.StatusForbidden, "forbidden")
	})
}

// clientIP — первый адрес из X-Real-Ip / X-Forwarded-For, иначе RemoteAddr.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-Ip"); ip != "" {
		return strings.TrimSpace(ip)
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isPrivateIP(s string) bool {
	ip := net.ParseIP(s)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate()
}
