package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/busqai/internal/logger"
)

// RequestLog пишет method, path, статус и длительность запроса. 5xx — всегда, остальное — на debug
// или если запрос шёл дольше 100ms.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw, ok := w.(*statusWriter)
		if !ok {
			sw = &statusWriter{ResponseWriter: w, status: http.StatusOK}
		}
		next.ServeHTTP(sw, r)
		if sw.status >= http.StatusInternalServerError {
			logger.Errorf("http %s %s status=%d duration_ms=%d", r.Method, r.URL.Path, sw.status, time.Since(start).Milliseconds())
			return
		}
		logger.LogDuration("http "+r.Method+" "+r.URL.Path, start)
	})
}

// MaskSessionID оставляет в логах только первую группу UUID сессии.
func MaskSessionID(s string) string {
	s = strings.TrimSpace(s)
	head, _, found := strings.Cut(s, "-")
	if !found || len(head) < 8 {
		if len(s) <= 8 {
			return "****"
		}
		head = s[:8]
	}
	return head + "-…"
}
