package middleware

import (
	"net/http"
	"sync"
	"time"
)

// Лимиты API по умолчанию: запросов в минуту с одного IP и от одного пользователя.
const (
	DefaultRateWindow  = time.Minute
	DefaultRateMaxIP   = 200
	DefaultRateMaxUser = 100
)

type rateLimiter struct {
	mu     sync.Mutex
	times  map[string][]time.Time
	max    int
	window time.Duration
	now    func() time.Time
}

func newRateLimiter(max int, window time.Duration) *rateLimiter {
	return &rateLimiter{times: make(map[string][]time.Time), max: max, window: window, now: time.Now}
}

// allow — скользящее окно: учитываются только запросы за последние window.
func (r *rateLimiter) allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	cutoff := now.Add(-r.window)
	slice := r.times[key]
	i := 0
	for _, t := range slice {
		if t.After(cutoff) {
			slice[i] = t
			i++
		}
	}
	slice = slice[:i]
	if len(slice) >= r.max {
		r.times[key] = slice
		return false
	}
	r.times[key] = append(slice, now)
	return true
}

// RateLimit ограничивает запросы по IP и по пользователю (если он уже в контексте). 429 при превышении.
func RateLimit(maxIP, maxUser int, window time.Duration) func(http.Handler) http.Handler {
	byIP := newRateLimiter(maxIP, window)
	byUser := newRateLimiter(maxUser, window)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !byIP.allow(clientIP(r)) {
				writeJSONError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			if userID := GetUserID(r.Context()); userID != "" && !byUser.allow(userID) {
				writeJSONError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
