package storage

import (
	"context"
	"time"
)

// Сроки и лимиты входа по SMS: код живёт 5 минут, не больше 5 запросов кода
// на номер за 10 минут, секрет сессии — 30 дней.
const (
	OTPTTL           = 5 * time.Minute
	RateLimitWindow  = 10 * time.Minute
	RateLimitMax     = 5
	SessionSecretTTL = 30 * 24 * time.Hour
)

// SessionOTPStore — хранилище SMS-кодов, лимита запросов и session_secret.
// Ключ для кода и лимита — нормализованный номер телефона (+591...).
// Реализации: redis.Client, memory.Client, devstore.Client (-dev).
type SessionOTPStore interface {
	SetOTP(ctx context.Context, phone, code string) error
	GetOTP(ctx context.Context, phone string) (string, error)
	GetOTPTTL(ctx context.Context, phone string) (time.Duration, error)
	DeleteOTP(ctx context.Context, phone string) error
	CheckRateLimit(ctx context.Context, phone string) (allowed bool, err error)
	SetSessionSecret(ctx context.Context, sessionID, secret string) error
	GetSessionSecret(ctx context.Context, sessionID string) (string, error)
	DeleteSessionSecret(ctx context.Context, sessionID string) error
	Close() error
}
