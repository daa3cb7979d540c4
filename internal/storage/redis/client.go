// Package redis — хранилище кодов входа, лимитов и секретов сессий в Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/busqai/internal/storage"
)

var _ storage.SessionOTPStore = (*Client)(nil)

const keyPrefix = "busqai:"

func otpKey(phone string) string        { return keyPrefix + "otp:" + phone }
func limitKey(phone string) string      { return keyPrefix + "otp_limit:" + phone }
func secretKey(sessionID string) string { return keyPrefix + "session_secret:" + sessionID }

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

// Raw отдаёт go-redis клиент для других хранилищ на том же соединении (подписки push).
func (c *Client) Raw() *redis.Client {
	return c.cli
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func (c *Client) getString(ctx context.Context, key string) (string, error) {
	val, err := c.cli.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

// SetOTP сохраняет код на OTPTTL. Код удаляется только после успешной проверки.
func (c *Client) SetOTP(ctx context.Context, phone, code string) error {
	return c.cli.Set(ctx, otpKey(phone), code, storage.OTPTTL).Err()
}

func (c *Client) GetOTP(ctx context.Context, phone string) (string, error) {
	return c.getString(ctx, otpKey(phone))
}

// GetOTPTTL — оставшееся время жизни кода; 0 если ключа нет.
func (c *Client) GetOTPTTL(ctx context.Context, phone string) (time.Duration, error) {
	d, err := c.cli.TTL(ctx, otpKey(phone)).Result()
	if err != nil || d < 0 {
		return 0, err
	}
	return d, nil
}

func (c *Client) DeleteOTP(ctx context.Context, phone string) error {
	return c.cli.Del(ctx, otpKey(phone)).Err()
}

// CheckRateLimit — фиксированное окно: INCR, EXPIRE на первом запросе.
func (c *Client) CheckRateLimit(ctx context.Context, phone string) (bool, error) {
	key := limitKey(phone)
	n, err := c.cli.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		c.cli.Expire(ctx, key, storage.RateLimitWindow)
	}
	return n <= storage.RateLimitMax, nil
}

func (c *Client) SetSessionSecret(ctx context.Context, sessionID, secret string) error {
	return c.cli.Set(ctx, secretKey(sessionID), secret, storage.SessionSecretTTL).Err()
}

func (c *Client) GetSessionSecret(ctx context.Context, sessionID string) (string, error) {
	return c.getString(ctx, secretKey(sessionID))
}

func (c *Client) DeleteSessionSecret(ctx context.Context, sessionID string) error {
	return c.cli.Del(ctx, secretKey(sessionID)).Err()
}
