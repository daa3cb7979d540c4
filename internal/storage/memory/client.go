// Package memory — хранилище кодов и секретов в памяти процесса (-dev и тесты).
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/busqai/internal/storage"
)

var _ storage.SessionOTPStore = (*Client)(nil)

type entry struct {
	val string
	exp time.Time
}

type Client struct {
	mu      sync.Mutex
	now     func() time.Time
	codes   map[string]entry
	hits    map[string][]time.Time
	secrets map[string]entry
}

func New() *Client {
	return NewWithClock(time.Now)
}

// NewWithClock — для тестов с управляемым временем.
func NewWithClock(now func() time.Time) *Client {
	return &Client{
		now:     now,
		codes:   make(map[string]entry),
		hits:    make(map[string][]time.Time),
		secrets: make(map[string]entry),
	}
}

func (c *Client) Close() error { return nil }

// live возвращает значение, если срок не истёк; истёкшее удаляется.
func (c *Client) live(m map[string]entry, key string) (entry, bool) {
	e, ok := m[key]
	if !ok {
		return entry{}, false
	}
	if !c.now().Before(e.exp) {
		delete(m, key)
		return entry{}, false
	}
	return e, true
}

func (c *Client) SetOTP(ctx context.Context, phone, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes[phone] = entry{val: code, exp: c.now().Add(storage.OTPTTL)}
	return nil
}

func (c *Client) GetOTP(ctx context.Context, phone string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, _ := c.live(c.codes, phone)
	return e.val, nil
}

func (c *Client) GetOTPTTL(ctx context.Context, phone string) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.live(c.codes, phone)
	if !ok {
		return 0, nil
	}
	return e.exp.Sub(c.now()), nil
}

func (c *Client) DeleteOTP(ctx context.Context, phone string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.codes, phone)
	return nil
}

// CheckRateLimit — скользящее окно RateLimitWindow, не больше RateLimitMax запросов.
func (c *Client) CheckRateLimit(ctx context.Context, phone string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	cut := now.Add(-storage.RateLimitWindow)
	kept := c.hits[phone][:0]
	for _, t := range c.hits[phone] {
		if t.After(cut) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= storage.RateLimitMax {
		c.hits[phone] = kept
		return false, nil
	}
	c.hits[phone] = append(kept, now)
	return true, nil
}

func (c *Client) SetSessionSecret(ctx context.Context, sessionID, secret string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.secrets[sessionID] = entry{val: secret, exp: c.now().Add(storage.SessionSecretTTL)}
	return nil
}

func (c *Client) GetSessionSecret(ctx context.Context, sessionID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, _ := c.live(c.secrets, sessionID)
	return e.val, nil
}

func (c *Client) DeleteSessionSecret(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.secrets, sessionID)
	return nil
}
