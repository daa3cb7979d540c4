// Package devstore — хранилище для -dev: коды и лимиты в памяти,
// session_secret в Postgres, чтобы сессии переживали перезапуск auth.
package devstore

import (
	"context"

	"github.com/busqai/internal/storage"
	"github.com/busqai/internal/storage/memory"
)

var _ storage.SessionOTPStore = (*Client)(nil)

// SecretRepo — колонка session_secret таблицы sessions.
type SecretRepo interface {
	SetSessionSecret(ctx context.Context, sessionID, secret string) error
	GetSessionSecret(ctx context.Context, sessionID string) (string, error)
	ClearSessionSecret(ctx context.Context, sessionID string) error
}

type Client struct {
	*memory.Client
	repo SecretRepo
}

func New(repo SecretRepo) *Client {
	return &Client{Client: memory.New(), repo: repo}
}

func (c *Client) SetSessionSecret(ctx context.Context, sessionID, secret string) error {
	return c.repo.SetSessionSecret(ctx, sessionID, secret)
}

func (c *Client) GetSessionSecret(ctx context.Context, sessionID string) (string, error) {
	return c.repo.GetSessionSecret(ctx, sessionID)
}

func (c *Client) DeleteSessionSecret(ctx context.Context, sessionID string) error {
	return c.repo.ClearSessionSecret(ctx, sessionID)
}
