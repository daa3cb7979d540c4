package dataclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"

	"github.com/busqai/internal/model"
	"github.com/busqai/internal/negotiation"
)

// RequestCode запрашивает SMS-код. Не подписывается.
func (c *Client) RequestCode(ctx context.Context, phone string) error {
	return c.do(ctx, http.MethodPost, c.authURL, "/api/auth/request-code", nil,
		model.RequestCodeRequest{Phone: phone}, nil, false)
}

// VerifyCode обменивает код на сессию устройства.
func (c *Client) VerifyCode(ctx context.Context, req model.VerifyCodeRequest) (*model.VerifyCodeResponse, error) {
	var out model.VerifyCodeResponse
	if err := c.do(ctx, http.MethodPost, c.authURL, "/api/auth/verify-code", nil, req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Sessions(ctx context.Context) ([]model.Session, error) {
	var out []model.Session
	if err := c.do(ctx, http.MethodGet, c.authURL, "/api/auth/sessions", nil, nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

// Logout завершает текущую сессию.
func (c *Client) Logout(ctx context.Context) error {
	if c.signer == nil {
		return negotiation.ErrAuthRequired
	}
	id := c.signer.Credentials().SessionID
	return c.do(ctx, http.MethodDelete, c.authURL, "/api/auth/sessions/"+url.PathEscape(id), nil, nil, nil, true)
}

// UploadImage загружает изображение товара в медиа-сервис. Multipart подписывается с пустым телом.
func (c *Client) UploadImage(ctx context.Context, filename string, r io.Reader) (*model.UploadResponse, error) {
	if c.signer == nil {
		return nil, negotiation.ErrAuthRequired
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.filesURL+"/api/files/upload", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if err := c.signer.SignRequest(req, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", negotiation.ErrAuthRequired, err)
	}
	var out model.UploadResponse
	if err := c.send(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
