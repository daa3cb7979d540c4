// Package dataclient — HTTP-клиент сервиса данных BusqAI. Все запросы, кроме входа,
// подписываются сессией (internal/signing). Реализует negotiation.DataService.
package dataclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/busqai/internal/logger"
	"github.com/busqai/internal/negotiation"
	"github.com/busqai/internal/signing"
)

// APIError — ответ сервиса с кодом не 2xx (кроме 401 и 409, см. mapStatus).
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

// NotFound — ресурс не найден.
func (e *APIError) NotFound() bool { return e.Status == http.StatusNotFound }

type Client struct {
	apiURL   string
	authURL  string
	filesURL string
	http     *http.Client
	signer   *signing.Signer
}

type Option func(*Client)

// WithAuthURL — отдельный адрес сервиса авторизации. По умолчанию совпадает с API.
func WithAuthURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.authURL = strings.TrimRight(u, "/")
		}
	}
}

// WithFilesURL — адрес медиа-сервиса. По умолчанию совпадает с API.
func WithFilesURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.filesURL = strings.TrimRight(u, "/")
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// New создаёт клиент. signer может быть nil до входа: тогда доступны только запросы авторизации.
func New(apiURL string, signer *signing.Signer, opts ...Option) *Client {
	base := strings.TrimRight(apiURL, "/")
	c := &Client{
		apiURL:   base,
		authURL:  base,
		filesURL: base,
		http:     &http.Client{Timeout: 15 * time.Second},
		signer:   signer,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Signer — текущая подпись запросов; nil до входа.
func (c *Client) Signer() *signing.Signer { return c.signer }

// WithSigner возвращает копию клиента с новой сессией (после входа).
func (c *Client) WithSigner(s *signing.Signer) *Client {
	cp := *c
	cp.signer = s
	return &cp
}

func (c *Client) do(ctx context.Context, method, base, path string, query url.Values, in, out any, signed bool) error {
	defer logger.DeferLogDuration("dataclient "+method+" "+path, time.Now())()
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
	}
	u := base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if signed {
		if c.signer == nil {
			return negotiation.ErrAuthRequired
		}
		if err := c.signer.SignRequest(req, body); err != nil {
			return fmt.Errorf("%w: %v", negotiation.ErrAuthRequired, err)
		}
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return mapStatus(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

// mapStatus переводит HTTP-статус в ошибки negotiation: 401 — нужна авторизация,
// 409 — переговоры уже завершены; остальное — *APIError.
func mapStatus(resp *http.Response) error {
	var e struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(raw, &e); err != nil || e.Error == "" {
		e.Error = strings.TrimSpace(string(raw))
	}
	apiErr := &APIError{Status: resp.StatusCode, Message: e.Error}
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %v", negotiation.ErrAuthRequired, apiErr)
	case http.StatusConflict:
		return fmt.Errorf("%w: %v", negotiation.ErrNegotiationClosed, apiErr)
	}
	return apiErr
}

// IsNotFound сообщает, что сервис ответил 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.NotFound()
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, c.apiURL, path, query, nil, out, true)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, c.apiURL, path, nil, in, out, true)
}

func (c *Client) put(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPut, c.apiURL, path, nil, in, out, true)
}
