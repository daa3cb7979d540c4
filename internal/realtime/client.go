// Package realtime — клиентский адаптер realtime-канала чата поверх WebSocket:
// подписка на новые сообщения и индикатор набора, переподключение с backoff.
// Историю после переподключения адаптер не досылает — её перезагружает владелец.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/busqai/internal/logger"
	"github.com/busqai/internal/model"
	"github.com/busqai/internal/negotiation"
	"github.com/busqai/internal/signing"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 64 * 1024

	DefaultMinBackoff = time.Second
	DefaultMaxBackoff = 30 * time.Second
)

// Client открывает подписки на чаты. Один Client на процесс; подписки независимы.
type Client struct {
	base       *url.URL
	signer     *signing.Signer
	dialer     *websocket.Dialer
	minBackoff time.Duration
	maxBackoff time.Duration

	mu   sync.Mutex
	subs map[string]*Subscription
}

type Option func(*Client)

// WithBackoff задаёт границы экспоненциальной задержки между попытками.
func WithBackoff(min, max time.Duration) Option {
	return func(c *Client) {
		if min > 0 {
			c.minBackoff = min
		}
		if max >= min {
			c.maxBackoff = max
		}
	}
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// NewClient принимает базовый URL API (http/https или ws/wss).
func NewClient(baseURL string, signer *signing.Signer, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("realtime: parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("realtime: unsupported scheme %q", u.Scheme)
	}
	c := &Client{
		base:       u,
		signer:     signer,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		minBackoff: DefaultMinBackoff,
		maxBackoff: DefaultMaxBackoff,
		subs:       make(map[string]*Subscription),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Subscribe запускает фоновое соединение с каналом чата и сразу возвращает подписку.
// Состояние соединения приходит в h.OnState. Повторная подписка на тот же чат
// закрывает предыдущую.
func (c *Client) Subscribe(ctx context.Context, chatID string, h negotiation.Handlers) (negotiation.Subscription, error) {
	if chatID == "" {
		return nil, errors.New("realtime: empty chat id")
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		client: c,
		chatID: chatID,
		h:      h,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	prev := c.subs[chatID]
	c.subs[chatID] = s
	c.mu.Unlock()
	if prev != nil {
		prev.Unsubscribe()
	}

	go s.run()
	return s, nil
}

// NotifyTyping отправляет событие набора в активную подписку чата. Без подписки — no-op.
func (c *Client) NotifyTyping(chatID, selfID string) {
	c.mu.Lock()
	s := c.subs[chatID]
	c.mu.Unlock()
	if s != nil {
		s.sendTyping(selfID)
	}
}

func (c *Client) forget(s *Subscription) {
	c.mu.Lock()
	if c.subs[s.chatID] == s {
		delete(c.subs, s.chatID)
	}
	c.mu.Unlock()
}

func (c *Client) chatURL(chatID string) (*url.URL, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/chats/" + chatID
	if c.signer != nil {
		if err := c.signer.SignURL(&u); err != nil {
			return nil, err
		}
	}
	return &u, nil
}

// Subscription — одна подписка на чат. Реализует negotiation.Subscription.
type Subscription struct {
	client *Client
	chatID string
	h      negotiation.Handlers
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *Subscription) ChatID() string { return s.chatID }

// Unsubscribe закрывает соединение и ждёт завершения фоновой горутины.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		s.mu.Lock()
		if s.conn != nil {
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			s.conn.Close()
		}
		s.mu.Unlock()
		s.client.forget(s)
	})
	<-s.done
}

// NotifyTyping — best-effort, ошибки отбрасываются.
func (s *Subscription) NotifyTyping() {
	userID := ""
	if s.client.signer != nil {
		userID = s.client.signer.Credentials().UserID
	}
	s.sendTyping(userID)
}

func (s *Subscription) sendTyping(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return
	}
	if err := s.conn.WriteJSON(outgoing{Type: EventTyping, ChatID: s.chatID, UserID: userID}); err != nil {
		logger.Debugf("realtime typing chat=%s: %v", s.chatID, err)
	}
}

func (s *Subscription) run() {
	defer close(s.done)
	backoff := s.client.minBackoff
	for {
		if s.ctx.Err() != nil {
			return
		}
		conn, err := s.dial()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.state(false, err)
			if terminal(err) {
				return
			}
			if !s.sleep(backoff) {
				return
			}
			backoff = nextBackoff(backoff, s.client.maxBackoff)
			continue
		}
		backoff = s.client.minBackoff

		s.mu.Lock()
		if s.ctx.Err() != nil {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conn = conn
		s.mu.Unlock()

		s.state(true, nil)
		err = s.read(conn)

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()

		if s.ctx.Err() != nil {
			return
		}
		s.state(false, err)
		if !s.sleep(backoff) {
			return
		}
	}
}

func (s *Subscription) dial() (*websocket.Conn, error) {
	u, err := s.client.chatURL(s.chatID)
	if err != nil {
		return nil, err
	}
	conn, resp, err := s.client.dialer.DialContext(s.ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden:
				return nil, fmt.Errorf("dial %s: %w", resp.Status, negotiation.ErrAuthRequired)
			case http.StatusNotFound:
				return nil, fmt.Errorf("dial %s: %w", resp.Status, negotiation.ErrChatNotFound)
			}
			return nil, fmt.Errorf("dial %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("dial: %w", err)
	}
	return conn, nil
}

// terminal — ошибки подключения, после которых переподключаться бессмысленно.
func terminal(err error) bool {
	return errors.Is(err, negotiation.ErrAuthRequired) || errors.Is(err, negotiation.ErrChatNotFound)
}

func (s *Subscription) read(conn *websocket.Conn) error {
	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}
	// Сервер шлёт ping каждые ~54s; ответ pong отправляет WriteControl, он безопасен параллельно с WriteJSON.
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			return err
		}
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		s.dispatch(raw)
	}
}

func (s *Subscription) dispatch(raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logger.Debugf("realtime chat=%s: bad frame: %v", s.chatID, err)
		return
	}
	switch env.Type {
	case EventNewMessage:
		var m model.NegotiationMessage
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			logger.Debugf("realtime chat=%s: bad message payload: %v", s.chatID, err)
			return
		}
		if m.ChatID != s.chatID {
			return
		}
		if s.h.OnMessage != nil {
			s.h.OnMessage(m)
		}
	case EventTyping:
		var p typingPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.ChatID != s.chatID {
			return
		}
		if s.h.OnTyping != nil {
			s.h.OnTyping(p.UserID)
		}
	case EventError:
		var msg string
		_ = json.Unmarshal(env.Payload, &msg)
		logger.Infof("realtime chat=%s: server error: %s", s.chatID, msg)
	}
}

func (s *Subscription) state(connected bool, err error) {
	if s.h.OnState == nil {
		return
	}
	if err != nil {
		err = &negotiation.SubscriptionError{ChatID: s.chatID, Err: err}
	}
	s.h.OnState(connected, err)
}

func (s *Subscription) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}
