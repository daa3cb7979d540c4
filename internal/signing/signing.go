// Package signing — подпись запросов сессионным секретом: HMAC-SHA256 над
// method + path + body + timestamp. Сервер проверяет подпись и окно ±30 секунд.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderSessionID = "X-Session-Id"
	HeaderTimestamp = "X-Timestamp"
	HeaderSignature = "X-Signature"

	// Skew — допустимое расхождение часов клиента и сервера.
	Skew = 30 * time.Second

	secretLen = 32
)

var (
	ErrMissing   = errors.New("signing: missing session_id, timestamp or signature")
	ErrTimestamp = errors.New("signing: timestamp out of window")
	ErrSecret    = errors.New("signing: malformed session secret")
	ErrMismatch  = errors.New("signing: signature mismatch")
)

// Payload — строка, которая подписывается.
func Payload(method, path, body, timestamp string) string {
	return method + path + body + timestamp
}

// Sign возвращает hex(HMAC-SHA256(secret, payload)). secretB64 — секрет сессии в base64.
func Sign(secretB64, method, path, body, timestamp string) (string, error) {
	secret, err := decodeSecret(secretB64)
	if err != nil {
		return "", err
	}
	return sign(secret, Payload(method, path, body, timestamp)), nil
}

func sign(secret []byte, payload string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func decodeSecret(secretB64 string) ([]byte, error) {
	secret, err := base64.StdEncoding.DecodeString(secretB64)
	if err != nil || len(secret) != secretLen {
		return nil, ErrSecret
	}
	return secret, nil
}

// CheckTimestamp проверяет, что timestamp (Unix секунды) попадает в окно ±Skew от now.
func CheckTimestamp(timestamp string, now time.Time) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrTimestamp
	}
	t := time.Unix(ts, 0)
	if now.Sub(t) > Skew || t.Sub(now) > Skew {
		return ErrTimestamp
	}
	return nil
}

// Verify проверяет подпись запроса. Для путей /api/... дополнительно принимается
// подпись пути без префикса /api (клиенты за прокси).
func Verify(secretB64, signature, method, path, body, timestamp string, now time.Time) error {
	if signature == "" || timestamp == "" {
		return ErrMissing
	}
	if err := CheckTimestamp(timestamp, now); err != nil {
		return err
	}
	secret, err := decodeSecret(secretB64)
	if err != nil {
		return err
	}
	match := func(p string) bool {
		expected := sign(secret, Payload(method, p, body, timestamp))
		return hmac.Equal([]byte(signature), []byte(expected))
	}
	if match(path) {
		return nil
	}
	if strings.HasPrefix(path, "/api/") && match(path[4:]) {
		return nil
	}
	return ErrMismatch
}

// Params — подписанные параметры запроса, извлечённые из заголовков или query.
type Params struct {
	SessionID string
	Timestamp string
	Signature string
}

// FromRequest читает X-Session-Id/X-Timestamp/X-Signature, при их отсутствии — query
// (session_id, timestamp, signature), которые использует WebSocket.
func FromRequest(r *http.Request) Params {
	q := r.URL.Query()
	pick := func(header, query string) string {
		if v := r.Header.Get(header); v != "" {
			return v
		}
		return q.Get(query)
	}
	return Params{
		SessionID: pick(HeaderSessionID, "session_id"),
		Timestamp: pick(HeaderTimestamp, "timestamp"),
		Signature: pick(HeaderSignature, "signature"),
	}
}

func (p Params) Complete() bool {
	return p.SessionID != "" && p.Timestamp != "" && p.Signature != ""
}

// Signer подписывает исходящие запросы клиента.
type Signer struct {
	creds Credentials
	now   func() time.Time
}

func NewSigner(creds Credentials) *Signer {
	return &Signer{creds: creds, now: time.Now}
}

func (s *Signer) Credentials() Credentials { return s.creds }

// SignRequest ставит заголовки подписи. body — тело, уже записанное в req.
// Multipart-запросы подписываются с пустым телом.
func (s *Signer) SignRequest(req *http.Request, body []byte) error {
	if !s.creds.Valid() {
		return ErrMissing
	}
	ts := strconv.FormatInt(s.now().Unix(), 10)
	payloadBody := string(body)
	if strings.HasPrefix(req.Header.Get("Content-Type"), "multipart/form-data") {
		payloadBody = ""
	}
	sig, err := Sign(s.creds.Secret, req.Method, req.URL.Path, payloadBody, ts)
	if err != nil {
		return err
	}
	req.Header.Set(HeaderSessionID, s.creds.SessionID)
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSignature, sig)
	return nil
}

// SignURL добавляет подпись GET-запроса в query (для WebSocket, где заголовки недоступны браузеру).
func (s *Signer) SignURL(u *url.URL) error {
	if !s.creds.Valid() {
		return ErrMissing
	}
	ts := strconv.FormatInt(s.now().Unix(), 10)
	sig, err := Sign(s.creds.Secret, http.MethodGet, u.Path, "", ts)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("session_id", s.creds.SessionID)
	q.Set("timestamp", ts)
	q.Set("signature", sig)
	u.RawQuery = q.Encode()
	return nil
}
