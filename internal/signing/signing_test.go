package signing

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSecret(t *testing.T) string {
	t.Helper()
	b := make([]byte, secretLen)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(b)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	secret := newSecret(t)
	now := time.Unix(1_700_000_000, 0)
	ts := strconv.FormatInt(now.Unix(), 10)

	sig, err := Sign(secret, "POST", "/api/chats/c1/messages", `{"content":"hola"}`, ts)
	require.NoError(t, err)

	assert.NoError(t, Verify(secret, sig, "POST", "/api/chats/c1/messages", `{"content":"hola"}`, ts, now))
	assert.ErrorIs(t, Verify(secret, sig, "POST", "/api/chats/c1/messages", `{"content":"x"}`, ts, now), ErrMismatch)
	assert.ErrorIs(t, Verify(secret, sig, "GET", "/api/chats/c1/messages", `{"content":"hola"}`, ts, now), ErrMismatch)
	assert.ErrorIs(t, Verify(newSecret(t), sig, "POST", "/api/chats/c1/messages", `{"content":"hola"}`, ts, now), ErrMismatch)
}

func TestVerifyAcceptsPathWithoutAPIPrefix(t *testing.T) {
	secret := newSecret(t)
	now := time.Now()
	ts := strconv.FormatInt(now.Unix(), 10)
	sig, err := Sign(secret, "GET", "/chats", "", ts)
	require.NoError(t, err)
	assert.NoError(t, Verify(secret, sig, "GET", "/api/chats", "", ts, now))
}

func TestCheckTimestamp(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tests := []struct {
		name    string
		ts      string
		wantErr bool
	}{
		{"exact", "1700000000", false},
		{"29s behind", "1699999971", false},
		{"31s behind", "1699999969", true},
		{"31s ahead", "1700000031", true},
		{"garbage", "soon", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckTimestamp(tt.ts, now)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrTimestamp)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMalformedSecret(t *testing.T) {
	_, err := Sign("bm90LWEtc2VjcmV0", "GET", "/", "", "1")
	assert.ErrorIs(t, err, ErrSecret)
}

func TestSignerSignRequest(t *testing.T) {
	creds := Credentials{SessionID: "sess-1", Secret: newSecret(t)}
	s := NewSigner(creds)
	body := []byte(`{"amount":45}`)
	req := httptest.NewRequest(http.MethodPost, "/api/chats/c1/accept", bytes.NewReader(body))

	require.NoError(t, s.SignRequest(req, body))
	p := FromRequest(req)
	assert.True(t, p.Complete())
	assert.Equal(t, "sess-1", p.SessionID)
	assert.NoError(t, Verify(creds.Secret, p.Signature, req.Method, req.URL.Path, string(body), p.Timestamp, time.Now()))
}

func TestSignerSignURL(t *testing.T) {
	creds := Credentials{SessionID: "sess-1", Secret: newSecret(t)}
	u, err := url.Parse("ws://localhost:8080/ws/chats/c1")
	require.NoError(t, err)
	require.NoError(t, NewSigner(creds).SignURL(u))

	req := httptest.NewRequest(http.MethodGet, u.String(), nil)
	p := FromRequest(req)
	require.True(t, p.Complete())
	assert.NoError(t, Verify(creds.Secret, p.Signature, http.MethodGet, "/ws/chats/c1", "", p.Timestamp, time.Now()))
}

func TestSignerRequiresCredentials(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/wallet", nil)
	assert.ErrorIs(t, NewSigner(Credentials{}).SignRequest(req, nil), ErrMissing)
}

func TestCredentialsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "busqai", "credentials.yaml")

	_, err := LoadCredentials(path)
	assert.ErrorIs(t, err, ErrNoCredentials)

	want := Credentials{SessionID: "sess-1", Secret: "c2VjcmV0", UserID: "u1", Phone: "+59170000000"}
	require.NoError(t, SaveCredentials(path, want))
	got, err := LoadCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, RemoveCredentials(path))
	require.NoError(t, RemoveCredentials(path))
	_, err = LoadCredentials(path)
	assert.ErrorIs(t, err, ErrNoCredentials)
}
