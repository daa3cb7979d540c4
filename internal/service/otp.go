package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/busqai/internal/logger"
	"github.com/busqai/internal/middleware"
	"github.com/busqai/internal/model"
	"github.com/busqai/internal/repository"
	"github.com/busqai/internal/signing"
	"github.com/busqai/internal/storage"
)

// CountryPrefix — номера без кода страны считаются боливийскими.
const CountryPrefix = "+591"

const codeLength = 6

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrInvalidOTP        = errors.New("invalid or expired code")
	ErrInvalidPhone      = errors.New("invalid phone number")
	ErrUserDisabled      = errors.New("user disabled")
	ErrUnauthorized      = errors.New("unauthorized")
)

// ProfileStore — профили, нужные для входа.
type ProfileStore interface {
	GetByID(ctx context.Context, id string) (*model.Profile, error)
	GetByPhone(ctx context.Context, phone string) (*model.Profile, error)
	Create(ctx context.Context, p *model.Profile) error
}

// SessionStore — сессии устройств.
type SessionStore interface {
	Upsert(ctx context.Context, s *model.Session) error
	GetByID(ctx context.Context, id string) (*model.Session, error)
	ListByProfile(ctx context.Context, profileID string) ([]model.Session, error)
	UpdateLastSeen(ctx context.Context, sessionID string, t time.Time) error
	RevokeOwned(ctx context.Context, profileID, sessionID string) (bool, error)
	RevokeByProfile(ctx context.Context, profileID string) ([]string, error)
	Delete(ctx context.Context, sessionID string) error
}

// CodeSender доставляет код входа (SMS).
type CodeSender interface {
	SendCode(ctx context.Context, phone, code string) error
}

type OTPAuthService struct {
	profiles ProfileStore
	sessions SessionStore
	store    storage.SessionOTPStore
	sender   CodeSender
	now      func() time.Time
}

func NewOTPAuthService(profiles ProfileStore, sessions SessionStore, store storage.SessionOTPStore, sender CodeSender) *OTPAuthService {
	return &OTPAuthService{profiles: profiles, sessions: sessions, store: store, sender: sender, now: time.Now}
}

func maskPhone(p string) string {
	if len(p) <= 4 {
		return "****"
	}
	return "***" + p[len(p)-4:]
}

// onlyDigits убирает пробелы, дефисы и невидимые символы при вставке.
func onlyDigits(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// NormalizePhone приводит номер к виду +<код страны><номер>.
// 8 цифр без кода — боливийский мобильный, к нему добавляется +591.
func NormalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	digits := onlyDigits(raw)
	var phone string
	switch {
	case strings.HasPrefix(raw, "+"):
		phone = "+" + digits
	case strings.HasPrefix(raw, "00"):
		phone = "+" + strings.TrimPrefix(digits, "00")
	case len(digits) == 8:
		phone = CountryPrefix + digits
	case len(digits) == 11 && strings.HasPrefix(digits, "591"):
		phone = "+" + digits
	default:
		return "", ErrInvalidPhone
	}
	if n := len(phone) - 1; n < 8 || n > 15 {
		return "", ErrInvalidPhone
	}
	return phone, nil
}

// RequestCode отправляет SMS-код. Пока старый код живёт больше 4 минут, повторно отправляется он же.
func (s *OTPAuthService) RequestCode(ctx context.Context, req model.RequestCodeRequest) error {
	phone, err := NormalizePhone(req.Phone)
	if err != nil {
		return err
	}
	allowed, err := s.store.CheckRateLimit(ctx, phone)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrRateLimitExceeded
	}
	const minTTLToReuse = 4 * time.Minute
	if existing, _ := s.store.GetOTP(ctx, phone); len(existing) == codeLength {
		if ttl, _ := s.store.GetOTPTTL(ctx, phone); ttl >= minTTLToReuse {
			logger.Infof("request-code: повтор кода для %s (TTL %.0fs)", maskPhone(phone), ttl.Seconds())
			return s.sender.SendCode(ctx, phone, existing)
		}
	}
	code := generateOTP(codeLength)
	if err := s.store.SetOTP(ctx, phone, code); err != nil {
		return err
	}
	logger.Infof("request-code: код сохранён для %s", maskPhone(phone))
	return s.sender.SendCode(ctx, phone, code)
}

// VerifyCode проверяет код, создаёт профиль при первом входе и выдаёт сессию устройства.
func (s *OTPAuthService) VerifyCode(ctx context.Context, req model.VerifyCodeRequest) (*model.VerifyCodeResponse, error) {
	phone, err := NormalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}
	code := onlyDigits(req.Code)
	if code == "" || strings.TrimSpace(req.DeviceID) == "" {
		return nil, fmt.Errorf("code и device_id обязательны")
	}
	if len(code) != codeLength {
		return nil, ErrInvalidOTP
	}
	stored, err := s.store.GetOTP(ctx, phone)
	if err != nil {
		logger.Errorf("verify-code: GetOTP %s: %v", maskPhone(phone), err)
		return nil, ErrInvalidOTP
	}
	if len(stored) != codeLength || subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return nil, ErrInvalidOTP
	}
	if err := s.store.DeleteOTP(ctx, phone); err != nil {
		logger.Errorf("verify-code: DeleteOTP %s: %v", maskPhone(phone), err)
	}

	now := s.now().UTC()
	profile, err := s.profiles.GetByPhone(ctx, phone)
	isNew := false
	if errors.Is(err, repository.ErrNotFound) {
		profile = &model.Profile{ID: uuid.New().String(), Phone: phone, UserType: model.RoleBuyer, CreatedAt: now}
		if err := s.profiles.Create(ctx, profile); err != nil {
			return nil, err
		}
		isNew = true
	} else if err != nil {
		return nil, err
	}
	if !profile.IsActive {
		return nil, ErrUserDisabled
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	secretB64 := base64.StdEncoding.EncodeToString(secret)
	sum := sha256.Sum256(secret)
	sess := &model.Session{
		ID: uuid.New().String(), ProfileID: profile.ID,
		DeviceID: strings.TrimSpace(req.DeviceID), DeviceName: strings.TrimSpace(req.DeviceName),
		SecretHash: hex.EncodeToString(sum[:]), LastSeenAt: now, CreatedAt: now,
	}
	if err := s.sessions.Upsert(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if err := s.store.SetSessionSecret(ctx, sess.ID, secretB64); err != nil {
		if delErr := s.sessions.Delete(ctx, sess.ID); delErr != nil {
			logger.Errorf("verify-code: rollback session %s: %v", middleware.MaskSessionID(sess.ID), delErr)
		}
		return nil, fmt.Errorf("save session secret: %w", err)
	}
	return &model.VerifyCodeResponse{
		SessionID: sess.ID, SessionSecret: secretB64, UserID: profile.ID, IsNewUser: isNew,
	}, nil
}

func generateOTP(length int) string {
	b := make([]byte, length)
	for i := range b {
		n, _ := rand.Int(rand.Reader, big.NewInt(10))
		b[i] = byte('0' + n.Int64())
	}
	return string(b)
}

func (s *OTPAuthService) ListSessions(ctx context.Context, profileID string) ([]model.Session, error) {
	return s.sessions.ListByProfile(ctx, profileID)
}

// LogoutSession отзывает сессию профиля и удаляет её секрет. false — сессия не найдена.
func (s *OTPAuthService) LogoutSession(ctx context.Context, profileID, sessionID string) (bool, error) {
	ok, err := s.sessions.RevokeOwned(ctx, profileID, sessionID)
	if err != nil || !ok {
		return false, err
	}
	if err := s.store.DeleteSessionSecret(ctx, sessionID); err != nil {
		logger.Errorf("logout: DeleteSessionSecret %s: %v", middleware.MaskSessionID(sessionID), err)
	}
	return true, nil
}

func (s *OTPAuthService) LogoutAllSessions(ctx context.Context, profileID string) (int, error) {
	ids, err := s.sessions.RevokeByProfile(ctx, profileID)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := s.store.DeleteSessionSecret(ctx, id); err != nil {
			logger.Errorf("logout-all: DeleteSessionSecret %s: %v", middleware.MaskSessionID(id), err)
		}
	}
	return len(ids), nil
}

// ValidateRequest проверяет подпись запроса и возвращает id профиля. Вызывается API через POST /internal/validate.
func (s *OTPAuthService) ValidateRequest(ctx context.Context, p signing.Params, method, path, body string) (string, error) {
	if !p.Complete() {
		return "", ErrUnauthorized
	}
	secret, err := s.store.GetSessionSecret(ctx, p.SessionID)
	if err != nil || secret == "" {
		logger.Debugf("validate: нет session_secret для %s", middleware.MaskSessionID(p.SessionID))
		return "", ErrUnauthorized
	}
	if err := signing.Verify(secret, p.Signature, method, path, body, p.Timestamp, s.now()); err != nil {
		logger.Infof("validate: %v path=%q session=%s", err, path, middleware.MaskSessionID(p.SessionID))
		return "", ErrUnauthorized
	}
	sess, err := s.sessions.GetByID(ctx, p.SessionID)
	if err != nil {
		return "", ErrUnauthorized
	}
	profile, err := s.profiles.GetByID(ctx, sess.ProfileID)
	if err != nil || !profile.IsActive {
		return "", ErrUnauthorized
	}
	if err := s.sessions.UpdateLastSeen(ctx, sess.ID, s.now().UTC()); err != nil {
		logger.Errorf("validate: UpdateLastSeen %s: %v", middleware.MaskSessionID(sess.ID), err)
	}
	return sess.ProfileID, nil
}
