package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/busqai/internal/logger"
	"github.com/busqai/internal/model"
)

const sessionCols = `id, profile_id, device_id, device_name, last_seen_at, created_at, revoked_at`

// SessionRepository — сессии устройств. Одна активная сессия на пару (profile_id, device_id).
type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func scanSession(s rowScanner, sess *model.Session) error {
	return s.Scan(&sess.ID, &sess.ProfileID, &sess.DeviceID, &sess.DeviceName, &sess.LastSeenAt, &sess.CreatedAt, &sess.RevokedAt)
}

// Upsert создаёт сессию; повторный вход с того же устройства заменяет прежнюю.
func (r *SessionRepository) Upsert(ctx context.Context, s *model.Session) error {
	defer logger.DeferLogDuration("session.Upsert", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (id, profile_id, device_id, device_name, secret_hash, last_seen_at, created_at, revoked_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULL)
		 ON CONFLICT (profile_id, device_id) DO UPDATE SET
		   id = EXCLUDED.id,
		   device_name = EXCLUDED.device_name,
		   secret_hash = EXCLUDED.secret_hash,
		   session_secret = NULL,
		   last_seen_at = EXCLUDED.last_seen_at,
		   created_at = EXCLUDED.created_at,
		   revoked_at = NULL`,
		s.ID, s.ProfileID, s.DeviceID, s.DeviceName, s.SecretHash, s.LastSeenAt, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sessionRepo.Upsert: %w", err)
	}
	return nil
}

// GetByID возвращает только неотозванную сессию.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*model.Session, error) {
	defer logger.DeferLogDuration("session.GetByID", time.Now())()
	s := &model.Session{}
	row := r.pool.QueryRow(ctx, `SELECT `+sessionCols+` FROM sessions WHERE id = $1 AND revoked_at IS NULL`, id)
	if err := scanSession(row, s); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sessionRepo.GetByID: %w", err)
	}
	return s, nil
}

func (r *SessionRepository) ListByProfile(ctx context.Context, profileID string) ([]model.Session, error) {
	defer logger.DeferLogDuration("session.ListByProfile", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionCols+` FROM sessions
		 WHERE profile_id = $1 AND revoked_at IS NULL ORDER BY last_seen_at DESC`, profileID)
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.ListByProfile: %w", err)
	}
	defer rows.Close()
	list := []model.Session{}
	for rows.Next() {
		var s model.Session
		if err := scanSession(rows, &s); err != nil {
			return nil, fmt.Errorf("sessionRepo.ListByProfile: %w", err)
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func (r *SessionRepository) UpdateLastSeen(ctx context.Context, sessionID string, t time.Time) error {
	defer logger.DeferLogDuration("session.UpdateLastSeen", time.Now())()
	_, err := r.pool.Exec(ctx, `UPDATE sessions SET last_seen_at = $1 WHERE id = $2 AND revoked_at IS NULL`, t, sessionID)
	return err
}

// RevokeOwned отзывает сессию, если она принадлежит профилю. false — сессии нет или она чужая.
func (r *SessionRepository) RevokeOwned(ctx context.Context, profileID, sessionID string) (bool, error) {
	defer logger.DeferLogDuration("session.RevokeOwned", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE sessions SET revoked_at = NOW(), session_secret = NULL
		 WHERE profile_id = $1 AND id = $2 AND revoked_at IS NULL`, profileID, sessionID)
	if err != nil {
		return false, fmt.Errorf("sessionRepo.RevokeOwned: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RevokeByProfile отзывает все сессии профиля и возвращает их id для очистки секретов в store.
func (r *SessionRepository) RevokeByProfile(ctx context.Context, profileID string) ([]string, error) {
	defer logger.DeferLogDuration("session.RevokeByProfile", time.Now())()
	rows, err := r.pool.Query(ctx,
		`UPDATE sessions SET revoked_at = NOW(), session_secret = NULL
		 WHERE profile_id = $1 AND revoked_at IS NULL RETURNING id`, profileID)
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.RevokeByProfile: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	defer logger.DeferLogDuration("session.Delete", time.Now())()
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	return err
}

// SetSessionSecret — только для -dev: секрет в БД вместо Redis.
func (r *SessionRepository) SetSessionSecret(ctx context.Context, sessionID, secret string) error {
	_, err := r.pool.Exec(ctx, `UPDATE sessions SET session_secret = $1 WHERE id = $2 AND revoked_at IS NULL`, secret, sessionID)
	return err
}

func (r *SessionRepository) GetSessionSecret(ctx context.Context, sessionID string) (string, error) {
	var secret *string
	err := r.pool.QueryRow(ctx, `SELECT session_secret FROM sessions WHERE id = $1 AND revoked_at IS NULL`, sessionID).Scan(&secret)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if secret == nil {
		return "", nil
	}
	return *secret, nil
}

func (r *SessionRepository) ClearSessionSecret(ctx context.Context, sessionID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE sessions SET session_secret = NULL WHERE id = $1`, sessionID)
	return err
}
