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

const profileCols = `id, phone, full_name, user_type, latitude, longitude, address, avatar, is_active, created_at, updated_at`

type ProfileRepository struct {
	pool *pgxpool.Pool
}

func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

func scanProfile(s rowScanner, p *model.Profile) error {
	return s.Scan(&p.ID, &p.Phone, &p.FullName, &p.UserType, &p.Latitude, &p.Longitude, &p.Address, &p.Avatar, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
}

func (r *ProfileRepository) Create(ctx context.Context, p *model.Profile) error {
	defer logger.DeferLogDuration("profile.Create", time.Now())()
	if p.UserType == "" {
		p.UserType = model.RoleBuyer
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO profiles (id, phone, full_name, user_type, address, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, TRUE, $6, $6)`,
		p.ID, p.Phone, p.FullName, p.UserType, p.Address, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("profileRepo.Create: %w", err)
	}
	p.IsActive = true
	p.UpdatedAt = p.CreatedAt
	return nil
}

func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*model.Profile, error) {
	defer logger.DeferLogDuration("profile.GetByID", time.Now())()
	p := &model.Profile{}
	row := r.pool.QueryRow(ctx, `SELECT `+profileCols+` FROM profiles WHERE id = $1`, id)
	if err := scanProfile(row, p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("profileRepo.GetByID: %w", err)
	}
	return p, nil
}

func (r *ProfileRepository) GetByPhone(ctx context.Context, phone string) (*model.Profile, error) {
	defer logger.DeferLogDuration("profile.GetByPhone", time.Now())()
	p := &model.Profile{}
	row := r.pool.QueryRow(ctx, `SELECT `+profileCols+` FROM profiles WHERE phone = $1`, phone)
	if err := scanProfile(row, p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("profileRepo.GetByPhone: %w", err)
	}
	return p, nil
}

// Complete заполняет профиль после первого входа: имя, тип пользователя, адрес.
func (r *ProfileRepository) Complete(ctx context.Context, id string, in model.ProfileInput) (*model.Profile, error) {
	defer logger.DeferLogDuration("profile.Complete", time.Now())()
	p := &model.Profile{}
	row := r.pool.QueryRow(ctx,
		`UPDATE profiles SET full_name = $2, user_type = $3, address = $4, updated_at = NOW()
		 WHERE id = $1 RETURNING `+profileCols,
		id, in.FullName, in.UserType, in.Address)
	if err := scanProfile(row, p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("profileRepo.Complete: %w", err)
	}
	return p, nil
}

// Update меняет только переданные поля.
func (r *ProfileRepository) Update(ctx context.Context, id string, in model.ProfileUpdate) (*model.Profile, error) {
	defer logger.DeferLogDuration("profile.Update", time.Now())()
	p := &model.Profile{}
	row := r.pool.QueryRow(ctx,
		`UPDATE profiles SET
		   full_name = COALESCE($2, full_name),
		   address = COALESCE($3, address),
		   avatar = COALESCE($4, avatar),
		   updated_at = NOW()
		 WHERE id = $1 RETURNING `+profileCols,
		id, in.FullName, in.Address, in.Avatar)
	if err := scanProfile(row, p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("profileRepo.Update: %w", err)
	}
	return p, nil
}

func (r *ProfileRepository) UpdateLocation(ctx context.Context, id string, in model.LocationInput) (*model.Profile, error) {
	defer logger.DeferLogDuration("profile.UpdateLocation", time.Now())()
	p := &model.Profile{}
	row := r.pool.QueryRow(ctx,
		`UPDATE profiles SET latitude = $2, longitude = $3,
		   address = CASE WHEN $4 = '' THEN address ELSE $4 END, updated_at = NOW()
		 WHERE id = $1 RETURNING `+profileCols,
		id, in.Latitude, in.Longitude, in.Address)
	if err := scanProfile(row, p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("profileRepo.UpdateLocation: %w", err)
	}
	return p, nil
}
