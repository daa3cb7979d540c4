package model

import "time"

// Session — сессия устройства; секрет хранится только в store (Redis), в БД — хеш.
type Session struct {
	ID         string     `json:"id"`
	ProfileID  string     `json:"profile_id"`
	DeviceID   string     `json:"device_id"`
	DeviceName string     `json:"device_name"`
	SecretHash string     `json:"-"`
	LastSeenAt time.Time  `json:"last_seen_at"`
	CreatedAt  time.Time  `json:"created_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}
