package signing

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Credentials — минимальное состояние клиента, которое сохраняется между запусками.
type Credentials struct {
	SessionID string `yaml:"session_id"`
	Secret    string `yaml:"session_secret"`
	UserID    string `yaml:"user_id,omitempty"`
	Phone     string `yaml:"phone,omitempty"`
}

func (c Credentials) Valid() bool {
	return c.SessionID != "" && c.Secret != ""
}

// ErrNoCredentials — файл отсутствует, пользователь не входил.
var ErrNoCredentials = errors.New("signing: no saved credentials")

// LoadCredentials читает YAML-файл с сессией.
func LoadCredentials(path string) (Credentials, error) {
	var c Credentials
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, ErrNoCredentials
		}
		return c, fmt.Errorf("read credentials: %w", err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse credentials %s: %w", path, err)
	}
	if !c.Valid() {
		return c, ErrNoCredentials
	}
	return c, nil
}

// SaveCredentials пишет файл с правами 0600.
func SaveCredentials(path string, c Credentials) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create credentials dir: %w", err)
		}
	}
	data, err := yaml.Marshal(&c)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// RemoveCredentials удаляет файл (logout). Отсутствие файла не ошибка.
func RemoveCredentials(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
