package push

import (
	"encoding/json"
	"os"
	"path/filepath"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/busqai/internal/logger"
)

// VAPIDKeys — пара ключей Web Push.
type VAPIDKeys struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

const defaultVAPIDKeysPath = "config/vapid.json"

// Options — параметры отправки для webpush.
func (k *VAPIDKeys) Options(subscriber string) *webpush.Options {
	return &webpush.Options{
		Subscriber:      subscriber,
		VAPIDPublicKey:  k.PublicKey,
		VAPIDPrivateKey: k.PrivateKey,
		TTL:             60,
	}
}

// EnsureVAPIDKeys читает ключи из path (или VAPID_KEYS_FILE, или config/vapid.json).
// Если файла нет — генерирует пару и сохраняет её.
func EnsureVAPIDKeys(path string) (*VAPIDKeys, error) {
	if path == "" {
		path = os.Getenv("VAPID_KEYS_FILE")
	}
	if path == "" {
		path = defaultVAPIDKeysPath
	}
	if data, err := os.ReadFile(path); err == nil {
		var keys VAPIDKeys
		if json.Unmarshal(data, &keys) == nil && keys.PublicKey != "" && keys.PrivateKey != "" {
			return &keys, nil
		}
	}
	priv, pub, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return nil, err
	}
	keys := &VAPIDKeys{PublicKey: pub, PrivateKey: priv}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.Errorf("push: VAPID-ключи не сохранены (%s): %v", path, err)
		return keys, nil
	}
	data, _ := json.MarshalIndent(keys, "", "  ")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		logger.Errorf("push: VAPID-ключи не сохранены (%s): %v", path, err)
		return keys, nil
	}
	logger.Infof("push: VAPID-ключи сгенерированы в %s", path)
	return keys, nil
}
