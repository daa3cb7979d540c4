// Package sms отправляет коды входа через HTTP-шлюз SMS.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/busqai/internal/config"
	"github.com/busqai/internal/logger"
)

type Sender struct {
	cfg  *config.SMSConfig
	http *http.Client
}

func NewSender(cfg *config.SMSConfig) *Sender {
	return &Sender{cfg: cfg, http: &http.Client{Timeout: 10 * time.Second}}
}

// Configured — задан ли адрес шлюза.
func (s *Sender) Configured() bool {
	return s.cfg.GatewayURL != ""
}

type gatewayRequest struct {
	From    string `json:"from,omitempty"`
	To      string `json:"to"`
	Message string `json:"message"`
}

// SendCode отправляет код на номер. Без шлюза код пишется в лог (только для разработки).
func (s *Sender) SendCode(ctx context.Context, phone, code string) error {
	text := fmt.Sprintf("BusqAI: tu código es %s. Válido por 5 minutos.", code)
	if !s.Configured() {
		logger.Infof("sms: шлюз не настроен, код для %s: %s", phone, code)
		return nil
	}
	body, err := json.Marshal(gatewayRequest{From: s.cfg.From, To: phone, Message: text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.GatewayURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("sms: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("sms: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms: gateway status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
