package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/busqai/internal/logger"
)

var (
	initialBackoff = 2 * time.Second
	maxBackoff     = 30 * time.Second
)

// retry вызывает connect, пока он не вернёт nil или не истечёт maxWait.
// Пауза между попытками удваивается до maxBackoff.
func retry(maxWait time.Duration, logPrefix, what string, attemptTimeout time.Duration, connect func(ctx context.Context) error) error {
	deadline := time.Now().Add(maxWait)
	backoff := initialBackoff
	for {
		ctx, cancel := context.WithTimeout(context.Background(), attemptTimeout)
		err := connect(ctx)
		cancel()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s (gave up after %v): %w", what, maxWait, err)
		}
		logger.Errorf("%s%s failed, retry in %v: %v", logPrefix, what, backoff, err)
		time.Sleep(backoff)
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}
