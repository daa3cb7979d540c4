package startup

import (
	"context"
	"os"
	"time"

	"github.com/busqai/internal/logger"
	redisstorage "github.com/busqai/internal/storage/redis"
)

// ConnectRedisWithRetry подключается к Redis с повторами.
func ConnectRedisWithRetry(redisURL string, maxWait time.Duration, logPrefix string) *redisstorage.Client {
	var client *redisstorage.Client
	err := retry(maxWait, logPrefix, "redis connect", 5*time.Second, func(ctx context.Context) error {
		c, err := redisstorage.New(ctx, redisURL)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		logger.Errorf("%s%v", logPrefix, err)
		logger.Flush()
		os.Exit(1)
	}
	return client
}
