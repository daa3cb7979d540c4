package push

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	subsKeyPrefix   = "busqai:push:subs:"
	maxSubsPerUser  = 10
	subscriptionTTL = 30 * 24 * time.Hour
)

// SubscriptionStore хранит подписки пользователя списком в Redis (последние maxSubsPerUser).
type SubscriptionStore struct {
	rdb *redis.Client
}

func NewSubscriptionStore(rdb *redis.Client) *SubscriptionStore {
	return &SubscriptionStore{rdb: rdb}
}

// Add сохраняет подписку; повторная подписка того же endpoint заменяет старую.
func (s *SubscriptionStore) Add(ctx context.Context, userID string, sub Subscription) error {
	if err := s.Remove(ctx, userID, sub.Endpoint); err != nil {
		return err
	}
	raw, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	key := subsKeyPrefix + userID
	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, key, raw)
	pipe.LTrim(ctx, key, -maxSubsPerUser, -1)
	pipe.Expire(ctx, key, subscriptionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("subscriptionStore.Add: %w", err)
	}
	return nil
}

// Remove удаляет подписки с данным endpoint.
func (s *SubscriptionStore) Remove(ctx context.Context, userID, endpoint string) error {
	key := subsKeyPrefix + userID
	list, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("subscriptionStore.Remove: %w", err)
	}
	for _, item := range list {
		var sub Subscription
		if json.Unmarshal([]byte(item), &sub) == nil && sub.Endpoint != endpoint {
			continue
		}
		if err := s.rdb.LRem(ctx, key, 0, item).Err(); err != nil {
			return fmt.Errorf("subscriptionStore.Remove: %w", err)
		}
	}
	return nil
}

// List возвращает действующие подписки пользователя.
func (s *SubscriptionStore) List(ctx context.Context, userID string) ([]Subscription, error) {
	list, err := s.rdb.LRange(ctx, subsKeyPrefix+userID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("subscriptionStore.List: %w", err)
	}
	subs := make([]Subscription, 0, len(list))
	for _, item := range list {
		var sub Subscription
		if json.Unmarshal([]byte(item), &sub) == nil && sub.Valid() {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}
