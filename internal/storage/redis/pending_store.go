package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/keywarden/keywarden/internal/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const pendingKeyPrefix = "pending_reset:"

// PendingResetStore keeps pending hwid-reset selections in redis with
// the confirmation window as the key TTL, so unconfirmed selections
// vanish server-side regardless of what the front-end does.
type PendingResetStore struct {
	client *redis.Client
	window time.Duration
	logger *zap.Logger
}

func NewPendingResetStore(client *redis.Client, window time.Duration, logger *zap.Logger) *PendingResetStore {
	return &PendingResetStore{
		client: client,
		window: window,
		logger: logger.Named("PendingResetStore"),
	}
}

var _ service.PendingResetStore = (*PendingResetStore)(nil)

func (s *PendingResetStore) Put(ctx context.Context, userID string, p service.PendingReset) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal pending reset: %w", err)
	}

	if err := s.client.Set(ctx, pendingKeyPrefix+userID, payload, s.window).Err(); err != nil {
		s.logger.Error("Failed to store pending reset", zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("redis error storing pending reset: %w", err)
	}
	return nil
}

func (s *PendingResetStore) Take(ctx context.Context, userID string) (service.PendingReset, bool, error) {
	payload, err := s.client.GetDel(ctx, pendingKeyPrefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return service.PendingReset{}, false, nil
		}
		s.logger.Error("Failed to take pending reset", zap.String("user_id", userID), zap.Error(err))
		return service.PendingReset{}, false, fmt.Errorf("redis error taking pending reset: %w", err)
	}

	var p service.PendingReset
	if err := json.Unmarshal(payload, &p); err != nil {
		return service.PendingReset{}, false, fmt.Errorf("failed to unmarshal pending reset: %w", err)
	}
	return p, true, nil
}

func (s *PendingResetStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, pendingKeyPrefix+userID).Err(); err != nil {
		s.logger.Error("Failed to delete pending reset", zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("redis error deleting pending reset: %w", err)
	}
	return nil
}
