package presence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "presence:operator:"

// Tracker keeps a redis-backed heartbeat per operator. A missing key means
// the operator has not checked in within the TTL window; the presence worker
// then forces it OFFLINE through the lifecycle coordinator.
type Tracker struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewTracker builds a tracker. A nil client yields a disabled tracker whose
// methods no-op; the core never depends on redis being reachable.
func NewTracker(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Tracker {
	return &Tracker{client: client, ttl: ttl, logger: logger}
}

// Touch refreshes the operator heartbeat.
func (t *Tracker) Touch(ctx context.Context, operatorID string) error {
	if t == nil || t.client == nil {
		return nil
	}
	if err := t.client.Set(ctx, keyPrefix+operatorID, time.Now().Unix(), t.ttl).Err(); err != nil {
		t.logger.Warn("presence touch failed", zap.String("operator_id", operatorID), zap.Error(err))
		return err
	}
	return nil
}

// Forget drops the heartbeat, used when an operator goes OFFLINE explicitly.
func (t *Tracker) Forget(ctx context.Context, operatorID string) {
	if t == nil || t.client == nil {
		return
	}
	if err := t.client.Del(ctx, keyPrefix+operatorID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		t.logger.Warn("presence forget failed", zap.String("operator_id", operatorID), zap.Error(err))
	}
}

// Alive reports whether the operator heartbeat is still present. When redis
// is not configured every operator counts as alive, disabling the sweep.
func (t *Tracker) Alive(ctx context.Context, operatorID string) (bool, error) {
	if t == nil || t.client == nil {
		return true, nil
	}
	n, err := t.client.Exists(ctx, keyPrefix+operatorID).Result()
	if err != nil {
		return true, err
	}
	return n > 0, nil
}
