package watermark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/mikrosync/internal/domain/relay"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisClient is the subset of redis.Cmdable the store needs
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisStore keeps the watermark under a single Redis key.
// SET replaces the value atomically.
type RedisStore struct {
	client redisClient
	closer func() error
	key    string
	label  string
	logger *zap.Logger
}

// NewRedisStoreWithClient creates a store on an existing client
func NewRedisStoreWithClient(client redisClient, key, label string, logger *zap.Logger) *RedisStore {
	if label == "" {
		label = DefaultLabel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &RedisStore{client: client, key: key, label: label, logger: logger, closer: func() error { return nil }}
	if c, ok := client.(interface{ Close() error }); ok {
		s.closer = c.Close
	}
	return s
}

// Read returns the stored code, or "" when the key does not exist
func (s *RedisStore) Read(ctx context.Context) (string, error) {
	val, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: redis get %s: %v", relay.ErrStorageUnavailable, s.key, err)
	}
	return decode(val), nil
}

// Write stores the code without expiry
func (s *RedisStore) Write(ctx context.Context, code string) error {
	if err := s.client.Set(ctx, s.key, encode(s.label, code), 0).Err(); err != nil {
		return fmt.Errorf("%w: redis set %s: %v", relay.ErrStorageUnavailable, s.key, err)
	}
	s.logger.Debug("Watermark written", zap.String("key", s.key), zap.String("order_code", code))
	return nil
}

// Close closes the underlying client
func (s *RedisStore) Close() error {
	return s.closer()
}
