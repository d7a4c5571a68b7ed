package watermark

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/mikrosync/internal/domain/relay"
	"github.com/erp/mikrosync/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Backend names
const (
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendS3    = "s3"
)

// Store is a watermark backend that owns its connections
type Store interface {
	relay.WatermarkStore
	Close() error
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*RedisStore)(nil)
	_ Store = (*S3Store)(nil)
)

// New creates the backend selected by cfg.Watermark.Backend.
// Network backends are checked for reachability before returning.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
	logger = logger.Named("watermark")
	wm := cfg.Watermark

	switch wm.Backend {
	case "", BackendFile:
		logger.Info("Using file watermark", zap.String("path", wm.FilePath))
		return NewFileStore(wm.FilePath, wm.Label, logger), nil

	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		logger.Info("Using redis watermark", zap.String("addr", cfg.Redis.Addr()), zap.String("key", wm.Key))
		return NewRedisStoreWithClient(client, wm.Key, wm.Label, logger), nil

	case BackendS3:
		client, err := NewS3Client(ctx, &cfg.Storage)
		if err != nil {
			return nil, err
		}
		logger.Info("Using s3 watermark", zap.String("bucket", cfg.Storage.Bucket), zap.String("key", wm.Key))
		return NewS3Store(client, cfg.Storage.Bucket, wm.Key, wm.Label, logger), nil

	default:
		return nil, fmt.Errorf("unknown watermark backend %q", wm.Backend)
	}
}
