package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"CryptoNewsAnalyzer/internal/domain"
	"CryptoNewsAnalyzer/internal/logging"
	"CryptoNewsAnalyzer/internal/ports"
)

const defaultKey = "crypto-analyzer:run-lock"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock serialises pipeline runs across processes sharing one Redis.
type RedisLock struct {
	rdb    redis.UniversalClient
	key    string
	logger *slog.Logger
}

var _ ports.RunLock = (*RedisLock)(nil)

// NewRedisLock parses url and returns a lock; the connection is established lazily.
func NewRedisLock(url, key string, logger *slog.Logger) (*RedisLock, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: parse redis url: %v", domain.ErrConfig, err)
	}
	return NewRedisLockWithClient(redis.NewClient(opts), key, logger), nil
}

// NewRedisLockWithClient wraps an existing client.
func NewRedisLockWithClient(rdb redis.UniversalClient, key string, logger *slog.Logger) *RedisLock {
	if key == "" {
		key = defaultKey
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &RedisLock{rdb: rdb, key: key, logger: logger.With("component", "run-lock")}
}

// Acquire takes the lock for ttl. acquired is false when another holder owns it.
func (l *RedisLock) Acquire(ctx context.Context, ttl time.Duration) (func(context.Context) error, bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("setnx %s: %w", l.key, err)
	}
	if !ok {
		l.logger.Info("run lock held elsewhere", "key", l.key)
		return nil, false, nil
	}
	l.logger.Debug("run lock acquired", "key", l.key, "ttl", ttl)

	release := func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.rdb, []string{l.key}, token).Int()
		if err != nil {
			return fmt.Errorf("release %s: %w", l.key, err)
		}
		if n == 0 {
			l.logger.Warn("run lock expired before release", "key", l.key)
		}
		return nil
	}
	return release, true, nil
}

// Ping checks connectivity.
func (l *RedisLock) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

// Close closes the underlying client.
func (l *RedisLock) Close() error {
	return l.rdb.Close()
}
