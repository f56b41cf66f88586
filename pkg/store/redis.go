package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	gferrors "github.com/vnykmshr/stagehand/pkg/common/errors"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = gferrors.ErrClosed

var _ Store = (*RedisStore)(nil)

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	// Client is the Redis client. Required.
	Client redis.UniversalClient

	// Prefix is prepended to every key, e.g. "stagehand:".
	Prefix string

	// TTL expires written keys after the given duration. Zero keeps them.
	TTL time.Duration

	// ScanCount hints the batch size used by Keys. Default 100.
	ScanCount int64
}

// RedisStore keeps values in Redis strings.
type RedisStore struct {
	config RedisConfig
}

// NewRedisStore parses a redis:// URL, connects and verifies the connection.
func NewRedisStore(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreWithConfig(RedisConfig{Client: client, Prefix: prefix})
}

// NewRedisStoreWithConfig wraps an existing client.
func NewRedisStoreWithConfig(config RedisConfig) (*RedisStore, error) {
	if config.Client == nil {
		return nil, gferrors.NewValidationError("store", "client", nil, "cannot be nil").
			WithHint("provide a redis.UniversalClient")
	}
	if config.ScanCount <= 0 {
		config.ScanCount = 100
	}
	return &RedisStore{config: config}, nil
}

func (s *RedisStore) key(k string) string {
	return s.config.Prefix + k
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.config.Client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("key %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return v, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.config.Client.Set(ctx, s.key(key), value, s.config.TTL).Err(); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Create(ctx context.Context, key string, value []byte) (bool, error) {
	ok, err := s.config.Client.SetNX(ctx, s.key(key), value, s.config.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to create %s: %w", key, err)
	}
	return ok, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.config.Client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Keys scans for prefix and returns keys without the store prefix.
func (s *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	match := s.key(prefix) + "*"

	for {
		batch, next, err := s.config.Client.Scan(ctx, cursor, match, s.config.ScanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", match, err)
		}
		for _, k := range batch {
			keys = append(keys, k[len(s.config.Prefix):])
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.config.Client.Close()
}
