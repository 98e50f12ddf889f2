package cache

import (
	"context"
	"time"

	"github.com/bobmcallan/vire-gateway/internal/common"
	"github.com/bobmcallan/vire-gateway/internal/config"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "vire-gateway:"

// RedisStore is a Store backed by Redis, shared across gateway replicas.
// Redis failures degrade to cache misses and are logged.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *common.Logger
}

// NewRedisStore connects lazily to the configured Redis server. A nil
// logger discards failure reports.
func NewRedisStore(cfg config.RedisConfig, ttl time.Duration, logger *common.Logger) *RedisStore {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		ttl:    ttl,
		logger: logger,
	}
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Debug().Str("key", key).Str("error", err.Error()).Msg("redis get failed, treating as miss")
		}
		return nil, false
	}
	return b, true
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) {
	if err := s.client.Set(ctx, redisKeyPrefix+key, value, s.ttl).Err(); err != nil {
		s.logger.Warn().Str("key", key).Str("error", err.Error()).Msg("redis set failed, result not cached")
	}
}

func (s *RedisStore) InvalidatePrefix(ctx context.Context, prefix string) {
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.logger.Warn().Str("prefix", prefix).Str("error", err.Error()).Msg("redis scan failed, cached entries kept")
		return
	}
	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			s.logger.Warn().Str("prefix", prefix).Int("keys", len(keys)).Str("error", err.Error()).Msg("redis delete failed, cached entries kept")
		}
	}
}
