package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "hls:playlist:"
	redisIndexKey  = "hls:playlists"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string // Redis server address (host:port)
	Password string
	DB       int
}

// RedisStore keeps each playlist under its own key and the set of ids in an
// index set.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and checks the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig, log *slog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	if log != nil {
		log.Info("connected to redis store", slog.String("addr", cfg.Addr), slog.Int("db", cfg.DB))
	}
	return &RedisStore{client: client}, nil
}

// Load implements orchestrator.Store.
func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

// Save implements orchestrator.Store.
func (s *RedisStore) Save(ctx context.Context, key string, data []byte) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisKeyPrefix+key, data, 0)
		pipe.SAdd(ctx, redisIndexKey, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete implements orchestrator.Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisKeyPrefix+key)
		pipe.SRem(ctx, redisIndexKey, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

// List implements orchestrator.Store.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	keys, err := s.client.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
