package personaquiz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore keeps the session snapshot in a Redis string under the fixed key
type RedisStore struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// RedisOptions selects the Redis server
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore connects to Redis and pings it once
func NewRedisStore(ctx context.Context, opts RedisOptions, logger *zap.Logger) (*RedisStore, error) {
	logger = orNop(logger)
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.Ping(pingCtx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("unable to ping redis at %s: %w", opts.Addr, err)
	}
	logger.Debug("connected to redis", zap.String("address", opts.Addr), zap.Int("db", opts.DB))

	return &RedisStore{client: client, key: StorageKey, logger: logger}, nil
}

// Load reads the snapshot. A missing key yields (nil, nil).
func (s *RedisStore) Load(ctx context.Context) (*SessionState, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session from redis: %w", err)
	}
	return DecodeState(data, s.logger), nil
}

// Save overwrites the snapshot
func (s *RedisStore) Save(ctx context.Context, state *SessionState) error {
	data, err := EncodeState(state)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save session to redis: %w", err)
	}
	return nil
}

// Clear deletes the snapshot
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear session in redis: %w", err)
	}
	return nil
}

// Close closes the client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
