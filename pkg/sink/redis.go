package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/illmade-knight/go-alertstream/pkg/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned by Fetch for a key that is not stored.
var ErrNotFound = errors.New("record not found")

// RedisConfig holds the configuration for the Redis sink.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	TTL       time.Duration
	KeyPrefix string
	KeyField  string
}

// RedisSink stores each record as JSON under <KeyPrefix><key> with a TTL.
type RedisSink struct {
	redisClient *redis.Client
	logger      zerolog.Logger
	ttl         time.Duration
	prefix      string
	keyField    string
}

// NewRedisSink connects to Redis and pings it before returning.
func NewRedisSink(ctx context.Context, cfg RedisConfig, logger zerolog.Logger) (*RedisSink, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info().Str("redis_address", cfg.Addr).Msg("Successfully connected to Redis.")

	return &RedisSink{
		redisClient: rdb,
		logger:      logger.With().Str("component", "RedisSink").Logger(),
		ttl:         cfg.TTL,
		prefix:      cfg.KeyPrefix,
		keyField:    cfg.KeyField,
	}, nil
}

// Save marshals rec to JSON and stores it with the configured TTL.
func (s *RedisSink) Save(ctx context.Context, rec types.Record) error {
	key := s.prefix + recordKey(rec, s.keyField)
	jsonData, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record for key %s: %w", key, err)
	}
	if err := s.redisClient.Set(ctx, key, jsonData, s.ttl).Err(); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to set record in Redis.")
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	s.logger.Debug().Str("key", key).Msg("Stored record in Redis.")
	return nil
}

// Fetch reads a stored record by its unprefixed key.
func (s *RedisSink) Fetch(ctx context.Context, key string) (types.Record, error) {
	data, err := s.redisClient.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("redis get failed for key %s: %w", key, err)
	}
	var rec types.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record %s: %w", key, err)
	}
	return rec, nil
}

func (s *RedisSink) Name() string { return "redis" }

// Close closes the Redis client connection.
func (s *RedisSink) Close() error {
	if s.redisClient != nil {
		s.logger.Info().Msg("Closing Redis client connection...")
		return s.redisClient.Close()
	}
	return nil
}
