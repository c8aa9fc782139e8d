package calibration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultRedisPrefix namespaces calibration keys in a shared Redis.
const DefaultRedisPrefix = "qlbm:calibration:"

// RedisStore keeps records as plain Redis string values.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	log    zerolog.Logger
}

// NewRedisClient connects to url and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// NewRedisStore creates a store over client. An empty prefix uses DefaultRedisPrefix.
func NewRedisStore(client redis.Cmdable, prefix string, log zerolog.Logger) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		log:    log.With().Str("component", "calibration_store").Str("store", "redis").Logger(),
	}
}

func (s *RedisStore) redisKey(key Key) string {
	return s.prefix + key.String()
}

func (s *RedisStore) Get(ctx context.Context, key Key) (*Record, bool, error) {
	data, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read calibration %s: %w", key, err)
	}

	record, err := Decode(data)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key.String()).Msg("Ignoring corrupt calibration record")
		return nil, false, nil
	}
	return record, true, nil
}

// Put uses a single SET, which Redis applies atomically.
func (s *RedisStore) Put(ctx context.Context, key Key, record *Record) error {
	data, err := Encode(record)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.redisKey(key), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store calibration %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete calibration %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Keys(ctx context.Context) ([]Key, error) {
	var keys []Key
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		k, err := ParseKey(strings.TrimPrefix(iter.Val(), s.prefix))
		if err != nil {
			s.log.Warn().Str("redis_key", iter.Val()).Msg("Skipping unrecognized calibration key")
			continue
		}
		keys = append(keys, k)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list calibrations: %w", err)
	}
	sortKeys(keys)
	return keys, nil
}
