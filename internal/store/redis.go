package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/tendant/simple-renderer/pkg/schema"
)

// DefaultKeyPrefix is the namespace scene producers write records under.
const DefaultKeyPrefix = "manim:"

var _ JobStore = (*Redis)(nil)

// RedisOption configures the Redis store.
type RedisOption func(*Redis)

func WithKeyPrefix(prefix string) RedisOption {
	return func(s *Redis) { s.prefix = prefix }
}

func WithLogger(l *slog.Logger) RedisOption {
	return func(s *Redis) { s.logger = l }
}

// Redis stores each record as a JSON string at prefix+sessionID. Saves keep
// whatever expiry the producer set on the key and never create one.
type Redis struct {
	client redis.Cmdable
	prefix string
	logger *slog.Logger
}

// NewRedis creates a Redis-backed store. The caller owns the client lifecycle.
func NewRedis(client redis.Cmdable, opts ...RedisOption) *Redis {
	s := &Redis{client: client, prefix: DefaultKeyPrefix, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Redis) key(sessionID string) string { return s.prefix + sessionID }

func (s *Redis) Load(ctx context.Context, sessionID string) (*schema.JobRecord, error) {
	b, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("store/redis: load %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store/redis: load %s: %w", sessionID, err)
	}
	rec, err := schema.DecodeJobRecord(b)
	if err != nil {
		return nil, fmt.Errorf("store/redis: load %s: %w", sessionID, err)
	}
	return rec, nil
}

func (s *Redis) Save(ctx context.Context, sessionID string, rec *schema.JobRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store/redis: save %s: %w", sessionID, err)
	}
	err = s.client.SetArgs(ctx, s.key(sessionID), b, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if errors.Is(err, redis.Nil) {
		s.logger.Warn("job record gone, not recreating", "session_id", sessionID, "key", s.key(sessionID))
		return fmt.Errorf("store/redis: save %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("store/redis: save %s: %w", sessionID, err)
	}
	return nil
}

// Keys returns the session ids of all stored records.
func (s *Redis) Keys(ctx context.Context) ([]string, error) {
	var (
		ids    []string
		cursor uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 200).Result()
		if err != nil {
			return nil, fmt.Errorf("store/redis: scan: %w", err)
		}
		for _, k := range keys {
			ids = append(ids, strings.TrimPrefix(k, s.prefix))
		}
		if next == 0 {
			return ids, nil
		}
		cursor = next
	}
}

func (s *Redis) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
