package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/story-core/pkg/ecs"
	"github.com/jwebster45206/story-core/pkg/storage"
)

const (
	sessionKeyPrefix  = "session:"
	DefaultSessionTTL = time.Hour
)

// RedisStorage keeps one Redis hash per session. Each field is a record key
// ("<entity>/<kind>") holding the JSON-encoded component record.
type RedisStorage struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

// Ensure RedisStorage implements Storage interface
var _ storage.Storage = (*RedisStorage)(nil)

// NewRedisStorage creates a new Redis storage instance from a redis:// URL.
func NewRedisStorage(redisURL string, ttl time.Duration, logger *slog.Logger) (*RedisStorage, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return NewRedisStorageFromClient(redis.NewClient(opts), ttl, logger), nil
}

// NewRedisStorageFromClient wraps an existing client.
func NewRedisStorageFromClient(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisStorage {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStorage{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

func sessionKey(id uuid.UUID) string {
	return sessionKeyPrefix + id.String()
}

// Health and lifecycle methods

func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisStorage) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

// Record operations

func (r *RedisStorage) SaveRecords(ctx context.Context, sessionID uuid.UUID, records map[string]ecs.Record) error {
	if len(records) == 0 {
		return nil
	}

	fields := make(map[string]any, len(records))
	for key, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			r.logger.Error("Failed to marshal record", "session_id", sessionID, "record", key, "error", err)
			return fmt.Errorf("failed to marshal record %s: %w", key, err)
		}
		fields[key] = string(data)
	}

	key := sessionKey(sessionID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to save records", "session_id", sessionID, "error", err)
		return fmt.Errorf("failed to save records: %w", err)
	}

	r.logger.Debug("Records saved", "session_id", sessionID, "count", len(records))
	return nil
}

func (r *RedisStorage) LoadRecords(ctx context.Context, sessionID uuid.UUID) (map[string]ecs.Record, error) {
	fields, err := r.client.HGetAll(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		r.logger.Error("Failed to load records", "session_id", sessionID, "error", err)
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	if len(fields) == 0 {
		r.logger.Warn("Session records not found", "session_id", sessionID)
		return nil, nil // Return nil for not found
	}

	out := make(map[string]ecs.Record, len(fields))
	for key, raw := range fields {
		var rec ecs.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			r.logger.Error("Failed to unmarshal record", "session_id", sessionID, "record", key, "error", err)
			return nil, fmt.Errorf("failed to unmarshal record %s: %w", key, err)
		}
		out[key] = rec
	}
	return out, nil
}

func (r *RedisStorage) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	if err := r.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		r.logger.Error("Failed to delete session", "session_id", sessionID, "error", err)
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
