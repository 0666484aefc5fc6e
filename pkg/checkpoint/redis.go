package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "quartic:checkpoint:"

// Redis keeps the checkpoint as a JSON array under one key per pipeline.
type Redis struct {
	client redis.UniversalClient
	key    string
	logger *slog.Logger
}

// NewRedis connects to url (redis:// or rediss://) and stores the checkpoint for name.
func NewRedis(ctx context.Context, logger *slog.Logger, url, name string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, &Error{Op: "Open", Location: "redis", Err: err}
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		_ = client.Close()

		return nil, &Error{Op: "Open", Location: opts.Addr, Err: fmt.Errorf("failed to connect to Redis: %w", err)}
	}

	store := NewRedisWithClient(logger, client, name)
	store.logger.InfoContext(ctx, "Connected to Redis", "addr", opts.Addr, "db", opts.DB)

	return store, nil
}

// NewRedisWithClient uses an existing client.
func NewRedisWithClient(logger *slog.Logger, client redis.UniversalClient, name string) *Redis {
	key := redisKeyPrefix + name

	return &Redis{
		client: client,
		key:    key,
		logger: logger.With("module", "redis_checkpoint", "key", key),
	}
}

func (r *Redis) Load(ctx context.Context) (Set, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return NewSet(), nil
	}

	if err != nil {
		return nil, &Error{Op: "Load", Location: r.key, Err: err}
	}

	var set Set
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, &Error{Op: "Load", Location: r.key, Err: err}
	}

	return set, nil
}

func (r *Redis) Save(ctx context.Context, set Set) error {
	data, err := json.Marshal(set)
	if err != nil {
		return &Error{Op: "Save", Location: r.key, Err: err}
	}

	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return &Error{Op: "Save", Location: r.key, Err: err}
	}

	return nil
}

// Clear removes the saved checkpoint.
func (r *Redis) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return &Error{Op: "Clear", Location: r.key, Err: err}
	}

	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
