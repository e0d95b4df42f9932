package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"rocketcrash/config"
	"rocketcrash/engine"
)

// Redis wraps the shared redis client. It carries the cross-instance
// cashout rate limiter, the operator pause flag and the crash history
// cache. All of it is best-effort: the engine keeps running on a dead
// redis, just without these conveniences.
type Redis struct {
	client *redis.Client
	log    *logrus.Logger
}

// NewRedis connects and pings.
func NewRedis(ctx context.Context, addr, password string, dbNum int, log *logrus.Logger) (*Redis, error) {
	log.Info("🔌 Connecting to Redis...")

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       dbNum,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Info("✅ Redis connected")
	return &Redis{client: client, log: log}, nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Health pings redis.
func (r *Redis) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

/* =========================
   RATE LIMITER
========================= */

// Allow increments the window counter for key and reports whether the
// caller is still inside the budget. The first hit in a window arms the
// expiry, so the counter always dies with its window.
func (r *Redis) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to bump rate counter: %w", err)
	}
	return incr.Val() <= int64(limit), nil
}

/* =========================
   OPERATOR PAUSE FLAG
========================= */

// OperatorPaused reads the shared pause switch. A missing key means not
// paused.
func (r *Redis) OperatorPaused(ctx context.Context) (bool, error) {
	val, err := r.client.Get(ctx, config.RedisEnginePausedKey).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read pause flag: %w", err)
	}
	return val == "1", nil
}

// SetOperatorPaused flips the shared pause switch.
func (r *Redis) SetOperatorPaused(ctx context.Context, paused bool) error {
	if !paused {
		if err := r.client.Del(ctx, config.RedisEnginePausedKey).Err(); err != nil {
			return fmt.Errorf("failed to clear pause flag: %w", err)
		}
		return nil
	}
	if err := r.client.Set(ctx, config.RedisEnginePausedKey, "1", 0).Err(); err != nil {
		return fmt.Errorf("failed to set pause flag: %w", err)
	}
	return nil
}

/* =========================
   CRASH HISTORY CACHE
========================= */

// PushCrashHistory prepends a revealed round to the cached history list
// and trims it to length. Failures are logged and swallowed; Postgres
// remains the source of truth.
func (r *Redis) PushCrashHistory(ctx context.Context, round *engine.PublicRound) {
	payload, err := json.Marshal(round)
	if err != nil {
		r.log.WithError(err).Warn("⚠️ Failed to marshal round for history cache")
		return
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, config.RedisCrashHistoryKey, payload)
	pipe.LTrim(ctx, config.RedisCrashHistoryKey, 0, config.CrashHistoryCacheLen-1)
	pipe.Expire(ctx, config.RedisCrashHistoryKey, config.CrashHistoryTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.WithError(err).Warn("⚠️ Failed to cache round history")
	}
}

// CrashHistory returns the cached revealed rounds, newest first. An empty
// slice with a nil error means a cache miss; the caller falls through to
// Postgres.
func (r *Redis) CrashHistory(ctx context.Context, limit int) ([]*engine.PublicRound, error) {
	if limit > config.CrashHistoryCacheLen {
		limit = config.CrashHistoryCacheLen
	}
	raw, err := r.client.LRange(ctx, config.RedisCrashHistoryKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history cache: %w", err)
	}

	rounds := make([]*engine.PublicRound, 0, len(raw))
	for _, item := range raw {
		var round engine.PublicRound
		if err := json.Unmarshal([]byte(item), &round); err != nil {
			r.log.WithError(err).Warn("⚠️ Dropping corrupt history cache entry")
			continue
		}
		rounds = append(rounds, &round)
	}
	return rounds, nil
}
