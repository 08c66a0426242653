package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// reserveScript trims the sorted set to the window, then adds the request
// when limit allows. Scores are unix milliseconds.
var reserveScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local size = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - size)
local count = redis.call('ZCARD', key)
if limit > 0 and count >= limit then
  return {count, 0}
end
redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, size)
return {count + 1, 1}
`)

// RedisConfig holds connection settings for a shared window.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	Key        string
	MaxRetries int
}

// RedisWindow stores timestamps in a Redis sorted set so every process
// sharing Key draws from one budget.
type RedisWindow struct {
	client redis.UniversalClient
	key    string
	size   time.Duration
}

// NewRedisWindow wraps an existing client. The window owns the client and
// closes it on Close.
func NewRedisWindow(client redis.UniversalClient, key string, size time.Duration) *RedisWindow {
	if size <= 0 {
		size = DefaultWindow
	}
	if key == "" {
		key = "studysearch:ratelimit:embedding"
	}
	return &RedisWindow{client: client, key: key, size: size}
}

// ConnectRedis opens a client and pings it, backing off between attempts.
func ConnectRedis(ctx context.Context, cfg RedisConfig, logger zerolog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
	})

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var err error
	for i := range maxRetries {
		if i > 0 {
			backoff := time.Duration(1<<uint(i)) * time.Second
			logger.Info().Dur("backoff", backoff).Msg("Waiting before Redis retry")
			select {
			case <-ctx.Done():
				_ = client.Close()
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		err = client.Ping(ctx).Err()
		if err == nil {
			logger.Info().Str("addr", cfg.Addr).Int("attempts_needed", i+1).Msg("Redis connected")
			return client, nil
		}

		logger.Warn().Err(err).Int("attempt", i+1).Msg("Redis ping failed")
	}

	_ = client.Close()
	return nil, fmt.Errorf("failed to connect to Redis after %d attempts: %w", maxRetries, err)
}

func (w *RedisWindow) Record(ctx context.Context, now time.Time) (int, error) {
	count, _, err := w.run(ctx, now, 0)
	return count, err
}

func (w *RedisWindow) Reserve(ctx context.Context, now time.Time, limit int) (int, bool, error) {
	return w.run(ctx, now, limit)
}

func (w *RedisWindow) run(ctx context.Context, now time.Time, limit int) (int, bool, error) {
	nowMs := now.UnixMilli()
	vals, err := reserveScript.Run(ctx, w.client, []string{w.key},
		nowMs,
		w.size.Milliseconds(),
		limit,
		strconv.FormatInt(nowMs, 10)+"-"+uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("rate limit script: %w", err)
	}
	if len(vals) != 2 {
		return 0, false, fmt.Errorf("rate limit script: unexpected reply %v", vals)
	}
	return int(vals[0]), vals[1] == 1, nil
}

func (w *RedisWindow) Count(ctx context.Context, now time.Time) (int, error) {
	minScore := "(" + strconv.FormatInt(now.Add(-w.size).UnixMilli(), 10)
	n, err := w.client.ZCount(ctx, w.key, minScore, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("rate limit count: %w", err)
	}
	return int(n), nil
}

func (w *RedisWindow) Oldest(ctx context.Context, now time.Time) (time.Time, error) {
	minScore := "(" + strconv.FormatInt(now.Add(-w.size).UnixMilli(), 10)
	zs, err := w.client.ZRangeByScoreWithScores(ctx, w.key, &redis.ZRangeBy{
		Min:   minScore,
		Max:   "+inf",
		Count: 1,
	}).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("rate limit oldest: %w", err)
	}
	if len(zs) == 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(int64(zs[0].Score)), nil
}

func (w *RedisWindow) Size() time.Duration {
	return w.size
}

func (w *RedisWindow) Close() error {
	return w.client.Close()
}
