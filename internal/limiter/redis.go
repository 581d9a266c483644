package limiter

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keeps failure counters in Redis so several API instances share lockouts.
// Keys: <prefix>fails:<email>:<iphash> with TTL Window, <prefix>block:<email>:<iphash> with TTL BlockFor.
type Redis struct {
	rdb    redis.Cmdable
	cfg    Config
	prefix string
}

// NewRedis constructs a Redis-backed limiter.
func NewRedis(rdb redis.Cmdable, cfg Config, prefix string) *Redis {
	if prefix == "" {
		prefix = "efiling:login:"
	}
	return &Redis{rdb: rdb, cfg: cfg, prefix: prefix}
}

func (l *Redis) key(kind, email string, ipHash []byte) string {
	return l.prefix + kind + ":" + normEmail(email) + ":" + hex.EncodeToString(ipHash)
}

func (l *Redis) Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	ttl, err := l.rdb.PTTL(ctx, l.key("block", email, ipHash)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, 0, err
	}
	// PTTL reports -2 for a missing key.
	if ttl > 0 {
		return false, ttl, nil
	}
	return true, 0, nil
}

func (l *Redis) Success(ctx context.Context, email string, ipHash []byte) error {
	return l.rdb.Del(ctx, l.key("fails", email, ipHash), l.key("block", email, ipHash)).Err()
}

func (l *Redis) Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	fk := l.key("fails", email, ipHash)
	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, fk)
	pipe.ExpireNX(ctx, fk, l.cfg.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}
	if int(incr.Val()) < l.cfg.MaxFails {
		return false, 0, nil
	}
	if err := l.rdb.Set(ctx, l.key("block", email, ipHash), 1, l.cfg.BlockFor).Err(); err != nil {
		return false, 0, err
	}
	if err := l.rdb.Del(ctx, fk).Err(); err != nil {
		return false, 0, err
	}
	return true, l.cfg.BlockFor, nil
}
