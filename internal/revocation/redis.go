package revocation

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "efiling:revoked:"

// Redis is a List shared by every API instance.
type Redis struct {
	client redis.Cmdable
}

// NewRedis constructs a Redis-backed revocation list.
func NewRedis(client redis.Cmdable) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, keyPrefix+jti, "1", ttl).Err()
}

// Claim uses SET NX so that only one caller revokes a given jti.
func (r *Redis) Claim(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if jti == "" || ttl <= 0 {
		return false, nil
	}
	return r.client.SetNX(ctx, keyPrefix+jti, "1", ttl).Result()
}

func (r *Redis) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	err := r.client.Get(ctx, keyPrefix+jti).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Dial parses a redis:// URL, connects and pings.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
