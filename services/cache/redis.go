// Package cachesvc holds the redis backed stores.
package cachesvc

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/schooldriver/schooldriver/core"
	"github.com/schooldriver/schooldriver/core/ratelimit"
)

// NewRedisClient returns nil when no redis address is configured.
func NewRedisClient(conf *core.Config) *redis.Client {
	if conf.Redis.Address == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Address,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
}

// RateLimitStore keeps fixed-window counters in redis, shared by every API instance.
type RateLimitStore struct {
	client *redis.Client
}

var _ ratelimit.Store = (*RateLimitStore)(nil)

func NewRateLimitStore(client *redis.Client) *RateLimitStore {
	return &RateLimitStore{client: client}
}

// Incr counts a hit in the window of key. The expiry is set again whenever the counter has none,
// so a failed EXPIRE cannot leave a counter that never resets.
func (s *RateLimitStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		ttl = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "incrementing counter")
	}
	cnt := incr.Val()
	if ttl.Val() < 0 {
		if err = s.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, errors.Wrap(err, "setting counter expiry")
		}
	}
	return cnt, nil
}
