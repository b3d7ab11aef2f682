package appointments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	recentListKey       = "appointments:recent"
	recentGenerationKey = "appointments:recent:gen"
)

// ListCache holds the last computed admin list. Get reports the current
// generation; Set stores a list only while that generation is unchanged,
// so a list read before an Invalidate never lands after it.
type ListCache interface {
	Get(ctx context.Context) (list *RecentList, gen int64, ok bool, err error)
	Set(ctx context.Context, gen int64, list *RecentList) error
	Invalidate(ctx context.Context) error
}

// RedisListCache stores the admin list as JSON under a single key, guarded
// by a generation counter bumped on every invalidation.
type RedisListCache struct {
	redis  *redis.Client
	key    string
	genKey string
	ttl    time.Duration
}

// NewRedisListCache creates a cache whose entries expire after ttl.
func NewRedisListCache(client *redis.Client, ttl time.Duration) *RedisListCache {
	if client == nil {
		panic("appointments: redis client cannot be nil")
	}
	return &RedisListCache{redis: client, key: recentListKey, genKey: recentGenerationKey, ttl: ttl}
}

func (c *RedisListCache) Get(ctx context.Context) (*RecentList, int64, bool, error) {
	vals, err := c.redis.MGet(ctx, c.genKey, c.key).Result()
	if err != nil {
		return nil, 0, false, fmt.Errorf("appointments: cache get: %w", err)
	}
	gen, err := parseGeneration(vals[0])
	if err != nil {
		return nil, 0, false, err
	}
	raw, ok := vals[1].(string)
	if !ok {
		return nil, gen, false, nil
	}
	var list RecentList
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, gen, false, fmt.Errorf("appointments: cache decode: %w", err)
	}
	return &list, gen, true, nil
}

// Set is a no-op when the generation moved since gen was read.
func (c *RedisListCache) Set(ctx context.Context, gen int64, list *RecentList) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("appointments: cache encode: %w", err)
	}
	err = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, c.genKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		current, err := parseGeneration(raw)
		if err != nil {
			return err
		}
		if current != gen {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.key, data, c.ttl)
			return nil
		})
		return err
	}, c.genKey)
	if errors.Is(err, errStaleGeneration) || errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("appointments: cache set: %w", err)
	}
	return nil
}

func (c *RedisListCache) Invalidate(ctx context.Context) error {
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.genKey)
		pipe.Del(ctx, c.key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("appointments: cache invalidate: %w", err)
	}
	return nil
}

var errStaleGeneration = errors.New("appointments: cache generation changed")

func parseGeneration(v any) (int64, error) {
	s, _ := v.(string)
	if s == "" {
		return 0, nil
	}
	gen, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("appointments: cache generation %q: %w", s, err)
	}
	return gen, nil
}

type noopCache struct{}

func (noopCache) Get(context.Context) (*RecentList, int64, bool, error) { return nil, 0, false, nil }
func (noopCache) Set(context.Context, int64, *RecentList) error         { return nil }
func (noopCache) Invalidate(context.Context) error                      { return nil }
