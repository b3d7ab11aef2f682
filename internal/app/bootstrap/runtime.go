package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/carepulse/internal/appointments"
	appconfig "github.com/wolfman30/carepulse/internal/config"
	"github.com/wolfman30/carepulse/internal/events"
	"github.com/wolfman30/carepulse/internal/http/handlers"
	"github.com/wolfman30/carepulse/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// AdminView bundles the admin list cache and the change-event broker.
type AdminView struct {
	Cache  appointments.ListCache
	Broker events.Broker
	Checks map[string]handlers.Check
}

// BuildAdminView uses Redis when a client is given and in-process fallbacks otherwise.
// Without Redis the list is never cached and events reach only this instance.
func BuildAdminView(redisClient *redis.Client, cacheTTL time.Duration, logger *logging.Logger) AdminView {
	if logger == nil {
		logger = logging.Default()
	}
	if redisClient == nil {
		logger.Info("admin view running without redis")
		return AdminView{Broker: events.NewMemoryBroker()}
	}
	return AdminView{
		Cache:  appointments.NewRedisListCache(redisClient, cacheTTL),
		Broker: events.NewRedisBroker(redisClient, events.DefaultChannel, logger),
		Checks: map[string]handlers.Check{
			"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
	}
}
