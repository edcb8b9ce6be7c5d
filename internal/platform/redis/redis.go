package redis

import (
	"context"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/voxloop/trialguard/pkg/config"
)

// NewClient returns a redis client, or nil when no address is configured.
// The sweep lease treats a nil client as "single instance deployment" and
// falls back to an in-process mutex.
func NewClient(lc fx.Lifecycle, l *zap.SugaredLogger, cfg *cfgpkg.Config) *goredis.Client {
	if cfg.Redis.Addr == "" {
		l.Infow("redis not configured, sweep lease will be process-local")
		return nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				l.Errorf("redis ping failed: %v", err)
				return err
			}
			l.Infow("connected to redis", "addr", cfg.Redis.Addr)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return client
}

var Module = fx.Options(
	fx.Provide(NewClient),
)
