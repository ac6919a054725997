package guard

import (
	"github.com/noxloop/digiforge/internal/clock"
	"github.com/noxloop/digiforge/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewFromConfig picks the Redis window store when a Redis address is
// configured, otherwise process-local memory.
func NewFromConfig(log *zap.Logger, clk clock.Clock, holder *config.GuardConfigHolder, cfg config.Config) *Guard {
	store := NewMemoryStore()
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		store = NewRedisStore(client)
	}
	return New(log, clk, holder, store)
}

var Module = fx.Module("guard",
	fx.Provide(NewFromConfig),
)
