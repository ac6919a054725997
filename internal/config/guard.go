package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// RateLimit is a per-action sliding-window budget.
type RateLimit struct {
	MaxRequests   int `mapstructure:"maxRequests"`
	WindowSeconds int `mapstructure:"windowSeconds"`
}

// GuardConfig holds rate-limit and credit-abuse thresholds.
type GuardConfig struct {
	Enabled               bool                 `mapstructure:"enabled"`
	RateLimits            map[string]RateLimit `mapstructure:"rateLimits"`
	LockoutSeconds        int                  `mapstructure:"lockoutSeconds"`
	MaxCreditsPerDay      int64                `mapstructure:"maxCreditsPerDay"`
	MaxGenerationsPerHour int64                `mapstructure:"maxGenerationsPerHour"`
}

func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Enabled: true,
		RateLimits: map[string]RateLimit{
			"register":       {MaxRequests: 5, WindowSeconds: 3600},
			"login":          {MaxRequests: 10, WindowSeconds: 900},
			"login_failed":   {MaxRequests: 5, WindowSeconds: 900},
			"generate":       {MaxRequests: 30, WindowSeconds: 3600},
			"api_global":     {MaxRequests: 100, WindowSeconds: 60},
			"password_reset": {MaxRequests: 3, WindowSeconds: 3600},
		},
		LockoutSeconds:        1800,
		MaxCreditsPerDay:      100,
		MaxGenerationsPerHour: 20,
	}
}

// GuardConfigHolder serves the current guard thresholds and hot-reloads them
// when the backing file changes.
type GuardConfigHolder struct {
	current atomic.Value // holds GuardConfig
}

func NewGuardConfigHolder() (*GuardConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("guard")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/digiforge")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DIGIFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultGuardConfig()
	v.SetDefault("guard.enabled", defaults.Enabled)
	v.SetDefault("guard.lockoutSeconds", defaults.LockoutSeconds)
	v.SetDefault("guard.maxCreditsPerDay", defaults.MaxCreditsPerDay)
	v.SetDefault("guard.maxGenerationsPerHour", defaults.MaxGenerationsPerHour)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg, err := unmarshalGuard(v)
	if err != nil {
		return nil, err
	}

	holder := &GuardConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := unmarshalGuard(v)
		if err != nil {
			log.Printf("[guard-config] reload failed: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[guard-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *GuardConfigHolder) Current() GuardConfig {
	return h.current.Load().(GuardConfig)
}

func unmarshalGuard(v *viper.Viper) (GuardConfig, error) {
	var cfg GuardConfig
	if err := v.UnmarshalKey("guard", &cfg); err != nil {
		return GuardConfig{}, err
	}
	if len(cfg.RateLimits) == 0 {
		cfg.RateLimits = DefaultGuardConfig().RateLimits
	}
	if err := validateGuardConfig(cfg); err != nil {
		return GuardConfig{}, err
	}
	return cfg, nil
}

func validateGuardConfig(cfg GuardConfig) error {
	for action, limit := range cfg.RateLimits {
		if limit.MaxRequests <= 0 || limit.WindowSeconds <= 0 {
			return errors.New("guard config: rate limit for " + action + " must be positive")
		}
	}
	if cfg.LockoutSeconds <= 0 {
		return errors.New("guard config: lockoutSeconds must be positive")
	}
	if cfg.MaxCreditsPerDay <= 0 || cfg.MaxGenerationsPerHour <= 0 {
		return errors.New("guard config: abuse ceilings must be positive")
	}
	return nil
}
