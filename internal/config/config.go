package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to read .env", "err", err)
	}
	cfg, err := parse(env.Options{})
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	return cfg, nil
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, ErrConfig(err.Error())
	}
	if cfg.DiscordToken == "" {
		return nil, ErrConfig("DISCORD_TOKEN required")
	}
	if cfg.DefaultVolume < 0 || cfg.DefaultVolume > 100 {
		return nil, ErrConfig("DEFAULT_VOLUME must be between 0 and 100")
	}
	if cfg.MaxQueueSize <= 0 {
		return nil, ErrConfig("MAX_QUEUE_SIZE must be positive")
	}
	if cfg.DisconnectTimeout <= 0 {
		return nil, ErrConfig("DISCONNECT_TIMEOUT must be positive")
	}
	return &cfg, nil
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
