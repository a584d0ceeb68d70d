package config

import (
	"errors"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := parse(env.Options{Environment: map[string]string{"DISCORD_TOKEN": "tok"}})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DisconnectTimeout != 5*time.Minute || cfg.DefaultVolume != 80 || cfg.MaxQueueSize != 500 || !cfg.RequeueOnRepeat {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.DataDir != "./data" || cfg.LogFormat != "console" || cfg.LyricsCacheTTL != time.Hour {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestParseOverrides(t *testing.T) {
	cfg, err := parse(env.Options{Environment: map[string]string{
		"DISCORD_TOKEN":      "tok",
		"DISCONNECT_TIMEOUT": "30s",
		"REQUEUE_ON_REPEAT":  "false",
		"DEFAULT_VOLUME":     "55",
	}})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DisconnectTimeout != 30*time.Second || cfg.RequeueOnRepeat || cfg.DefaultVolume != 55 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestParseErrors(t *testing.T) {
	tests := map[string]map[string]string{
		"missing token": {},
		"bad volume":    {"DISCORD_TOKEN": "tok", "DEFAULT_VOLUME": "101"},
		"bad duration":  {"DISCORD_TOKEN": "tok", "DISCONNECT_TIMEOUT": "soon"},
		"zero queue":    {"DISCORD_TOKEN": "tok", "MAX_QUEUE_SIZE": "0"},
	}
	for name, envs := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parse(env.Options{Environment: envs})
			var ce ErrConfig
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want ErrConfig", err)
			}
		})
	}
}
