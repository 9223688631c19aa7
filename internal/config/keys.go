package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "DECKSWITCH_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "steam.user", typ: kString, env: "DECKSWITCH_STEAM_USER",
		apply:   func(cfg *Config, v any) { cfg.Steam.User = v.(string) },
		extract: func(cfg Config) any { return cfg.Steam.User },
	},
	{
		key: "steam.home", typ: kString, env: "DECKSWITCH_STEAM_HOME",
		apply:   func(cfg *Config, v any) { cfg.Steam.Home = v.(string) },
		extract: func(cfg Config) any { return cfg.Steam.Home },
	},
	{
		key: "steam.binary", typ: kString, env: "DECKSWITCH_STEAM_BINARY",
		apply:   func(cfg *Config, v any) { cfg.Steam.Binary = v.(string) },
		extract: func(cfg Config) any { return cfg.Steam.Binary },
	},
	{
		key: "launch.pending_path", typ: kString, env: "DECKSWITCH_LAUNCH_PENDING_PATH",
		apply:   func(cfg *Config, v any) { cfg.Launch.PendingPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Launch.PendingPath },
	},
	{
		key: "launch.delay_seconds", typ: kInt, env: "DECKSWITCH_LAUNCH_DELAY_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Launch.DelaySeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Launch.DelaySeconds },
	},
	{
		key: "launch.watch_login", typ: kBool, env: "DECKSWITCH_LAUNCH_WATCH_LOGIN",
		apply:   func(cfg *Config, v any) { cfg.Launch.WatchLogin = v.(bool) },
		extract: func(cfg Config) any { return cfg.Launch.WatchLogin },
	},
	{
		key: "restart.settle_seconds", typ: kInt, env: "DECKSWITCH_RESTART_SETTLE_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Restart.SettleSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Restart.SettleSeconds },
	},
	{
		key: "storage.data_dir", typ: kString, env: "DECKSWITCH_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "DECKSWITCH_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
