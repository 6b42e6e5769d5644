// Package config loads stash configuration from an optional config file and
// the environment.
//
// Precedence, lowest to highest: built-in defaults, the config file
// ($STASH_CONFIG, or ~/.config/stash/config.toml when present), then
// STASH_* environment variables (STASH_CACHE_ROOT, STASH_LOCK_TIMEOUT,
// STASH_HUB_ENDPOINT, STASH_HUB_TOKEN).
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/skyline93/stash/internal/backend/hub"
)

// Config holds everything the cache and the backend drivers need. Per-backend
// credential discovery beyond this (AWS environment variables, ...) is
// delegated to the drivers.
type Config struct {
	CacheRoot   string        `mapstructure:"cache_root"`
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
	HubEndpoint string        `mapstructure:"hub_endpoint"`
	HubToken    string        `mapstructure:"hub_token"`
}

// Load reads the configuration. file overrides the default config file
// location; pass "" for the default lookup.
func Load(file string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STASH")
	v.AutomaticEnv()

	defaultRoot, err := defaultCacheRoot()
	if err != nil {
		return Config{}, err
	}
	v.SetDefault("cache_root", defaultRoot)
	v.SetDefault("lock_timeout", "10m")
	v.SetDefault("hub_endpoint", hub.DefaultEndpoint)
	v.SetDefault("hub_token", os.Getenv("HF_TOKEN"))

	if file == "" {
		file = os.Getenv("STASH_CONFIG")
	}
	if file == "" {
		if home, err := os.UserHomeDir(); err == nil {
			candidate := filepath.Join(home, ".config", "stash", "config.toml")
			if _, err := os.Stat(candidate); err == nil {
				file = candidate
			}
		}
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", file)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	return cfg, nil
}

func defaultCacheRoot() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", errors.Wrap(err, "locate user cache directory")
	}
	return filepath.Join(base, "stash"), nil
}
