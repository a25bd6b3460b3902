package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// calcsync.yaml file in the working directory. Environment variables take
// precedence over values from the config file, which takes precedence over
// the built-in defaults. Returns a populated Config struct or an error if
// loading or validation fails.
func Load() (*Config, error) {
	return load("")
}

// LoadFile behaves like Load but reads the given config file instead of
// searching the working directory. The file must exist.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is empty")
	}
	return load(path)
}

func load(configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("calcsync")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			// A missing file is fine; the defaults and environment cover it.
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Configure environment variables
	v.SetEnvPrefix("CALCSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without defaults are invisible to Unmarshal unless bound
	// explicitly, so bind every secret-bearing key here.
	bindEnvs := []struct {
		key    string
		envVar string
	}{
		{"auth.admin_key_hash", "CALCSYNC_AUTH_ADMIN_KEY_HASH"},
		{"auth.token_secret", "CALCSYNC_AUTH_TOKEN_SECRET"},
		{"remote.bearer_token", "CALCSYNC_REMOTE_BEARER_TOKEN"},
	}
	for _, env := range bindEnvs {
		if err := v.BindEnv(env.key, env.envVar); err != nil {
			return nil, fmt.Errorf("error binding environment variable %s: %w", env.envVar, err)
		}
	}

	// Unmarshal and validate
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("agent.listen_addr", "127.0.0.1:7070")
	v.SetDefault("agent.data_dir", "calcsync-data")
	v.SetDefault("agent.log_level", "info")

	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.rate_limit_rps", 1.0)
	v.SetDefault("server.rate_limit_burst", 10)

	v.SetDefault("storage.max_bytes", int64(10*1024*1024))
	v.SetDefault("storage.retention_ttl", 168*time.Hour)
	v.SetDefault("storage.target_ratio", 0.9)
	v.SetDefault("storage.sweep_interval", time.Hour)

	v.SetDefault("sync.workers", 1)
	v.SetDefault("sync.max_retries", 3)
	v.SetDefault("sync.base_delay", time.Second)
	v.SetDefault("sync.max_delay", 30*time.Second)
	v.SetDefault("sync.execute_timeout", 10*time.Second)

	v.SetDefault("network.probe_url", "http://localhost:8000/health/live")
	v.SetDefault("network.probe_interval", 5*time.Second)
	v.SetDefault("network.debounce", 2*time.Second)

	v.SetDefault("remote.base_url", "http://localhost:8000")
	v.SetDefault("remote.timeout", 10*time.Second)

	v.SetDefault("auth.token_lifetime_minutes", 60)
}
