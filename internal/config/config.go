package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups shared by the agent and the
// calculation service; each binary reads the sections it needs.
type Config struct {
	Agent   AgentConfig   `mapstructure:"agent"   validate:"required"`
	Server  ServerConfig  `mapstructure:"server"  validate:"required"`
	Storage StorageConfig `mapstructure:"storage" validate:"required"`
	Sync    SyncConfig    `mapstructure:"sync"    validate:"required"`
	Network NetworkConfig `mapstructure:"network" validate:"required"`
	Remote  RemoteConfig  `mapstructure:"remote"  validate:"required"`
	Auth    AuthConfig    `mapstructure:"auth"`
}

// AgentConfig contains the settings for the device agent (cmd/syncd).
type AgentConfig struct {
	ListenAddr string `mapstructure:"listen_addr" validate:"required,hostname_port"`
	DataDir    string `mapstructure:"data_dir"    validate:"required"`
	LogLevel   string `mapstructure:"log_level"   validate:"required,oneof=debug info warn error"`
}

// ServerConfig contains the settings for the calculation service (cmd/server).
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// RateLimitRPS is the sustained per-client request rate; RateLimitBurst
	// is the extra headroom a client may spend at once.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"   validate:"required,gt=0"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst" validate:"required,gte=1"`
}

// StorageConfig bounds the agent's durable task store.
type StorageConfig struct {
	MaxBytes      int64         `mapstructure:"max_bytes"      validate:"required,gt=0"`
	RetentionTTL  time.Duration `mapstructure:"retention_ttl"  validate:"required,gt=0"`
	TargetRatio   float64       `mapstructure:"target_ratio"   validate:"required,gt=0,lte=1"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"required,gt=0"`
}

// SyncConfig tunes the agent's task processor.
type SyncConfig struct {
	Workers        int           `mapstructure:"workers"         validate:"required,gte=1"`
	MaxRetries     int           `mapstructure:"max_retries"     validate:"gte=0"`
	BaseDelay      time.Duration `mapstructure:"base_delay"      validate:"required,gt=0"`
	MaxDelay       time.Duration `mapstructure:"max_delay"       validate:"required,gt=0"`
	ExecuteTimeout time.Duration `mapstructure:"execute_timeout" validate:"required,gt=0"`
}

// NetworkConfig tunes the agent's connectivity monitor.
type NetworkConfig struct {
	ProbeURL      string        `mapstructure:"probe_url"      validate:"required,url"`
	ProbeInterval time.Duration `mapstructure:"probe_interval" validate:"required,gt=0"`
	Debounce      time.Duration `mapstructure:"debounce"       validate:"gte=0"`
}

// RemoteConfig points the agent at the calculation service.
type RemoteConfig struct {
	BaseURL     string        `mapstructure:"base_url"     validate:"required,url"`
	Timeout     time.Duration `mapstructure:"timeout"      validate:"required,gt=0"`
	BearerToken string        `mapstructure:"bearer_token"`
}

// AuthConfig contains the calculation service's operator authentication
// settings. The agent never reads this section, so its fields validate
// only when set; cmd/server rejects an empty section at startup.
type AuthConfig struct {
	// AdminKeyHash is the bcrypt hash of the operator admin key exchanged
	// for bearer tokens at /api/v1/auth/token.
	AdminKeyHash string `mapstructure:"admin_key_hash"`

	// TokenSecret signs the HS256 bearer tokens.
	TokenSecret string `mapstructure:"token_secret" validate:"omitempty,min=32"`

	// TokenLifetimeMinutes bounds how long a minted token stays valid.
	TokenLifetimeMinutes int `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
}
