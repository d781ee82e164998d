// Package config loads the sketchduel client configuration from YAML.
//
// Values of the form ${VAR} are expanded from the environment before
// parsing. Optional .env files are loaded first with LoadEnvFiles.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ClientConfig is the root configuration for a sketchduel client.
type ClientConfig struct {
	Player    PlayerConfig    `yaml:"player"`
	Server    ServerConfig    `yaml:"server"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Requests  RequestsConfig  `yaml:"requests"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Errors    ErrorsConfig    `yaml:"errors"`
	Recovery  RecoveryConfig  `yaml:"recovery"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// PlayerConfig holds the default player identity for the CLI.
type PlayerConfig struct {
	Name string `yaml:"name"`
}

// ServerConfig describes the game server endpoint.
type ServerConfig struct {
	URL              string        `yaml:"url"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	BufferSize       int           `yaml:"buffer_size"`
}

// ReconnectConfig tunes automatic reconnection.
type ReconnectConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	Multiplier  float64       `yaml:"multiplier"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	HistorySize int           `yaml:"history_size"`
}

// RequestsConfig tunes per-request resilience.
type RequestsConfig struct {
	Timeout          time.Duration `yaml:"timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	BaseDelay        time.Duration `yaml:"base_delay"`
	MaxDelay         time.Duration `yaml:"max_delay"`
	Multiplier       float64       `yaml:"multiplier"`
	Jitter           float64       `yaml:"jitter"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`
}

// OptimizerConfig tunes batching, compression, queueing and pooling.
type OptimizerConfig struct {
	BatchSize            int           `yaml:"batch_size"`
	BatchDelay           time.Duration `yaml:"batch_delay"`
	CompressionThreshold int           `yaml:"compression_threshold"`
	CompressionRatio     float64       `yaml:"compression_ratio"`
	MaxDecompressedSize  int64         `yaml:"max_decompressed_size"`
	QueueSize            int           `yaml:"queue_size"`
	QueueInterval        time.Duration `yaml:"queue_interval"`
	PoolSize             int           `yaml:"pool_size"`
	PoolKeepAlive        time.Duration `yaml:"pool_keep_alive"`
}

// ErrorsConfig tunes error notification throttling.
type ErrorsConfig struct {
	ThrottleThreshold int           `yaml:"throttle_threshold"`
	ThrottleWindow    time.Duration `yaml:"throttle_window"`
}

// RecoveryConfig tunes automated recovery.
type RecoveryConfig struct {
	ActionDelay time.Duration `yaml:"action_delay"`
	Staleness   time.Duration `yaml:"staleness"`
	SnapshotKey string        `yaml:"snapshot_key"`
}

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

// StorageConfig selects where recovery snapshots are persisted.
type StorageConfig struct {
	Backend  string       `yaml:"backend"`
	Badger   BadgerConfig `yaml:"badger"`
	Postgres DBConfig     `yaml:"postgres"`
}

// BadgerConfig holds local database settings.
type BadgerConfig struct {
	Path       string        `yaml:"path"`
	SyncWrites bool          `yaml:"sync_writes"`
	TTL        time.Duration `yaml:"ttl"`
	GCInterval time.Duration `yaml:"gc_interval"`
}

// DBConfig holds connection settings for a single database.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoadEnvFiles loads KEY=VALUE pairs from the given .env files into the
// process environment. Missing files are skipped and variables that are
// already set win.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}
	return nil
}

// Load reads and parses the config file at path.
func Load(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML config data after expanding ${VAR} references.
func Parse(data []byte) (*ClientConfig, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg ClientConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// LoadWithDefaults loads the config and fills unset fields.
func LoadWithDefaults(path string) (*ClientConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads the config, applies defaults and validates it.
func LoadAndValidate(path string) (*ClientConfig, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Default returns a config with every default applied and no file read.
func Default() *ClientConfig {
	cfg := &ClientConfig{}
	cfg.applyDefaults()
	return cfg
}
