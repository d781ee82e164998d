package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
player:
  name: Ann
server:
  url: wss://play.example.com/ws
  ping_interval: 10s
reconnect:
  max_attempts: 5
  base_delay: 500ms
storage:
  backend: badger
  badger:
    path: /tmp/sketchduel
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Player.Name != "Ann" {
		t.Errorf("Player.Name = %q, want %q", cfg.Player.Name, "Ann")
	}
	if cfg.Server.URL != "wss://play.example.com/ws" {
		t.Errorf("Server.URL = %q, want %q", cfg.Server.URL, "wss://play.example.com/ws")
	}
	if cfg.Server.PingInterval != 10*time.Second {
		t.Errorf("Server.PingInterval = %v, want %v", cfg.Server.PingInterval, 10*time.Second)
	}
	if cfg.Reconnect.BaseDelay != 500*time.Millisecond {
		t.Errorf("Reconnect.BaseDelay = %v, want %v", cfg.Reconnect.BaseDelay, 500*time.Millisecond)
	}
	if cfg.Storage.Badger.Path != "/tmp/sketchduel" {
		t.Errorf("Storage.Badger.Path = %q, want %q", cfg.Storage.Badger.Path, "/tmp/sketchduel")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
storage:
  backend: postgres
  postgres:
    host: localhost
    name: sketchduel
    user: bot
    password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Storage.Postgres.Password != "secret123" {
		t.Errorf("Storage.Postgres.Password = %q, want %q", cfg.Storage.Postgres.Password, "secret123")
	}
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("SKETCHDUEL_TEST_URL=wss://env.example.com/ws\n"), 0644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("SKETCHDUEL_TEST_URL", "")
	os.Unsetenv("SKETCHDUEL_TEST_URL")

	if err := LoadEnvFiles(filepath.Join(dir, "missing.env"), envPath); err != nil {
		t.Fatalf("LoadEnvFiles failed: %v", err)
	}

	cfg, err := Load(writeTempFile(t, "server:\n  url: ${SKETCHDUEL_TEST_URL}\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.URL != "wss://env.example.com/ws" {
		t.Errorf("Server.URL = %q, want %q", cfg.Server.URL, "wss://env.example.com/ws")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "player:\n  name: Ann\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Server.URL != DefaultServerURL {
		t.Errorf("Server.URL = %q, want default %q", cfg.Server.URL, DefaultServerURL)
	}
	if cfg.Reconnect.MaxAttempts != DefaultReconnectAttempts {
		t.Errorf("Reconnect.MaxAttempts = %d, want default %d", cfg.Reconnect.MaxAttempts, DefaultReconnectAttempts)
	}
	if cfg.Reconnect.MaxDelay != DefaultReconnectMaxDelay {
		t.Errorf("Reconnect.MaxDelay = %v, want default %v", cfg.Reconnect.MaxDelay, DefaultReconnectMaxDelay)
	}
	if cfg.Errors.ThrottleWindow != DefaultThrottleWindow {
		t.Errorf("Errors.ThrottleWindow = %v, want default %v", cfg.Errors.ThrottleWindow, DefaultThrottleWindow)
	}
	if cfg.Recovery.Staleness != DefaultStaleness {
		t.Errorf("Recovery.Staleness = %v, want default %v", cfg.Recovery.Staleness, DefaultStaleness)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Errorf("Storage.Backend = %q, want default %q", cfg.Storage.Backend, BackendMemory)
	}
	if cfg.Storage.Postgres.Port != DefaultDBPort {
		t.Errorf("Storage.Postgres.Port = %d, want default %d", cfg.Storage.Postgres.Port, DefaultDBPort)
	}
	if cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics.Path = %q, want default %q", cfg.Metrics.Path, DefaultMetricsPath)
	}
}

func TestLoadAndValidate(t *testing.T) {
	if _, err := LoadAndValidate(writeTempFile(t, "server:\n  url: http://example.com\n")); err == nil {
		t.Error("LoadAndValidate accepted an http URL")
	}
	if _, err := LoadAndValidate(writeTempFile(t, "server:\n  url: ws://example.com/ws\n")); err != nil {
		t.Errorf("LoadAndValidate unexpected error: %v", err)
	}
	if _, err := LoadAndValidate(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadAndValidate accepted a missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ClientConfig)
		wantErr string
	}{
		{
			name:    "defaults",
			mutate:  func(*ClientConfig) {},
			wantErr: "",
		},
		{
			name:    "bad scheme",
			mutate:  func(c *ClientConfig) { c.Server.URL = "https://example.com" },
			wantErr: `server.url scheme must be ws or wss, got "https"`,
		},
		{
			name:    "zero reconnect attempts",
			mutate:  func(c *ClientConfig) { c.Reconnect.MaxAttempts = -1 },
			wantErr: "reconnect.max_attempts must be >= 1",
		},
		{
			name: "base delay exceeds max",
			mutate: func(c *ClientConfig) {
				c.Reconnect.BaseDelay = time.Minute
				c.Reconnect.MaxDelay = time.Second
			},
			wantErr: "reconnect.base_delay (1m0s) cannot exceed max_delay (1s)",
		},
		{
			name:    "jitter out of range",
			mutate:  func(c *ClientConfig) { c.Requests.Jitter = 2 },
			wantErr: "requests.jitter must be between 0 and 1, got 2",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *ClientConfig) { c.Storage.Backend = "redis" },
			wantErr: `storage.backend must be one of [memory badger postgres], got "redis"`,
		},
		{
			name:    "postgres missing host",
			mutate:  func(c *ClientConfig) { c.Storage.Backend = BackendPostgres },
			wantErr: "storage.postgres.host is required",
		},
		{
			name: "postgres min_conns exceeds max_conns",
			mutate: func(c *ClientConfig) {
				c.Storage.Backend = BackendPostgres
				c.Storage.Postgres = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 2, MinConns: 5}
			},
			wantErr: "storage.postgres.min_conns (5) cannot exceed max_conns (2)",
		},
		{
			name:    "bad log level",
			mutate:  func(c *ClientConfig) { c.Log.Level = "loud" },
			wantErr: `log.level must be one of [debug info warn error], got "loud"`,
		},
		{
			name: "metrics port out of range",
			mutate: func(c *ClientConfig) {
				c.Metrics.Enabled = true
				c.Metrics.Port = 70000
			},
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestConnection(t *testing.T) {
	cfg := Default()
	cfg.Reconnect.MaxAttempts = 7
	cfg.Requests.BreakerThreshold = 9
	cfg.Optimizer.BatchSize = 3

	cc := cfg.Connection()
	if cc.Reconnect.MaxAttempts != 7 {
		t.Errorf("Reconnect.MaxAttempts = %d, want 7", cc.Reconnect.MaxAttempts)
	}
	if cc.Executor.Breaker.FailureThreshold != 9 {
		t.Errorf("Executor.Breaker.FailureThreshold = %d, want 9", cc.Executor.Breaker.FailureThreshold)
	}
	if cc.Optimizer.BatchSize != 3 {
		t.Errorf("Optimizer.BatchSize = %d, want 3", cc.Optimizer.BatchSize)
	}
	if len(cc.Optimizer.BatchTypes) == 0 {
		t.Error("Optimizer.BatchTypes lost the package defaults")
	}
	if cc.Optimizer.MaxDecompressedSize <= 0 {
		t.Error("Optimizer.MaxDecompressedSize lost the package default")
	}
	if cc.HistorySize != DefaultHistorySize {
		t.Errorf("HistorySize = %d, want %d", cc.HistorySize, DefaultHistorySize)
	}

	if got := cfg.Transport().URL; got != DefaultServerURL {
		t.Errorf("Transport().URL = %q, want %q", got, DefaultServerURL)
	}
	if got := cfg.Transport().Header.Get("User-Agent"); !strings.HasPrefix(got, "sketchduel/") {
		t.Errorf("Transport() User-Agent = %q, want sketchduel/ prefix", got)
	}
	if got := cfg.RecoveryConfig().SnapshotKey; got != DefaultSnapshotKey {
		t.Errorf("RecoveryConfig().SnapshotKey = %q, want %q", got, DefaultSnapshotKey)
	}
}

func TestLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		cfg := &ClientConfig{Log: LogConfig{Level: in}}
		if got := cfg.LogLevel(); got != want {
			t.Errorf("LogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
