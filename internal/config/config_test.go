package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
server:
  port: 9090
  auth_token: "s3cret"
  allowed_origins:
    - "http://localhost:5173"
gateway:
  ack: "ok"
  extension_ids: ["abcdef"]
monitor:
  poll_interval: 50ms
log:
  level: debug
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.AuthToken != "s3cret" {
		t.Errorf("Server.AuthToken = %q", cfg.Server.AuthToken)
	}
	if len(cfg.Server.AllowedOrigins) != 1 {
		t.Errorf("Server.AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Gateway.Ack != "ok" {
		t.Errorf("Gateway.Ack = %q, want ok", cfg.Gateway.Ack)
	}
	if len(cfg.Gateway.ExtensionIDs) != 1 || cfg.Gateway.ExtensionIDs[0] != "abcdef" {
		t.Errorf("Gateway.ExtensionIDs = %v", cfg.Gateway.ExtensionIDs)
	}
	if cfg.Monitor.PollInterval != 50*time.Millisecond {
		t.Errorf("Monitor.PollInterval = %v, want 50ms", cfg.Monitor.PollInterval)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}

	// Defaults should still be applied for unspecified fields.
	if cfg.Gateway.Port != 8765 {
		t.Errorf("Gateway.Port = %d, want default 8765", cfg.Gateway.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want default", cfg.Server.Host)
	}
	if cfg.Mock.MaxSessions != 6 {
		t.Errorf("Mock.MaxSessions = %d, want default 6", cfg.Mock.MaxSessions)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() on missing file should return error")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want default 8080", cfg.Server.Port)
	}
	if cfg.Gateway.Ack != "received" {
		t.Errorf("Gateway.Ack = %q, want default received", cfg.Gateway.Ack)
	}
	if cfg.Monitor.PollInterval != 200*time.Millisecond {
		t.Errorf("Monitor.PollInterval = %v, want 200ms", cfg.Monitor.PollInterval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(cfgPath, []byte(":::not valid yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(cfgPath); err == nil {
		t.Fatal("Load() with invalid YAML should return error")
	}
	if _, err := LoadOrDefault(cfgPath); err == nil {
		t.Fatal("LoadOrDefault() with invalid YAML should return error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"server port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"gateway port", func(c *Config) { c.Gateway.Port = 70000 }, "gateway.port"},
		{"empty ack", func(c *Config) { c.Gateway.Ack = "" }, "gateway.ack"},
		{"poll interval", func(c *Config) { c.Monitor.PollInterval = 0 }, "monitor.poll_interval"},
		{"mock tick", func(c *Config) { c.Mock.Tick = -time.Second }, "mock.tick"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}
