package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Gateway GatewayConfig `yaml:"gateway"`
	Monitor MonitorConfig `yaml:"monitor"`
	Mock    MockConfig    `yaml:"mock"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig is the HTTP/WebSocket surface for UI clients.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AuthToken      string   `yaml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxConnections int      `yaml:"max_connections"`
}

// GatewayConfig is the endpoint browser extension agents connect to.
type GatewayConfig struct {
	Port           int           `yaml:"port"`
	Host           string        `yaml:"host"`
	Ack            string        `yaml:"ack"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxConnections int           `yaml:"max_connections"`
	ExtensionIDs   []string      `yaml:"extension_ids"`
}

type MonitorConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// MockConfig drives the simulated audio subsystem used with --mock.
type MockConfig struct {
	Tick        time.Duration `yaml:"tick"`
	MaxSessions int           `yaml:"max_sessions"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		Gateway: GatewayConfig{
			Port:         8765,
			Host:         "127.0.0.1",
			Ack:          "received",
			PingInterval: 30 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Monitor: MonitorConfig{
			PollInterval: 200 * time.Millisecond,
		},
		Mock: MockConfig{
			Tick:        1500 * time.Millisecond,
			MaxSessions: 6,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Load reads path over the defaults. A missing file is an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultConfig(), nil
	}
	return cfg, err
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		errs = append(errs, fmt.Errorf("gateway.port %d out of range", c.Gateway.Port))
	}
	if c.Gateway.Ack == "" {
		errs = append(errs, errors.New("gateway.ack must not be empty"))
	}
	if c.Gateway.PingInterval < 0 {
		errs = append(errs, errors.New("gateway.ping_interval must not be negative"))
	}
	if c.Monitor.PollInterval <= 0 {
		errs = append(errs, errors.New("monitor.poll_interval must be positive"))
	}
	if c.Mock.Tick <= 0 {
		errs = append(errs, errors.New("mock.tick must be positive"))
	}
	return errors.Join(errs...)
}
