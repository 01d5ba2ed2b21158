// Package config holds the echo server's startup configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidPort is returned for ports that are not integers in 0..65535.
var ErrInvalidPort = errors.New("invalid port")

const (
	DefaultHost          = "127.0.0.1"
	DefaultPort          = 54321
	DefaultWebSocketPort = 54322
	DefaultBacklog       = 1
	DefaultBufferSize    = 1024
)

type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Echo      EchoConfig      `yaml:"echo"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ListenConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Backlog int    `yaml:"backlog"`
}

type WebSocketConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// EchoConfig controls a single echo session.
// A zero timeout blocks indefinitely.
type EchoConfig struct {
	BufferSize   int           `yaml:"buffer_size"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig selects the slog handler. An empty format picks the console
// handler on a terminal and text otherwise.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Listen: ListenConfig{
			Host:    DefaultHost,
			Port:    DefaultPort,
			Backlog: DefaultBacklog,
		},
		WebSocket: WebSocketConfig{
			Host: DefaultHost,
			Port: DefaultWebSocketPort,
		},
		Echo: EchoConfig{
			BufferSize: DefaultBufferSize,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML file on top of Default. Keys missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges. Port 0 is accepted and picks an ephemeral port.
func (c *Config) Validate() error {
	if err := checkPort(c.Listen.Port); err != nil {
		return fmt.Errorf("listen.port: %w", err)
	}
	if c.Listen.Backlog < 1 {
		return fmt.Errorf("listen.backlog must be at least 1, got %d", c.Listen.Backlog)
	}
	if c.WebSocket.Enabled {
		if err := checkPort(c.WebSocket.Port); err != nil {
			return fmt.Errorf("websocket.port: %w", err)
		}
	}
	if c.Echo.BufferSize < 1 {
		return fmt.Errorf("echo.buffer_size must be positive, got %d", c.Echo.BufferSize)
	}
	if c.Echo.ReadTimeout < 0 || c.Echo.WriteTimeout < 0 {
		return errors.New("echo timeouts must not be negative")
	}
	return nil
}

// Addr returns the TCP listen address in host:port form.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Listen.Host, strconv.Itoa(c.Listen.Port))
}

// WebSocketAddr returns the WebSocket listen address in host:port form.
func (c *Config) WebSocketAddr() string {
	return net.JoinHostPort(c.WebSocket.Host, strconv.Itoa(c.WebSocket.Port))
}

// ParsePort parses a decimal port number.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w %q: not an integer", ErrInvalidPort, s)
	}
	if err := checkPort(port); err != nil {
		return 0, err
	}
	return port, nil
}

func checkPort(port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("%w %d: out of range", ErrInvalidPort, port)
	}
	return nil
}
