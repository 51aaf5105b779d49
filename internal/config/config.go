// Package config loads the settings the demo binaries run with: listen
// address, transport toggles and logging. Settings live in a TOML file; a
// missing file just means defaults.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
)

// EnvConfigPath names the environment variable that overrides the config
// file location.
const EnvConfigPath = "GAMEWIRE_CONFIG"

// DefaultPath is where Load looks when EnvConfigPath is unset.
const DefaultPath = "gamewire.toml"

// Config is the root of the TOML file.
type Config struct {
	Server ServerConfig `toml:"server"`
	Mem    MemConfig    `toml:"mem"`
	Log    LogConfig    `toml:"log"`
}

// ServerConfig configures the stream server.
type ServerConfig struct {
	// Addr is the listen address for framed traffic.
	Addr string `toml:"addr"`

	// EnableWebSocket lets WebSocket clients share the same port.
	EnableWebSocket bool `toml:"enable_websocket"`
}

// MemConfig configures the in-process transport.
type MemConfig struct {
	// AcceptQueueCapacity bounds each listener's accept queue.
	AcceptQueueCapacity int `toml:"accept_queue_capacity"`
}

// LogConfig configures diagnostics output.
type LogConfig struct {
	// Level is a logrus level name: debug, info, warn, error.
	Level string `toml:"level"`

	// Format selects "text" or "json" output.
	Format string `toml:"format"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8880",
			EnableWebSocket: true,
		},
		Mem: MemConfig{
			AcceptQueueCapacity: 100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the config file named by EnvConfigPath, falling back to
// DefaultPath and then to Default when neither exists. A file that exists
// but fails to parse is an error.
func Load() (Config, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return LoadFile(path)
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		return LoadFile(DefaultPath)
	}
	return Default(), nil
}

// LoadFile reads one specific config file. Keys the file omits keep their
// defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: load %s: %w", path, err)
	}
	return cfg, nil
}

// NewLogger builds a logger from the Log section.
func (c Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("config: log level %q: %w", c.Log.Level, err)
	}
	log := logrus.New()
	log.SetLevel(level)
	if c.Log.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log, nil
}
