// Package config loads the echem configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport kinds.
const (
	KindSerial  = "serial"
	KindGPIB    = "gpib"
	KindSPJS    = "spjs"
	KindConsole = "console"
)

type Config struct {
	// Debug logs every instrument command and reply.
	Debug bool `yaml:"debug"`

	Transport TransportConfig `yaml:"transport"`
	DataDir   string          `yaml:"data_dir"`
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Redis     RedisConfig     `yaml:"redis"`
}

type TransportConfig struct {
	Kind        string        `yaml:"kind"`
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// Terminator is one of lf, cr or crlf.
	Terminator  string `yaml:"terminator"`
	GPIBAddress int    `yaml:"gpib_address"`
	SPJSURL     string `yaml:"spjs_url"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type RedisConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	Channel    string `yaml:"channel"`
	HistoryLen int64  `yaml:"history_len"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Transport: TransportConfig{
			Kind:        KindConsole,
			Baud:        9600,
			ReadTimeout: 3 * time.Second,
			Terminator:  "lf",
			GPIBAddress: 10,
			SPJSURL:     "ws://localhost:8989/ws",
		},
		DataDir: "data",
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			Channel:    "echem:samples",
			HistoryLen: 10000,
		},
	}
}

// Load reads path and merges it over Default. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	t := c.Transport
	switch t.Kind {
	case KindConsole:
	case KindSerial, KindGPIB:
		if t.Port == "" {
			return fmt.Errorf("transport.port is required for %s", t.Kind)
		}
	case KindSPJS:
		if t.SPJSURL == "" || t.Port == "" {
			return errors.New("transport.spjs_url and transport.port are required for spjs")
		}
	default:
		return fmt.Errorf("unknown transport.kind %q", t.Kind)
	}

	if t.Kind == KindGPIB && (t.GPIBAddress < 0 || t.GPIBAddress > 30) {
		return fmt.Errorf("transport.gpib_address %d out of range 0-30", t.GPIBAddress)
	}
	if t.Baud <= 0 {
		return fmt.Errorf("invalid transport.baud %d", t.Baud)
	}
	if t.ReadTimeout <= 0 {
		return fmt.Errorf("invalid transport.read_timeout %s", t.ReadTimeout)
	}
	if _, err := t.TerminatorString(); err != nil {
		return err
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log.format %q", c.Log.Format)
	}

	if c.Redis.Enabled && (c.Redis.Addr == "" || c.Redis.Channel == "") {
		return errors.New("redis.addr and redis.channel are required when redis is enabled")
	}
	return nil
}

// TerminatorString returns the line terminator bytes.
func (t TransportConfig) TerminatorString() (string, error) {
	switch strings.ToLower(t.Terminator) {
	case "", "lf":
		return "\n", nil
	case "cr":
		return "\r", nil
	case "crlf":
		return "\r\n", nil
	}
	return "", fmt.Errorf("unknown transport.terminator %q", t.Terminator)
}
