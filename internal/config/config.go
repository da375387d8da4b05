// Package config loads runtime settings from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/platforms/process"
	"gopkg.in/yaml.v3"
)

// Store kinds.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// Recognizer kinds.
const (
	RecognizerRegex = "regex"
	RecognizerLLM   = "llm"
)

// Config is the root of parley.yaml.
type Config struct {
	Bot        string           `yaml:"bot"`
	LogLevel   string           `yaml:"log_level"`
	Server     ServerConfig     `yaml:"server"`
	Runtime    RuntimeConfig    `yaml:"runtime"`
	Store      StoreConfig      `yaml:"store"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Process    ProcessConfig    `yaml:"process"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type RuntimeConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

type StoreConfig struct {
	Kind   string      `yaml:"kind"`
	Redis  RedisConfig `yaml:"redis"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	// EncryptionKey is a hex or base64 AES-256 key. Snapshots are encrypted when set.
	EncryptionKey string `yaml:"encryption_key"`
	// PIIPatterns mask matching variable keys before snapshots are stored.
	PIIPatterns []string `yaml:"pii_patterns"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
	// Lock enables the distributed session lock, for several replicas sharing the store.
	Lock bool `yaml:"lock"`
}

type RecognizerConfig struct {
	Kind            string        `yaml:"kind"`
	Model           string        `yaml:"model"`
	Threshold       float64       `yaml:"threshold"`
	LifespanPolicy  string        `yaml:"lifespan_policy"`
	VariableTimeout time.Duration `yaml:"variable_timeout"`
}

// ProcessConfig lists the local commands bots may call as Process actions.
type ProcessConfig struct {
	Dir   string         `yaml:"dir"`
	Tools []process.Tool `yaml:"tools"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{
		LogLevel: "info",
		Server:   ServerConfig{Port: 5000, ShutdownTimeout: 5 * time.Second},
		Runtime:  RuntimeConfig{Workers: 4, QueueSize: 64},
		Store: StoreConfig{
			Kind:  StoreMemory,
			Redis: RedisConfig{Addr: "localhost:6379", Prefix: "parley:session:"},
		},
		Recognizer: RecognizerConfig{
			Kind:            RecognizerRegex,
			Threshold:       0.5,
			LifespanPolicy:  "max",
			VariableTimeout: 2 * time.Second,
		},
	}
	cfg.Store.SQLite.Path = "parley.db"
	return cfg
}

// Load reads path over the defaults. A missing file yields the defaults
// unless required is set.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate reports inconsistent settings.
func (c *Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port %d", c.Server.Port))
	}
	if c.Runtime.Workers <= 0 || c.Runtime.QueueSize <= 0 {
		errs = append(errs, errors.New("workers and queue_size must be positive"))
	}
	switch c.Store.Kind {
	case StoreMemory, StoreRedis, StoreSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown store kind '%s'", c.Store.Kind))
	}
	switch c.Recognizer.Kind {
	case RecognizerRegex, RecognizerLLM:
	default:
		errs = append(errs, fmt.Errorf("unknown recognizer kind '%s'", c.Recognizer.Kind))
	}
	switch c.Recognizer.LifespanPolicy {
	case "max", "overwrite":
	default:
		errs = append(errs, fmt.Errorf("unknown lifespan policy '%s'", c.Recognizer.LifespanPolicy))
	}
	seen := make(map[string]bool)
	for _, t := range c.Process.Tools {
		if t.Name == "" || t.Command == "" {
			errs = append(errs, fmt.Errorf("process tool '%s' needs a name and a command", t.Name))
		}
		if seen[t.Name] {
			errs = append(errs, fmt.Errorf("duplicate process tool '%s'", t.Name))
		}
		seen[t.Name] = true
	}
	return errors.Join(errs...)
}
