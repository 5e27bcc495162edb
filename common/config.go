package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Port int `koanf:"port"`
}

// StorageConfig holds the durable store settings.
type StorageConfig struct {
	DBPath string `koanf:"db_path"`
}

// EngineConfig holds the orchestration engine tunables.
type EngineConfig struct {
	// ContextWindow bounds how many recent messages are loaded per turn.
	ContextWindow int `koanf:"context_window"`
	// MaxAttempts bounds retries of the same executor on transient failures.
	MaxAttempts int `koanf:"max_attempts"`
	// ExecutorTimeout bounds each external executor invocation.
	ExecutorTimeout time.Duration `koanf:"executor_timeout"`
	// RetryInterval is the initial backoff between retry attempts.
	RetryInterval time.Duration `koanf:"retry_interval"`
	// RiskThreshold is the lowest risk level that requires explicit approval:
	// "low", "medium" or "high".
	RiskThreshold string `koanf:"risk_threshold"`
	// TicketTTL is how long an approval ticket stays resumable before it is
	// treated as expired.
	TicketTTL time.Duration `koanf:"ticket_ttl"`
}

// CompletionConfig holds the text-completion provider settings.
type CompletionConfig struct {
	Model       string  `koanf:"model"`
	APIKey      string  `koanf:"api_key"`
	BaseURL     string  `koanf:"base_url"`
	Temperature float32 `koanf:"temperature"`
}

// IndexConfig holds the embedded knowledge index settings.
type IndexConfig struct {
	Path           string `koanf:"path"`
	EmbeddingModel string `koanf:"embedding_model"`
}

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Storage    StorageConfig    `koanf:"storage"`
	Engine     EngineConfig     `koanf:"engine"`
	Completion CompletionConfig `koanf:"completion"`
	Index      IndexConfig      `koanf:"index"`
}

func DefaultConfig() Config {
	return Config{
		Server:  ServerConfig{Port: 8855},
		Storage: StorageConfig{},
		Engine: EngineConfig{
			ContextWindow:   50,
			MaxAttempts:     3,
			ExecutorTimeout: 60 * time.Second,
			RetryInterval:   500 * time.Millisecond,
			RiskThreshold:   "medium",
			TicketTTL:       24 * time.Hour,
		},
		Completion: CompletionConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
		},
		Index: IndexConfig{
			EmbeddingModel: "text-embedding-3-small",
		},
	}
}

// LoadConfig builds the effective configuration from defaults, an optional
// YAML file and CONDUCTOR_-prefixed environment variables, in that order of
// precedence. A missing config file is not an error; a malformed one is.
func LoadConfig(configPath string) (Config, error) {
	cfg := DefaultConfig()
	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	// CONDUCTOR_SERVER_PORT -> server.port, etc. Section names contain no
	// underscores, so only the first underscore is a separator.
	err := k.Load(env.Provider("CONDUCTOR_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "CONDUCTOR_"))
		return strings.Replace(s, "_", ".", 1)
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("failed to load environment config: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Storage.DBPath == "" {
		dataHome, err := GetConductorDataHome()
		if err != nil {
			return Config{}, err
		}
		cfg.Storage.DBPath = filepath.Join(dataHome, "conductor.db")
	}
	if cfg.Index.Path == "" {
		dataHome, err := GetConductorDataHome()
		if err != nil {
			return Config{}, err
		}
		cfg.Index.Path = filepath.Join(dataHome, "index")
	}

	return cfg, nil
}
