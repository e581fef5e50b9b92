// Package config loads service configuration from built-in defaults, an
// optional YAML file, and environment variable overrides, in that
// precedence order (environment highest).
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// defaults is the built-in baseline configuration.
const defaults = `
server:
  addr: ":8080"
database:
  path: "data/sapiens.db"
model:
  provider: "openai"
  name: ""
  temperature: 0.7
  max_tokens: 4096
  timeout_seconds: 30
knowledge:
  enabled: false
  path: "data/knowledge"
  collection: "sapiens_knowledge"
logging:
  level: "info"
  format: "json"
orchestrator:
  strict_users: false
`

// Config is the full service configuration.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Database     DatabaseConfig     `koanf:"database"`
	Model        ModelConfig        `koanf:"model"`
	Knowledge    KnowledgeConfig    `koanf:"knowledge"`
	Logging      LoggingConfig      `koanf:"logging"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
}

type ServerConfig struct {
	Addr string `koanf:"addr"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// ModelConfig selects and tunes the text-generation backend. Provider is
// one of "openai", "anthropic" or "mock".
type ModelConfig struct {
	Provider       string  `koanf:"provider"`
	Name           string  `koanf:"name"`
	Temperature    float64 `koanf:"temperature"`
	MaxTokens      int64   `koanf:"max_tokens"`
	TimeoutSeconds int     `koanf:"timeout_seconds"`
}

type KnowledgeConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type OrchestratorConfig struct {
	StrictUsers bool `koanf:"strict_users"`
}

// Load builds the configuration. configPath may be empty; a missing file is
// not an error, the defaults plus environment stand in.
//
// Environment variables map section-first with a SAPIENS_ prefix:
//
//	SAPIENS_SERVER_ADDR       -> server.addr
//	SAPIENS_MODEL_PROVIDER    -> model.provider
//	SAPIENS_DATABASE_PATH     -> database.path
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider([]byte(defaults)), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load default config: %w", err)
	}

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file %s: %w", configPath, err)
			}
		} else if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("SAPIENS_", ".", func(s string) string {
		// SAPIENS_MODEL_MAX_TOKENS -> model.max_tokens
		lower := strings.ToLower(strings.TrimPrefix(s, "SAPIENS_"))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment overrides: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case "openai", "anthropic", "mock":
	default:
		return fmt.Errorf("model.provider must be openai, anthropic or mock, got %q", c.Model.Provider)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("model.temperature must be in [0, 2], got %v", c.Model.Temperature)
	}
	if c.Model.TimeoutSeconds <= 0 {
		return fmt.Errorf("model.timeout_seconds must be positive, got %d", c.Model.TimeoutSeconds)
	}
	return nil
}
