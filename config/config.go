// Package config handles ragmesh configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/ragmesh/logging"
)

// DefaultSearchPaths returns the config file search order:
// ./ragmesh.yaml, ~/.config/ragmesh/config.yaml, /etc/ragmesh/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"ragmesh.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "ragmesh", "config.yaml"))
	}

	paths = append(paths, "/etc/ragmesh/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise the first existing entry of DefaultSearchPaths is returned.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all ragmesh configuration.
type Config struct {
	Model     ModelConfig     `yaml:"model"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	Wikipedia WikipediaConfig `yaml:"wikipedia"`
	Agent     AgentConfig     `yaml:"agent"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ModelConfig selects the completion service.
type ModelConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "anthropic".
	Provider    string  `yaml:"provider"`
	Name        string  `yaml:"name"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`
}

// EmbeddingConfig selects how chunk and query vectors are computed.
type EmbeddingConfig struct {
	// Provider is "hash" (local, no network) or "openai".
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
}

// StoreConfig selects the ChunkStore backend.
type StoreConfig struct {
	// Backend is "sqlite" or "memory".
	Backend    string `yaml:"backend"`
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
}

// WikipediaConfig configures the MediaWiki client.
type WikipediaConfig struct {
	BaseURL           string        `yaml:"base_url"`
	Language          string        `yaml:"language"`
	UserAgent         string        `yaml:"user_agent"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	CacheSize         int           `yaml:"cache_size"`
	SearchLimit       int           `yaml:"search_limit"`
}

// AgentConfig configures the tool loop and session seeding.
type AgentConfig struct {
	// MaxIterations caps tool cycles per message. 0 selects the default (8).
	MaxIterations int           `yaml:"max_iterations"`
	DispatchAll   bool          `yaml:"dispatch_all"`
	CallTimeout   time.Duration `yaml:"call_timeout"`
	Stream        bool          `yaml:"stream"`
	// SearchFirst rejects acquisition of subjects not searched in the same turn.
	SearchFirst  bool   `yaml:"search_first"`
	SystemPrompt string `yaml:"system_prompt"`
	Greeting     string `yaml:"greeting"`
	MaxResults   int    `yaml:"max_results"`
}

// ChunkingConfig configures how acquired pages are split.
type ChunkingConfig struct {
	Separator    string        `yaml:"separator"`
	KeepEmpty    bool          `yaml:"keep_empty"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// Default returns a configuration that talks to OpenAI and persists chunks
// in ./data.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Provider:    "openai",
			Name:        "gpt-4o-mini",
			Temperature: 0.1,
			MaxTokens:   4096,
		},
		Embedding: EmbeddingConfig{
			Provider:   "hash",
			Model:      "text-embedding-3-small",
			Dimensions: 512,
			BatchSize:  96,
		},
		Store: StoreConfig{
			Backend:    "sqlite",
			Path:       "./data",
			Collection: "chatbot-ask",
		},
		Wikipedia: WikipediaConfig{
			Language:          "en",
			UserAgent:         "ragmesh/1.0 (https://github.com/hupe1980/ragmesh)",
			Timeout:           15 * time.Second,
			RequestsPerSecond: 5,
			Burst:             2,
			CacheSize:         256,
			SearchLimit:       5,
		},
		Agent: AgentConfig{
			MaxIterations: 8,
			CallTimeout:   60 * time.Second,
			MaxResults:    10,
		},
		Chunking: ChunkingConfig{
			Separator:    "\n\n",
			FetchTimeout: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file on top of Default. ${VAR} references are expanded
// from the environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// ApplyEnv overrides settings from the environment. MODEL_NAME and
// LLM_BASE_URL win over the file; API keys only fill empty fields.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("MODEL_NAME"); v != "" {
		c.Model.Name = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		c.Model.BaseURL = v
	}

	openaiKey := os.Getenv("OPENAI_API_KEY")
	if c.Model.APIKey == "" {
		switch c.Model.Provider {
		case "openai":
			c.Model.APIKey = openaiKey
		case "anthropic":
			c.Model.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if c.Embedding.Provider == "openai" && c.Embedding.APIKey == "" {
		c.Embedding.APIKey = openaiKey
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Model.Provider {
	case "openai", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("model.provider: unsupported %q (want openai or anthropic)", c.Model.Provider))
	}
	if c.Model.Name == "" {
		errs = append(errs, errors.New("model.name: required (or set MODEL_NAME)"))
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		errs = append(errs, fmt.Errorf("model.temperature: %v out of range [0, 2]", c.Model.Temperature))
	}

	switch c.Embedding.Provider {
	case "hash":
		if c.Embedding.Dimensions <= 0 {
			errs = append(errs, errors.New("embedding.dimensions: must be positive for the hash provider"))
		}
	case "openai":
	default:
		errs = append(errs, fmt.Errorf("embedding.provider: unsupported %q (want hash or openai)", c.Embedding.Provider))
	}

	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path: required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend: unsupported %q (want sqlite or memory)", c.Store.Backend))
	}

	if c.Agent.MaxIterations < 0 {
		errs = append(errs, errors.New("agent.max_iterations: must not be negative"))
	}
	if c.Agent.CallTimeout < 0 {
		errs = append(errs, errors.New("agent.call_timeout: must not be negative"))
	}
	if c.Wikipedia.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("wikipedia.requests_per_second: must not be negative"))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: unknown %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown %q (want text or json)", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// LoggerConfig converts the logging section for logging.NewLogger.
func (c *Config) LoggerConfig() *logging.LoggerConfig {
	lc := logging.DefaultLoggerConfig()
	lc.Level = logging.ParseLevel(c.Logging.Level)
	if c.Logging.Format != "" {
		lc.Format = c.Logging.Format
	}
	lc.AddSource = c.Logging.AddSource
	return lc
}
