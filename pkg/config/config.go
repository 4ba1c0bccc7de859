// Package config provides configuration types and defaults for brandgate services
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxToolTTL caps per-tool cache TTL overrides (static lookup tools)
const MaxToolTTL = 24 * time.Hour

// ServerConfig holds all configurable HTTP server parameters
type ServerConfig struct {
	Host         string        `yaml:"host"`           // Host to bind (default: "0.0.0.0")
	Port         int           `yaml:"port"`           // Port to listen (default: 8712)
	ReadTimeout  time.Duration `yaml:"read_timeout"`   // HTTP read timeout (default: 120s)
	WriteTimeout time.Duration `yaml:"write_timeout"`  // HTTP write timeout (default: 300s)
	IdleTimeout  time.Duration `yaml:"idle_timeout"`   // HTTP idle timeout (default: 300s)
	MaxBodyCheck int64         `yaml:"max_body_check"` // Max body size for check requests (default: 32MB, frames are base64)

	EventQueueSize int           `yaml:"event_queue_size"` // Bounded stream event queue (default: 64)
	EventPollEvery time.Duration `yaml:"event_poll_every"` // Queue poll timeout for SSE writer (default: 500ms)
}

// ProviderConfig holds one LLM provider's connection settings
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// AgentConfig holds the conversation loop parameters
type AgentConfig struct {
	Provider      string        `yaml:"provider"` // "openrouter", "anthropic", "gemini", "gemini-compat"
	SystemPrompt  string        `yaml:"system_prompt"`
	MaxIterations int           `yaml:"max_iterations"` // Tool-call iterations per request (default: 10)
	TurnTimeout   time.Duration `yaml:"turn_timeout"`   // Wall clock per model call (default: 120s)
	MaxRetries    int           `yaml:"max_retries"`    // Transient provider error retries (default: 2)
	MaxTokens     int           `yaml:"max_tokens"`     // Completion token cap (default: 4096)
	Temperature   float64       `yaml:"temperature"`
	ContextTokens int           `yaml:"context_tokens"` // History token guard (default: 128000)

	ResultBudget int `yaml:"result_budget"` // Tool result truncation budget in chars (default: 5000)
}

// CacheConfig holds tool result cache parameters
type CacheConfig struct {
	DefaultTTL   time.Duration            `yaml:"default_ttl"` // default: 1h
	ToolTTL      map[string]time.Duration `yaml:"tool_ttl"`    // per-tool overrides, capped at 24h
	NonCacheable []string                 `yaml:"non_cacheable"`
	SharedDir    string                   `yaml:"shared_dir"` // BadgerDB dir for multi-worker cache ("" = in-process only)
}

// StorageConfig holds persistence parameters
type StorageConfig struct {
	DBPath string `yaml:"db_path"` // SQLite path ("" = persistence disabled)
}

// Config is the root configuration
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Agent     AgentConfig               `yaml:"agent"`
	Cache     CacheConfig               `yaml:"cache"`
	Storage   StorageConfig             `yaml:"storage"`
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           DefaultPort,
			ReadTimeout:    120 * time.Second,
			WriteTimeout:   300 * time.Second,
			IdleTimeout:    300 * time.Second,
			MaxBodyCheck:   32 * 1024 * 1024,
			EventQueueSize: DefaultEventQueueSize,
			EventPollEvery: 500 * time.Millisecond,
		},
		Agent: AgentConfig{
			Provider:      "openrouter",
			MaxIterations: DefaultMaxIterations,
			TurnTimeout:   120 * time.Second,
			MaxRetries:    2,
			MaxTokens:     DefaultMaxTokens,
			Temperature:   0.2,
			ContextTokens: DefaultContextTokens,
			ResultBudget:  DefaultResultBudget,
		},
		Cache: CacheConfig{
			DefaultTTL: time.Hour,
			ToolTTL: map[string]time.Duration{
				"get_region_color_scheme": 24 * time.Hour,
				"get_brand_guidelines":    24 * time.Hour,
			},
			NonCacheable: []string{"attempt_completion"},
		},
		Storage: StorageConfig{
			DBPath: DefaultDBPath(),
		},
		Providers: map[string]ProviderConfig{},
	}
}

// Load reads config from a YAML file, merged over defaults and environment
func Load(path string) (*Config, error) {
	cfg := Default()
	cfg.applyEnv()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyLimits()
	return cfg, nil
}

// applyEnv fills provider credentials from the environment
func (c *Config) applyEnv() {
	setProvider := func(name, keyEnv, urlEnv, modelEnv, defaultURL, defaultModel string) {
		p := c.Providers[name]
		if v := os.Getenv(keyEnv); v != "" {
			p.APIKey = v
		}
		p.BaseURL = envOrDefault(urlEnv, defaultURL)
		p.Model = envOrDefault(modelEnv, defaultModel)
		c.Providers[name] = p
	}

	setProvider("openrouter", "OPENROUTER_API_KEY", "OPENROUTER_BASE_URL", "OPENROUTER_MODEL",
		"https://openrouter.ai/api/v1", "anthropic/claude-sonnet-4")
	setProvider("anthropic", "ANTHROPIC_API_KEY", "ANTHROPIC_BASE_URL", "ANTHROPIC_MODEL",
		"", "claude-sonnet-4-20250514")
	setProvider("gemini", "GOOGLE_API_KEY", "GOOGLE_BASE_URL", "GOOGLE_MODEL",
		"", "gemini-2.0-flash")
	setProvider("gemini-compat", "GOOGLE_API_KEY", "GEMINI_COMPAT_BASE_URL", "GEMINI_COMPAT_MODEL",
		"https://generativelanguage.googleapis.com/v1beta/openai", "gemini-2.0-flash")

	if v := os.Getenv("BRANDGATE_PROVIDER"); v != "" {
		c.Agent.Provider = v
	}
	if v := os.Getenv("BRANDGATE_DB"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("BRANDGATE_CACHE_DIR"); v != "" {
		c.Cache.SharedDir = v
	}
	if v := os.Getenv("BRANDGATE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

// applyLimits clamps values to valid ranges
func (c *Config) applyLimits() {
	if c.Agent.MaxIterations <= 0 {
		c.Agent.MaxIterations = DefaultMaxIterations
	}
	if c.Agent.TurnTimeout <= 0 {
		c.Agent.TurnTimeout = 120 * time.Second
	}
	if c.Agent.ResultBudget <= 0 {
		c.Agent.ResultBudget = DefaultResultBudget
	}
	if c.Cache.DefaultTTL <= 0 {
		c.Cache.DefaultTTL = time.Hour
	}
	for tool, ttl := range c.Cache.ToolTTL {
		if ttl > MaxToolTTL {
			c.Cache.ToolTTL[tool] = MaxToolTTL
		}
	}
	if c.Server.EventQueueSize <= 0 {
		c.Server.EventQueueSize = DefaultEventQueueSize
	}
	if c.Server.EventPollEvery <= 0 {
		c.Server.EventPollEvery = 500 * time.Millisecond
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
