// Package runtimeconfig loads the declarative YAML configuration that
// wires a running agentcore instance: model routing, per-model pricing,
// and rate-limit windows.
package runtimeconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/streamloop/agentcore/pkg/models"
)

// Config is the root configuration structure.
type Config struct {
	Model     ModelConfig            `yaml:"model"`
	Providers ProvidersConfig        `yaml:"providers"`
	Prices    map[string]PriceConfig `yaml:"prices"`
	RateLimit RateLimitConfig        `yaml:"rate_limit"`
	Circuit   CircuitConfig          `yaml:"circuit"`
	Poller    PollerConfig           `yaml:"poller"`
	Skills    SkillsConfig           `yaml:"skills"`
	Logging   LoggingConfig          `yaml:"logging"`
}

// ModelConfig selects the default provider/model pair the agent talks to.
type ModelConfig struct {
	Provider      string `yaml:"provider"` // anthropic | openai | bedrock | google
	Model         string `yaml:"model"`
	ThinkingLevel string `yaml:"thinking_level"`
}

// ProvidersConfig carries per-provider connection settings. API keys are
// read from the environment, never from this file.
type ProvidersConfig struct {
	Anthropic AnthropicProviderConfig `yaml:"anthropic"`
	OpenAI    OpenAIProviderConfig    `yaml:"openai"`
	Bedrock   BedrockProviderConfig   `yaml:"bedrock"`
	Google    GoogleProviderConfig    `yaml:"google"`
}

type AnthropicProviderConfig struct {
	BaseURL string `yaml:"base_url"`
}

type OpenAIProviderConfig struct {
	BaseURL string `yaml:"base_url"`
}

type BedrockProviderConfig struct {
	Region string `yaml:"region"`
}

type GoogleProviderConfig struct {
	BaseURL string `yaml:"base_url"`
}

// PriceConfig is one model's per-million-token rates, keyed by model ID
// or "provider:" prefix for a provider-level fallback.
type PriceConfig struct {
	InputPerMTok      float64 `yaml:"input_per_mtok"`
	OutputPerMTok     float64 `yaml:"output_per_mtok"`
	CacheReadPerMTok  float64 `yaml:"cache_read_per_mtok"`
	CacheWritePerMTok float64 `yaml:"cache_write_per_mtok"`
}

// RateLimitConfig configures the sliding-window limiter per logical API
// name.
type RateLimitConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
	MinInterval time.Duration `yaml:"min_interval"`
}

// CircuitConfig configures the per-service circuit breaker.
type CircuitConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// PollerConfig configures the background work-item pump. Enabled is false
// by default: a poller with nothing to fetch from is a needless
// background goroutine.
type PollerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Schedule         string        `yaml:"schedule"`
	TickInterval     time.Duration `yaml:"tick_interval"`
	BatchLimit       int           `yaml:"batch_limit"`
	BackoffFactor    float64       `yaml:"backoff_factor"`
	BackoffCap       time.Duration `yaml:"backoff_cap"`
	FailureThreshold int           `yaml:"failure_threshold"`
}

// SkillsConfig configures skill discovery and hot-swap.
type SkillsConfig struct {
	// Dir is the directory whose immediate subdirectories each hold a
	// SKILL.md file. Discovery is skipped entirely when empty.
	Dir      string        `yaml:"dir"`
	Watch    bool          `yaml:"watch"`
	Debounce time.Duration `yaml:"debounce"`
}

// LoggingConfig configures the root slog handler.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
	JSON  bool   `yaml:"json"`
}

// Load reads and parses a YAML configuration file, applying defaults to
// any zero-valued field sanitize-style.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("runtimeconfig: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("runtimeconfig: parse %s: %w", path, err)
	}

	sanitize(&cfg)
	return &cfg, nil
}

func sanitize(cfg *Config) {
	if cfg.Model.Provider == "" {
		cfg.Model.Provider = "anthropic"
	}
	if cfg.Model.ThinkingLevel == "" {
		cfg.Model.ThinkingLevel = "medium"
	}
	sanitizeRateLimit(&cfg.RateLimit)
	sanitizeCircuit(&cfg.Circuit)
	sanitizePoller(&cfg.Poller)
	sanitizeSkills(&cfg.Skills)
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func sanitizeSkills(c *SkillsConfig) {
	if c.Debounce <= 0 {
		c.Debounce = 250 * time.Millisecond
	}
}

func sanitizeRateLimit(c *RateLimitConfig) {
	if c.MaxRequests <= 0 {
		c.MaxRequests = 60
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
}

func sanitizeCircuit(c *CircuitConfig) {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

func sanitizePoller(c *PollerConfig) {
	if c.TickInterval <= 0 {
		c.TickInterval = 5 * time.Second
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = 10
	}
	if c.BackoffFactor <= 1 {
		c.BackoffFactor = 2
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 5 * time.Minute
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
}

// BuildPriceTable converts the configured per-model rates into a
// models.PriceTable. A key prefixed "provider:" (e.g. "provider:openai")
// registers a provider-level fallback; any other key registers an exact
// model-ID price.
func (c *Config) BuildPriceTable() *models.PriceTable {
	const providerPrefix = "provider:"
	table := models.NewPriceTable()
	for key, p := range c.Prices {
		price := models.ModelPrice{
			InputPerMTok:      p.InputPerMTok,
			OutputPerMTok:     p.OutputPerMTok,
			CacheReadPerMTok:  p.CacheReadPerMTok,
			CacheWritePerMTok: p.CacheWritePerMTok,
		}
		if len(key) > len(providerPrefix) && key[:len(providerPrefix)] == providerPrefix {
			table.SetProviderDefaultPrice(key[len(providerPrefix):], price)
			continue
		}
		table.SetModelPrice(key, price)
	}
	return table
}
