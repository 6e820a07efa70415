// Package config holds runtime configuration and provider credential
// declarations. Credentials themselves are only ever read from the
// environment, never from config files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/helmsman-ai/helmsman/internal/types"
)

// Config is the runtime configuration of the orchestrator.
type Config struct {
	// AnalyzerCacheSize bounds the task-analysis LRU cache.
	AnalyzerCacheSize int `yaml:"analyzer_cache_size"`

	// MaxFunctionCalls caps tool-call loop iterations per request.
	MaxFunctionCalls int `yaml:"max_function_calls"`

	// ToolTimeout bounds a single tool handler invocation.
	ToolTimeout time.Duration `yaml:"tool_timeout"`

	// MaxFallbacks caps the fallback chain length after the primary.
	MaxFallbacks int `yaml:"max_fallbacks"`

	// HealthCacheTTL is the maximum staleness of a provider health probe.
	HealthCacheTTL time.Duration `yaml:"health_cache_ttl"`

	// ShutdownGrace is how long Shutdown waits for in-flight requests.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`

	// EmitFailedCostEvents controls whether failed runs emit status=failed
	// cost events (token counts may be partial on failure).
	EmitFailedCostEvents bool `yaml:"emit_failed_cost_events"`

	// Temperature and MaxTokens are the defaults applied to provider calls
	// when the caller does not set them.
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// Weights overrides the scorer's default sub-score weights when non-nil.
	Weights *Weights `yaml:"weights"`

	// Optional config file paths. Empty means embedded defaults.
	PatternsFile string `yaml:"patterns_file"`
	RegistryFile string `yaml:"registry_file"`
	PricesFile   string `yaml:"prices_file"`
	GuideFile    string `yaml:"guide_file"`

	// CostBufferSize bounds the in-memory cost event ring.
	CostBufferSize int `yaml:"cost_buffer_size"`

	// LogLevel: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Weights are the scorer sub-score weights. They are normalized at use.
type Weights struct {
	Context    float64 `yaml:"context"`
	Speed      float64 `yaml:"speed"`
	Cost       float64 `yaml:"cost"`
	Capability float64 `yaml:"capability"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		AnalyzerCacheSize:    1024,
		MaxFunctionCalls:     10,
		ToolTimeout:          30 * time.Second,
		MaxFallbacks:         5,
		HealthCacheTTL:       60 * time.Second,
		ShutdownGrace:        5 * time.Second,
		EmitFailedCostEvents: false,
		Temperature:          0.7,
		MaxTokens:            4096,
		CostBufferSize:       10000,
		LogLevel:             "info",
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects nonsensical values and backfills zero values with defaults.
func (c *Config) Validate() error {
	def := Default()
	if c.AnalyzerCacheSize <= 0 {
		c.AnalyzerCacheSize = def.AnalyzerCacheSize
	}
	if c.MaxFunctionCalls <= 0 {
		c.MaxFunctionCalls = def.MaxFunctionCalls
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = def.ToolTimeout
	}
	if c.MaxFallbacks < 0 {
		return fmt.Errorf("max_fallbacks must be >= 0, got %d", c.MaxFallbacks)
	}
	if c.HealthCacheTTL <= 0 {
		c.HealthCacheTTL = def.HealthCacheTTL
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = def.ShutdownGrace
	}
	if c.CostBufferSize <= 0 {
		c.CostBufferSize = def.CostBufferSize
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = def.MaxTokens
	}
	if c.Weights != nil {
		sum := c.Weights.Context + c.Weights.Speed + c.Weights.Cost + c.Weights.Capability
		if sum <= 0 {
			return fmt.Errorf("scorer weights must sum to a positive value")
		}
	}
	return nil
}

// credentialEnv declares the environment variables each provider requires.
// A provider is available when every listed variable is non-empty.
// Local needs none: an unreachable daemon is a health concern, not a
// credential concern.
var credentialEnv = map[types.Provider][]string{
	types.ProviderOpenAI:    {"OPENAI_API_KEY"},
	types.ProviderAnthropic: {"ANTHROPIC_API_KEY"},
	types.ProviderGoogle:    {"GOOGLE_API_KEY"},
	types.ProviderXAI:       {"XAI_API_KEY"},
	types.ProviderAzure:     {"AZURE_OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT"},
	types.ProviderBedrock:   {"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "AWS_REGION"},
	types.ProviderDIAL:      {"DIAL_API_KEY", "DIAL_ENDPOINT"},
	types.ProviderLocal:     {},
}

// RequiredEnv returns the environment variables a provider needs.
func RequiredEnv(p types.Provider) []string {
	return credentialEnv[p]
}

// CredentialsPresent reports whether every required variable for the
// provider is set and non-empty.
func CredentialsPresent(p types.Provider) bool {
	vars, ok := credentialEnv[p]
	if !ok {
		return false
	}
	for _, v := range vars {
		if os.Getenv(v) == "" {
			return false
		}
	}
	return true
}

// MissingEnv lists the unset variables for a provider, for error remediation.
func MissingEnv(p types.Provider) []string {
	var missing []string
	for _, v := range credentialEnv[p] {
		if os.Getenv(v) == "" {
			missing = append(missing, v)
		}
	}
	return missing
}
