package llm

import (
	"fmt"
	"os"
	"time"
)

// Provider names accepted in Config.Provider.
const (
	ProviderGroq       = "groq"
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderMock       = "mock"
)

// DefaultCredentialKey is the store key holding the provider API key when
// none is configured in the environment.
const DefaultCredentialKey = "groq-api-key"

// Config holds all LLM provider configuration.
type Config struct {
	// Provider selects which LLM provider to use.
	// Values: "groq", "openai", "anthropic", "gemini", "openrouter", "mock"
	Provider string `yaml:"provider" validate:"oneof=groq openai anthropic gemini openrouter mock"`

	Groq       OpenAIConfig     `yaml:"groq"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Anthropic  AnthropicConfig  `yaml:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	OpenRouter OpenRouterConfig `yaml:"openrouter"`
	Retry      RetryConfig      `yaml:"retry"`

	// CredentialKey is the key-value store entry consulted on every call
	// when the selected provider has no API key configured. Empty disables
	// the lookup.
	CredentialKey string `yaml:"credential_key"`

	// Timeout bounds a single collaborator call (all retries included).
	// Default: 30s.
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// AnthropicConfig holds Anthropic-specific configuration.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"` // Default: "claude-haiku"
}

// OpenAIConfig holds configuration for OpenAI and OpenAI-compatible APIs.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"` // Optional. Override for compatible APIs.
}

// GeminiConfig holds Gemini-specific configuration.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"` // Default: "gemini-flash"
}

// OpenRouterConfig holds OpenRouter-specific configuration.
type OpenRouterConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`    // Default: "google/gemini-2.0-flash-exp"
	BaseURL string `yaml:"base_url"` // Default: "https://openrouter.ai/api/v1"
}

// RetryConfig configures retry behavior for transient failures.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" validate:"gte=1"`
	InitialWait time.Duration `yaml:"initial_wait"`
	MaxWait     time.Duration `yaml:"max_wait"`
	Multiplier  float64       `yaml:"multiplier"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider: ProviderGroq,
		Groq: OpenAIConfig{
			Model:   "llama-3.1-8b-instant",
			BaseURL: defaultGroqBaseURL,
		},
		OpenAI: OpenAIConfig{
			Model: "gpt-4o-mini",
		},
		Anthropic: AnthropicConfig{
			Model: "claude-haiku",
		},
		Gemini: GeminiConfig{
			Model: "gemini-flash",
		},
		OpenRouter: OpenRouterConfig{
			Model: "google/gemini-2.0-flash-exp",
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			InitialWait: 1 * time.Second,
			MaxWait:     10 * time.Second,
			Multiplier:  2.0,
		},
		CredentialKey: DefaultCredentialKey,
		Timeout:       30 * time.Second,
	}
}

// ApplyEnv overlays TWINLY_* environment variables onto cfg.
func ApplyEnv(cfg *Config) {
	if p := os.Getenv("TWINLY_LLM_PROVIDER"); p != "" {
		cfg.Provider = p
	}

	setIf(&cfg.Groq.APIKey, "TWINLY_GROQ_API_KEY")
	setIf(&cfg.Groq.Model, "TWINLY_GROQ_MODEL")

	setIf(&cfg.OpenAI.APIKey, "TWINLY_OPENAI_API_KEY")
	setIf(&cfg.OpenAI.Model, "TWINLY_OPENAI_MODEL")
	setIf(&cfg.OpenAI.BaseURL, "TWINLY_OPENAI_BASE_URL")

	setIf(&cfg.Anthropic.APIKey, "TWINLY_ANTHROPIC_API_KEY")
	setIf(&cfg.Anthropic.Model, "TWINLY_ANTHROPIC_MODEL")

	setIf(&cfg.Gemini.APIKey, "TWINLY_GEMINI_API_KEY")
	setIf(&cfg.Gemini.Model, "TWINLY_GEMINI_MODEL")

	setIf(&cfg.OpenRouter.APIKey, "TWINLY_OPENROUTER_API_KEY")
	setIf(&cfg.OpenRouter.Model, "TWINLY_OPENROUTER_MODEL")

	if k, ok := os.LookupEnv("TWINLY_CREDENTIAL_KEY"); ok {
		cfg.CredentialKey = k
	}
	if t := os.Getenv("TWINLY_LLM_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			cfg.Timeout = d
		}
	}
}

func setIf(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// APIKey returns the statically configured key for the selected provider.
func (c Config) APIKey() string {
	switch c.Provider {
	case ProviderGroq:
		return c.Groq.APIKey
	case ProviderOpenAI:
		return c.OpenAI.APIKey
	case ProviderAnthropic:
		return c.Anthropic.APIKey
	case ProviderGemini:
		return c.Gemini.APIKey
	case ProviderOpenRouter:
		return c.OpenRouter.APIKey
	}
	return ""
}

// WithAPIKey returns a copy of c with the selected provider's key set.
func (c Config) WithAPIKey(key string) Config {
	switch c.Provider {
	case ProviderGroq:
		c.Groq.APIKey = key
	case ProviderOpenAI:
		c.OpenAI.APIKey = key
	case ProviderAnthropic:
		c.Anthropic.APIKey = key
	case ProviderGemini:
		c.Gemini.APIKey = key
	case ProviderOpenRouter:
		c.OpenRouter.APIKey = key
	}
	return c
}

// Validate checks that the selected provider is known and that a key is
// reachable, either configured or looked up from the store per call.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderGroq, ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderOpenRouter:
		if c.APIKey() == "" && c.CredentialKey == "" {
			return &ErrMissingCredential{Provider: c.Provider, Source: "configuration"}
		}
	case ProviderMock:
		// No API key needed.
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	return nil
}
