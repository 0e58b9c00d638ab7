package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/abhisek/twinly/internal/logger"
	"github.com/abhisek/twinly/internal/store"
)

// Deps carries the collaborators the middleware chain needs. Every field
// is optional.
type Deps struct {
	// Events records every call. Nil disables the event log.
	Events store.EventRepo
	// Keys is consulted per call for the API key when none is configured.
	Keys store.KV
	// Log receives one line per call.
	Log *logger.Logger
	// Observer receives per-call metrics.
	Observer Observer
}

// NewProvider creates a Provider from configuration.
// The chain is: caller → timeout → retry → logging → base.
func NewProvider(ctx context.Context, cfg Config, deps Deps) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var base Provider
	switch {
	case cfg.Provider == ProviderMock:
		return NewMockProvider(), nil
	case cfg.APIKey() != "":
		p, err := buildProvider(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
		}
		base = p
	case deps.Keys != nil:
		base = &credentialProvider{cfg: cfg, keys: deps.Keys, build: buildProvider}
	default:
		return nil, &ErrMissingCredential{Provider: cfg.Provider, Source: "configuration"}
	}

	logged := WithLogging(base, LoggingOptions{
		Provider: cfg.Provider,
		Events:   deps.Events,
		Log:      deps.Log,
		Observer: deps.Observer,
	})
	retried := WithRetry(logged, cfg.Retry)
	return WithTimeout(retried, cfg.Timeout), nil
}

// buildProvider constructs the SDK-backed provider selected by cfg.
func buildProvider(ctx context.Context, cfg Config) (Provider, error) {
	switch cfg.Provider {
	case ProviderGroq:
		return NewGroqProvider(cfg.Groq)
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.OpenAI)
	case ProviderAnthropic:
		return NewAnthropicProvider(cfg.Anthropic)
	case ProviderGemini:
		return NewGeminiProvider(ctx, cfg.Gemini)
	case ProviderOpenRouter:
		return NewOpenRouterProvider(cfg.OpenRouter)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
}

// configuredModel returns the model name the selected provider resolves to.
func configuredModel(cfg Config) string {
	switch cfg.Provider {
	case ProviderGroq:
		return resolveModel(cfg.Groq.Model, groqModels)
	case ProviderOpenAI:
		return resolveModel(cfg.OpenAI.Model, openaiModels)
	case ProviderAnthropic:
		return resolveModel(cfg.Anthropic.Model, anthropicModels)
	case ProviderGemini:
		return resolveModel(cfg.Gemini.Model, geminiModels)
	case ProviderOpenRouter:
		return cfg.OpenRouter.Model
	}
	return cfg.Provider
}

// credentialProvider reads the API key from the store on every call and
// rebuilds the SDK client only when the key changes.
type credentialProvider struct {
	cfg   Config
	keys  store.KV
	build func(context.Context, Config) (Provider, error)

	mu     sync.Mutex
	key    string
	cached Provider
}

func (c *credentialProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	p, err := c.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return p.Generate(ctx, req)
}

func (c *credentialProvider) ModelID() string {
	return configuredModel(c.cfg)
}

func (c *credentialProvider) resolve(ctx context.Context) (Provider, error) {
	key, ok, err := c.keys.Get(ctx, c.cfg.CredentialKey)
	if err != nil {
		return nil, fmt.Errorf("read credential %q: %w", c.cfg.CredentialKey, err)
	}
	if !ok || key == "" {
		return nil, &ErrMissingCredential{
			Provider: c.cfg.Provider,
			Source:   fmt.Sprintf("store key %q", c.cfg.CredentialKey),
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached != nil && c.key == key {
		return c.cached, nil
	}
	p, err := c.build(ctx, c.cfg.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", c.cfg.Provider, err)
	}
	c.key, c.cached = key, p
	return p, nil
}
