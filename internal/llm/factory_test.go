package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/abhisek/twinly/internal/logger"
	"github.com/abhisek/twinly/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordedEvents struct {
	mu     sync.Mutex
	events []store.LLMRequestEventData
	err    error
}

func (r *recordedEvents) AppendLLMRequest(_ context.Context, data store.LLMRequestEventData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, data)
	return r.err
}

type recordedObservations struct {
	purposes []string
	success  []bool
}

func (r *recordedObservations) ObserveLLMCall(purpose string, success bool, _ time.Duration) {
	r.purposes = append(r.purposes, purpose)
	r.success = append(r.success, success)
}

func TestWithLogging_RecordsEvent(t *testing.T) {
	events := &recordedEvents{}
	obs := &recordedObservations{}
	core, logs := observer.New(zapcore.DebugLevel)

	mock := NewMockProvider(MockResponse{Text: "Robin Vale", Usage: Usage{InputTokens: 12, OutputTokens: 3}})
	p := WithLogging(mock, LoggingOptions{
		Provider: ProviderGroq,
		Events:   events,
		Log:      logger.NewFromZap(zap.New(core)),
		Observer: obs,
	})

	ctx := WithPurpose(context.Background(), PurposeName)
	resp, err := p.Generate(ctx, Request{System: "sys", Messages: UserMessage("Give me a name"), Temperature: 0.7})
	require.NoError(t, err)
	assert.Equal(t, "Robin Vale", resp.Text)

	require.Len(t, events.events, 1)
	e := events.events[0]
	assert.Equal(t, ProviderGroq, e.Provider)
	assert.Equal(t, "mock", e.Model)
	assert.Equal(t, PurposeName, e.Purpose)
	assert.Equal(t, 12, e.InputTokens)
	assert.Equal(t, 3, e.OutputTokens)
	assert.True(t, e.Success)
	assert.Contains(t, e.RequestBody, "[system]\nsys")
	assert.Contains(t, e.RequestBody, "[user]\nGive me a name")
	assert.Equal(t, "Robin Vale", e.ResponseBody)

	assert.Equal(t, []string{PurposeName}, obs.purposes)
	assert.Equal(t, []bool{true}, obs.success)
	assert.Equal(t, 1, logs.FilterMessage("llm call").Len())
}

func TestWithLogging_RecordsFailure(t *testing.T) {
	events := &recordedEvents{err: errors.New("disk full")}
	mock := NewMockProvider(MockResponse{Err: &ErrRateLimit{Err: errors.New("429")}})
	p := WithLogging(mock, LoggingOptions{Provider: ProviderGroq, Events: events})

	_, err := p.Generate(context.Background(), Request{})
	var rl *ErrRateLimit
	require.ErrorAs(t, err, &rl, "event write failure must not mask the provider error")

	require.Len(t, events.events, 1)
	assert.False(t, events.events[0].Success)
	assert.Equal(t, "unknown", events.events[0].Purpose)
	assert.Contains(t, events.events[0].ErrorMessage, "rate limited")
}

func TestNewProvider_Mock(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = ProviderMock
	p, err := NewProvider(context.Background(), cfg, Deps{})
	require.NoError(t, err)
	assert.Equal(t, "mock", p.ModelID())
}

func TestNewProvider_StaticKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Groq.APIKey = "gsk_static"
	p, err := NewProvider(context.Background(), cfg, Deps{})
	require.NoError(t, err)
	assert.Equal(t, "llama-3.1-8b-instant", p.ModelID())
}

func TestNewProvider_NoKeyAnywhere(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CredentialKey = DefaultCredentialKey
	_, err := NewProvider(context.Background(), cfg, Deps{})
	var missing *ErrMissingCredential
	require.ErrorAs(t, err, &missing)
}

func TestNewProvider_UnknownProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = "carrier-pigeon"
	_, err := NewProvider(context.Background(), cfg, Deps{})
	assert.Error(t, err)
}

func TestCredentialProvider_ReadsKeyPerCall(t *testing.T) {
	ctx := context.Background()
	keys := store.NewMemoryKV()

	var builtWith []string
	cp := &credentialProvider{
		cfg:  DefaultConfig(),
		keys: keys,
		build: func(_ context.Context, cfg Config) (Provider, error) {
			builtWith = append(builtWith, cfg.Groq.APIKey)
			return NewMockProvider(MockResponse{Text: "a"}, MockResponse{Text: "b"}), nil
		},
	}

	_, err := cp.Generate(ctx, Request{})
	var missing *ErrMissingCredential
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, missing.Error(), DefaultCredentialKey)

	require.NoError(t, keys.Put(ctx, DefaultCredentialKey, "gsk_1"))
	resp, err := cp.Generate(ctx, Request{})
	require.NoError(t, err)
	assert.Equal(t, "a", resp.Text)

	resp, err = cp.Generate(ctx, Request{})
	require.NoError(t, err)
	assert.Equal(t, "b", resp.Text, "same key reuses the cached client")

	require.NoError(t, keys.Put(ctx, DefaultCredentialKey, "gsk_2"))
	_, err = cp.Generate(ctx, Request{})
	require.NoError(t, err)

	assert.Equal(t, []string{"gsk_1", "gsk_2"}, builtWith)
	assert.Equal(t, "llama-3.1-8b-instant", cp.ModelID())
}
