package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/abhisek/twinly/internal/logger"
	"github.com/abhisek/twinly/internal/store"
)

// Observer receives one observation per provider call.
type Observer interface {
	ObserveLLMCall(purpose string, success bool, latency time.Duration)
}

// LoggingOptions configures WithLogging. Nil fields are skipped.
type LoggingOptions struct {
	Provider string
	Events   store.EventRepo
	Log      *logger.Logger
	Observer Observer
}

// LoggingProvider is a decorator that records every LLM request as an
// event, a log line and a metric observation.
type LoggingProvider struct {
	inner Provider
	opts  LoggingOptions
}

// WithLogging wraps a Provider with event logging.
func WithLogging(p Provider, opts LoggingOptions) Provider {
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	return &LoggingProvider{inner: p, opts: opts}
}

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	purpose := PurposeFrom(ctx)

	resp, err := l.inner.Generate(ctx, req)

	latency := time.Since(start)
	data := store.LLMRequestEventData{
		Provider:    l.opts.Provider,
		Model:       l.inner.ModelID(),
		Purpose:     purpose,
		LatencyMs:   latency.Milliseconds(),
		Success:     err == nil,
		RequestBody: serializeRequest(req),
	}
	if resp != nil {
		data.InputTokens = resp.Usage.InputTokens
		data.OutputTokens = resp.Usage.OutputTokens
		if resp.Model != "" {
			data.Model = resp.Model
		}
		data.ResponseBody = strings.Join(resp.Candidates, "\n---\n")
	}
	if err != nil {
		data.ErrorMessage = err.Error()
		l.opts.Log.Warn("llm call failed",
			"purpose", purpose, "model", data.Model, "latency_ms", data.LatencyMs, "error", err)
	} else {
		l.opts.Log.Debug("llm call",
			"purpose", purpose, "model", data.Model, "latency_ms", data.LatencyMs,
			"input_tokens", data.InputTokens, "output_tokens", data.OutputTokens)
	}

	if l.opts.Observer != nil {
		l.opts.Observer.ObserveLLMCall(purpose, err == nil, latency)
	}

	// A failed event write never fails the request.
	if l.opts.Events != nil {
		if logErr := l.opts.Events.AppendLLMRequest(context.WithoutCancel(ctx), data); logErr != nil {
			l.opts.Log.Warn("failed to record llm request event", "error", logErr)
		}
	}

	return resp, err
}

func (l *LoggingProvider) ModelID() string {
	return l.inner.ModelID()
}

// serializeRequest builds a readable representation of the LLM request.
func serializeRequest(req Request) string {
	var b strings.Builder

	if req.System != "" {
		b.WriteString("[system]\n")
		b.WriteString(req.System)
		b.WriteString("\n\n")
	}

	for _, m := range req.Messages {
		fmt.Fprintf(&b, "[%s]\n", m.Role)
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "[temperature %.2f, max_tokens %d]\n", req.Temperature, req.MaxTokens)
	return b.String()
}
