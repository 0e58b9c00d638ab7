// Package app assembles the persona engine from configuration.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/abhisek/twinly/internal/config"
	"github.com/abhisek/twinly/internal/llm"
	"github.com/abhisek/twinly/internal/logger"
	"github.com/abhisek/twinly/internal/metrics"
	"github.com/abhisek/twinly/internal/questiongen"
	"github.com/abhisek/twinly/internal/server"
	"github.com/abhisek/twinly/internal/session"
	"github.com/abhisek/twinly/internal/store"
)

// App holds the wired components. Close releases the backing store.
type App struct {
	Config   config.Config
	Log      *logger.Logger
	KV       store.KV
	Events   *store.EventStore // nil unless the backend is SQLite
	Metrics  *metrics.Metrics
	Provider llm.Provider
	Service  *session.Service
}

// Options overrides pieces of the default wiring, mostly for tests.
type Options struct {
	// KV replaces the store selected by the configuration.
	KV store.KV
	// Provider replaces the configured LLM provider.
	Provider llm.Provider
	// Log replaces the logger built from cfg.Log.
	Log *logger.Logger
}

// New builds an App from cfg.
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg, Log: opts.Log, Metrics: metrics.New()}

	if a.Log == nil {
		l, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
		if err != nil {
			return nil, fmt.Errorf("create logger: %w", err)
		}
		a.Log = l
	}

	a.KV = opts.KV
	if a.KV == nil {
		kv, events, err := openStore(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		a.KV, a.Events = kv, events
	}

	a.Provider = opts.Provider
	if a.Provider == nil {
		deps := llm.Deps{Keys: a.KV, Log: a.Log, Observer: a.Metrics}
		if a.Events != nil {
			deps.Events = a.Events
		}
		p, err := llm.NewProvider(ctx, cfg.LLM, deps)
		if err != nil {
			_ = a.KV.Close()
			return nil, fmt.Errorf("create llm provider: %w", err)
		}
		a.Provider = p
	}

	gcfg := questiongen.DefaultConfig()
	gcfg.MaxTokens = cfg.Generation.MaxTokens
	gcfg.Temperature = cfg.Generation.Temperature

	a.Service = session.NewService(
		session.NewKVStateStore(a.KV, cfg.Store.StatePrefix),
		questiongen.New(a.Provider, gcfg),
		session.WithLogger(a.Log),
		session.WithRecorder(a.Metrics),
	)
	return a, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.KV, *store.EventStore, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return store.NewMemoryKV(), nil, nil

	case config.BackendRedis:
		kv, err := store.OpenRedis(ctx, cfg.RedisAddr, store.RedisConfig{
			Prefix: cfg.RedisPrefix,
			TTL:    cfg.RedisTTL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open redis: %w", err)
		}
		return kv, nil, nil

	case config.BackendSQLite, "":
		path := cfg.DBPath
		var err error
		if path == "" {
			path, err = store.DefaultDBPath()
		} else {
			err = store.EnsureDir(path)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("resolve db path: %w", err)
		}
		st, err := store.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		return st, st.EventRepo(), nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler {
	return server.NewRouter(server.Config{
		Engine:        a.Service,
		Health:        a.KV,
		Metrics:       a.Metrics,
		Log:           a.Log,
		RatePerMinute: a.Config.Server.RatePerMinute,
		Burst:         a.Config.Server.Burst,
	})
}

// Server returns an HTTP server for the configured address.
func (a *App) Server() *server.Server {
	return server.New(a.Config.Server.Addr, a.Handler(), a.Config.Server.ShutdownTimeout, a.Log)
}

// Close flushes the logger and closes the store.
func (a *App) Close() error {
	err := a.KV.Close()
	a.Log.Sync()
	return err
}
