// Package app wires Kotoba's components together and runs them.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bdobrica/Kotoba/common/crypto"
	"github.com/bdobrica/Kotoba/common/version"
	"github.com/bdobrica/Kotoba/internal/kotoba/api"
	"github.com/bdobrica/Kotoba/internal/kotoba/backend"
	"github.com/bdobrica/Kotoba/internal/kotoba/config"
	"github.com/bdobrica/Kotoba/internal/kotoba/llm"
	"github.com/bdobrica/Kotoba/internal/kotoba/matrix"
	"github.com/bdobrica/Kotoba/internal/kotoba/nlp"
	"github.com/bdobrica/Kotoba/internal/kotoba/ops"
	"github.com/bdobrica/Kotoba/internal/kotoba/registry"
	"github.com/bdobrica/Kotoba/internal/kotoba/store"
	"github.com/bdobrica/Kotoba/internal/kotoba/turn"
)

// App holds the wired components.
type App struct {
	cfg       *config.Config
	db        *store.Store // nil without a DB path
	sealer    *crypto.Sealer
	exec      *ops.Executor
	turns     *turn.Controller
	startedAt time.Time
}

// New builds every component from cfg. Nothing listens or syncs until Run.
func New(cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg, startedAt: time.Now()}

	var opts ops.Options
	if cfg.DBPath != "" {
		db, err := store.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.db = db
		opts.Recorder = db
	} else {
		slog.Warn("no database configured; operation audit trail disabled")
	}

	if cfg.MasterKey != "" {
		sealer, err := crypto.ParseSealer(cfg.MasterKey)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("master key: %w", err)
		}
		a.sealer = sealer
	}

	reg := registry.Default()
	client := backend.New(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.Backend.Timeout,
	})
	exec, err := ops.NewExecutor(reg, client, opts)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build executor: %w", err)
	}
	a.exec = exec

	// An untyped nil keeps the controller on the fallback path.
	var primary turn.Resolver
	if cfg.LLM.Enabled() {
		provider := llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Timeout:     cfg.LLM.Timeout,
			MaxAttempts: cfg.LLM.MaxAttempts,
		})
		primary = nlp.NewResolver(provider, exec, reg, nlp.ResolverConfig{
			Model:     cfg.LLM.Model,
			MaxTokens: cfg.LLM.MaxTokens,
			Limiter: nlp.NewLimiter(nlp.LimiterConfig{
				CallLimit:   cfg.LLM.CallLimit,
				TokenBudget: cfg.LLM.TokenBudget,
			}),
		})
		slog.Info("LLM resolver enabled", "model", provider.Model())
	} else {
		slog.Warn("no LLM API key configured; every turn uses the keyword resolver")
	}
	a.turns = turn.New(primary, nlp.NewFallback(exec))
	return a, nil
}

// Turns returns the turn controller.
func (a *App) Turns() *turn.Controller { return a.turns }

// Executor returns the operation executor.
func (a *App) Executor() *ops.Executor { return a.exec }

// Store returns the store, or nil when no database is configured.
func (a *App) Store() *store.Store { return a.db }

// Handlers returns the HTTP server's dependencies.
func (a *App) Handlers() api.Handlers {
	h := api.Handlers{
		Version:    version.Version,
		StartedAt:  a.startedAt,
		Token:      a.cfg.ControlToken,
		LLMEnabled: a.cfg.LLM.Enabled(),
		Turns:      a.turns,
		Executor:   a.exec,
	}
	if a.db != nil {
		h.Audit = a.db
	}
	return h
}

// Run starts the HTTP server and, when configured, the Matrix bot, then
// blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Serve(ctx)
}

// Serve is Run with an explicit lifetime: it returns when ctx is done.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := api.New(a.cfg.ListenAddr, a.Handlers())
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start api server: %w", err)
	}
	defer srv.Stop()

	if a.cfg.Matrix.Enabled() {
		mx, err := a.startMatrix(ctx)
		if err != nil {
			return fmt.Errorf("start matrix: %w", err)
		}
		defer mx.Stop()
	}

	slog.Info("Kotoba started", "version", version.Version, "addr", a.cfg.ListenAddr)
	<-ctx.Done()
	slog.Info("shutting down")
	return nil
}

func (a *App) startMatrix(ctx context.Context) (*matrix.Client, error) {
	mcfg := matrix.Config{
		Homeserver:  a.cfg.Matrix.Homeserver,
		UserID:      a.cfg.Matrix.UserID,
		AccessToken: a.cfg.Matrix.AccessToken,
		Rooms:       a.cfg.Matrix.Rooms,
	}
	var accounts matrix.Accounts
	if a.db != nil {
		mcfg.SyncStore = a.db.SyncStore()
		if a.sealer == nil {
			slog.Warn("no master key configured; linked-account credentials are stored unsealed")
		}
		accounts = a.db.Accounts(a.sealer)
	}
	mx, err := matrix.New(mcfg)
	if err != nil {
		return nil, err
	}
	bot := matrix.NewBot(a.turns, accounts, mx)
	if err := mx.Start(ctx, bot.Handle); err != nil {
		return nil, err
	}
	return mx, nil
}

// Close releases the store.
func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}
