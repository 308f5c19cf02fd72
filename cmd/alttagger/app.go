package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/chriskillpack/alttagger"
	"github.com/chriskillpack/alttagger/describer"
	"github.com/chriskillpack/alttagger/internal/config"
	"github.com/chriskillpack/alttagger/internal/postgres"
	"github.com/chriskillpack/alttagger/internal/processing"
	"github.com/chriskillpack/alttagger/internal/retry"
	"github.com/chriskillpack/alttagger/internal/runstate"
	"github.com/chriskillpack/alttagger/internal/session"
)

// app holds everything a command needs to run processing steps.
type app struct {
	cfg    *config.Config
	db     *alttagger.DB
	lib    *alttagger.Library
	pool   *pgxpool.Pool
	tagger *alttagger.Tagger
	proc   *processing.Processor
}

// openApp opens the database and session state. The describer backend is
// only connected when withDescriber is set, so commands that never call a
// provider work without API keys.
func openApp(ctx context.Context, cfg *config.Config, withDescriber bool) (*app, error) {
	if withDescriber {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	var err error
	if a.db, err = alttagger.NewDB(ctx, cfg.DBPath); err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DBPath, err)
	}
	if a.lib, err = a.db.Library(cfg.Library); err != nil {
		return nil, err
	}

	var (
		store  runstate.Store
		locker processing.Locker = &processing.MutexLocker{}
	)
	switch {
	case cfg.State == config.StateMemory:
		store = runstate.NewMemory()
	case cfg.Postgres():
		if a.pool, err = postgres.NewPool(ctx, cfg.State); err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, a.pool); err != nil {
			return nil, err
		}
		store = postgres.NewRunState(a.pool)
		locker = postgres.NewLock(a.pool, "alttagger:"+cfg.Session+":step")
	default:
		store = a.db.RunState()
	}

	var d describer.Describer
	if withDescriber {
		a.tagger, err = alttagger.Init(ctx, alttagger.InitOptions{
			Provider:     cfg.Provider,
			APIKey:       cfg.APIKey(),
			BaseURL:      cfg.BaseURL,
			LlamaServer:  cfg.LlamaURL,
			LlamaSeed:    cfg.LlamaSeed,
			OllamaServer: cfg.OllamaURL,
			HttpClient:   &http.Client{},
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", processing.ErrConfiguration, err)
		}
		d = a.tagger.Describer
	}

	policy, err := cfg.Policy()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", processing.ErrConfiguration, err)
	}

	a.proc = processing.New(a.lib, d, session.New(store, cfg.Session, cfg.SessionTTL), policy,
		processing.WithLocker(locker),
		processing.WithRetryOptions(retry.WithCallTimeout(cfg.CallTimeout)),
	)

	log.Debug().
		Str("db", cfg.DBPath).
		Str("library", a.lib.Root()).
		Str("session", cfg.Session).
		Str("state", stateName(cfg)).
		Msg("opened")

	ok = true
	return a, nil
}

func stateName(cfg *config.Config) string {
	if cfg.Postgres() {
		return "postgres"
	}
	return cfg.State
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
