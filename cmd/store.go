package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/searchlab/ablate/internal/docstore"
	"github.com/searchlab/ablate/internal/report"
	"github.com/searchlab/ablate/internal/resilience"
	"github.com/searchlab/ablate/internal/truth"
)

// env bundles the stores every command works against.
type env struct {
	store  docstore.Store
	truth  *truth.Store
	report *report.Store
}

func (e *env) Close() {
	_ = e.store.Close()
}

// openEnv opens the configured document store, wraps it with retry and
// rate limiting, and wires the truth and report stores over it.
func openEnv(ctx context.Context) (*env, error) {
	var (
		inner docstore.Store
		err   error
	)
	switch cfg.Store.Driver {
	case "sqlite", "":
		inner, err = docstore.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		inner, err = docstore.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	retry := resilience.FromRetryConfig(
		cfg.Store.RetryAttempts,
		cfg.Store.RetryBackoffMs,
		cfg.Store.RetryMaxMs,
		cfg.Store.RetryMult,
		cfg.Store.RetryJitter,
	)
	store := docstore.WithResilience(inner, cfg.Store.RateLimit, cfg.Store.Burst, retry)
	return &env{
		store:  store,
		truth:  truth.NewStore(store, cfg.Truth.Collection),
		report: report.NewStore(store, cfg.Truth.RunCollection, cfg.Truth.ResultCollection),
	}, nil
}
