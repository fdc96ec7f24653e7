package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/engine"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/store"
)

// openStore opens the configured backend wrapped with retries and a circuit
// breaker.
func openStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("cli"); err != nil {
		return nil, err
	}

	var (
		next store.Store
		err  error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		next, err = store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		next, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	breaker := store.NewBreaker(cfg.Breaker.Breaker(nil, nil))
	return store.NewResilient(next, cfg.Retry.Policy(), breaker), nil
}

// openEngine opens the store and builds the engine over it. The caller
// closes the store.
func openEngine(ctx context.Context) (*engine.Engine, store.Store, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	eng, err := engine.New(st, cfg.Engine())
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	return eng, st, nil
}
