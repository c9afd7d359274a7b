package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/fullcount-labs/athlete-cli/internal/config"
	"github.com/fullcount-labs/athlete-cli/internal/identity"
	"github.com/fullcount-labs/athlete-cli/internal/store"
	"github.com/fullcount-labs/athlete-cli/pkg/appdb"
)

// openStore opens the configured backend and runs migrations.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.SQLitePath)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// newAuthority builds the app database client when one is configured.
func newAuthority(cfg *config.Config) identity.Authority {
	if cfg.AppDB.BaseURL == "" {
		return nil
	}
	opts := []appdb.Option{
		appdb.WithKey(cfg.AppDB.Key),
		appdb.WithRateLimit(cfg.AppDB.RequestsPerSec),
	}
	if cfg.AppDB.TimeoutSecs > 0 {
		opts = append(opts, appdb.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.AppDB.TimeoutSecs) * time.Second,
		}))
	}
	return appdb.New(cfg.AppDB.BaseURL, opts...)
}
