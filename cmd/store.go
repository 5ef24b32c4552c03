package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadflow/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.Path
		if dsn == "" {
			dsn = "leadflow.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
