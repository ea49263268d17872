package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/normalize"
	"github.com/sells-group/prospect-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "prospect.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initSuburbs() normalize.SuburbTable {
	if cfg.Suburbs.Path == "" {
		return normalize.DefaultSuburbs()
	}
	table, err := normalize.LoadSuburbs(cfg.Suburbs.Path)
	if err != nil {
		zap.L().Warn("suburb table load failed, using built-in list",
			zap.String("path", cfg.Suburbs.Path), zap.Error(err))
		return normalize.DefaultSuburbs()
	}
	return table
}
