// Package backend opens the Store selected by the DATABASE_URL scheme.
package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/hanguk-bookings/internal/repo"
	"github.com/diagnosis/hanguk-bookings/internal/repo/memory"
	"github.com/diagnosis/hanguk-bookings/internal/repo/mongodb"
	"github.com/diagnosis/hanguk-bookings/internal/repo/postgres"
	"github.com/diagnosis/hanguk-bookings/pkg/config"
	"github.com/diagnosis/hanguk-bookings/pkg/database"
	"github.com/diagnosis/hanguk-bookings/pkg/logger"
)

// Open connects, migrates and returns the store. The pool is non-nil only
// for Postgres, where other components may share it.
func Open(ctx context.Context, cfg *config.Config) (repo.Store, *pgxpool.Pool, error) {
	url := cfg.Database.URL
	switch Scheme(url) {
	case "postgres":
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		store := postgres.New(pool, cfg.Database.StoreTimeout)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool, nil

	case "mongodb":
		client, dbName, err := database.ConnectMongo(ctx, url, cfg.Database.MaxConns)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to mongodb: %w", err)
		}
		store := mongodb.New(client, dbName, cfg.Database.StoreTimeout)
		if err := store.EnsureIndexes(ctx, cfg.Audit.Retention); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return store, nil, nil

	case "memory":
		logger.Warn("Using in-memory store; data is lost on restart")
		return memory.New(nil), nil, nil

	default:
		return nil, nil, fmt.Errorf("unsupported DATABASE_URL scheme")
	}
}

// Scheme names the backend a database URL selects, or "" if none.
func Scheme(url string) string {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(url, "mongodb://"), strings.HasPrefix(url, "mongodb+srv://"):
		return "mongodb"
	case strings.HasPrefix(url, "memory://"):
		return "memory"
	}
	return ""
}
