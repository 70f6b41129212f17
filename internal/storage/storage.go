// Package storage opens the configured database backend.
package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"stock_digest/internal/config"
	"stock_digest/internal/domain"
	"stock_digest/internal/storage/postgres"
	"stock_digest/internal/storage/sqlite"
)

type WatchlistStore interface {
	Add(ctx context.Context, accountID, symbol, companyName string) (domain.AddResult, error)
	Remove(ctx context.Context, accountID, symbol string) (domain.RemoveResult, error)
	ListSymbols(ctx context.Context, accountID string) ([]string, error)
	ListEntries(ctx context.Context, accountID string) ([]domain.WatchlistEntry, error)
	Contains(ctx context.Context, accountID, symbol string) (bool, error)
}

type AccountStore interface {
	ListAccountsForDigest(ctx context.Context) ([]domain.Account, error)
	ResolveAccountID(ctx context.Context, email string) (string, error)
	Ping(ctx context.Context) error
}

type Stores struct {
	Watchlist WatchlistStore
	Accounts  AccountStore
	close     func() error
}

func (s *Stores) Close() error {
	return s.close()
}

// Open connects to the backend named by cfg.Driver. Postgres schemas are
// managed by cmd/migrate; SQLite files are migrated on open.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Stores, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		return &Stores{
			Watchlist: postgres.NewWatchlistStore(db),
			Accounts:  postgres.NewAccountStore(db),
			close:     db.Close,
		}, nil

	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.DSN())
		if err != nil {
			return nil, err
		}
		return &Stores{
			Watchlist: db,
			Accounts:  db,
			close:     db.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
