// Package sqlite implements the watchlist and account stores on an embedded
// SQLite database. It backs local development and single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"stock_digest/internal/domain"
	"stock_digest/migrations"
)

// Fixed width so that lexical order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type DB struct {
	db *sqlx.DB
}

// Open opens the database at dsn and applies pending migrations. A single
// connection is kept open so that writes are serialized.
func Open(dsn string) (*DB, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db.DB, migrations.DialectSQLite); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DB) Add(ctx context.Context, accountID, symbol, companyName string) (domain.AddResult, error) {
	symbol = domain.NormalizeSymbol(symbol)

	for attempt := 1; attempt <= 2; attempt++ {
		_, err := d.db.ExecContext(ctx,
			`INSERT INTO watchlist (account_id, symbol, company_name, added_at) VALUES (?, ?, ?, ?)`,
			accountID, symbol, companyName, time.Now().UTC().Format(timeLayout),
		)
		if err == nil {
			return domain.AddCreated, nil
		}
		if !isUniqueViolation(err) {
			return "", fmt.Errorf("insert watchlist entry: %w", err)
		}

		exists, err := d.Contains(ctx, accountID, symbol)
		if err != nil {
			return "", fmt.Errorf("recheck watchlist entry: %w", err)
		}
		if exists {
			return domain.AddAlreadyPresent, nil
		}
	}

	return domain.AddAlreadyPresent, nil
}

func (d *DB) Remove(ctx context.Context, accountID, symbol string) (domain.RemoveResult, error) {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM watchlist WHERE account_id = ? AND symbol = ?`,
		accountID, domain.NormalizeSymbol(symbol),
	)
	if err != nil {
		return "", fmt.Errorf("delete watchlist entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.RemoveNotPresent, nil
	}
	return domain.RemoveRemoved, nil
}

func (d *DB) ListSymbols(ctx context.Context, accountID string) ([]string, error) {
	symbols := []string{}
	err := d.db.SelectContext(ctx, &symbols,
		`SELECT symbol FROM watchlist WHERE account_id = ? ORDER BY added_at, symbol`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("select symbols: %w", err)
	}
	return symbols, nil
}

type entryRow struct {
	AccountID   string `db:"account_id"`
	Symbol      string `db:"symbol"`
	CompanyName string `db:"company_name"`
	AddedAt     string `db:"added_at"`
}

func (d *DB) ListEntries(ctx context.Context, accountID string) ([]domain.WatchlistEntry, error) {
	var rows []entryRow
	err := d.db.SelectContext(ctx, &rows,
		`SELECT account_id, symbol, company_name, added_at
		 FROM watchlist WHERE account_id = ? ORDER BY added_at, symbol`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("select entries: %w", err)
	}

	entries := make([]domain.WatchlistEntry, 0, len(rows))
	for _, r := range rows {
		addedAt, err := time.Parse(timeLayout, r.AddedAt)
		if err != nil {
			return nil, fmt.Errorf("parse added_at %q: %w", r.AddedAt, err)
		}
		entries = append(entries, domain.WatchlistEntry{
			AccountID:   r.AccountID,
			Symbol:      r.Symbol,
			CompanyName: r.CompanyName,
			AddedAt:     addedAt,
		})
	}
	return entries, nil
}

func (d *DB) Contains(ctx context.Context, accountID, symbol string) (bool, error) {
	var one int
	err := d.db.GetContext(ctx, &one,
		`SELECT 1 FROM watchlist WHERE account_id = ? AND symbol = ?`,
		accountID, domain.NormalizeSymbol(symbol),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("select entry: %w", err)
	}
	return true, nil
}

func (d *DB) ListAccountsForDigest(ctx context.Context) ([]domain.Account, error) {
	accounts := []domain.Account{}
	err := d.db.SelectContext(ctx, &accounts,
		`SELECT id, email, name FROM users WHERE email <> '' ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select accounts: %w", err)
	}
	return accounts, nil
}

func (d *DB) ResolveAccountID(ctx context.Context, email string) (string, error) {
	var id string
	err := d.db.GetContext(ctx, &id, `SELECT id FROM users WHERE email = ?`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrAccountNotFound
	}
	if err != nil {
		return "", fmt.Errorf("select account: %w", err)
	}
	return id, nil
}

// UpsertAccount seeds or refreshes an account row.
func (d *DB) UpsertAccount(ctx context.Context, account domain.Account) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET email = excluded.email, name = excluded.name`,
		account.ID, account.Email, account.Name,
	)
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
