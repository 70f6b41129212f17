package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"stock_digest/internal/domain"
)

const uniqueViolation = pq.ErrorCode("23505")

type WatchlistStore struct {
	db *sqlx.DB
}

func NewWatchlistStore(db *sqlx.DB) *WatchlistStore {
	return &WatchlistStore{db: db}
}

// Add inserts the (account, symbol) pair. A unique violation means another
// writer got there first and is reported as AddAlreadyPresent.
func (s *WatchlistStore) Add(ctx context.Context, accountID, symbol, companyName string) (domain.AddResult, error) {
	symbol = domain.NormalizeSymbol(symbol)

	// The second attempt covers a concurrent remove between our failed insert
	// and the re-check.
	for attempt := 1; attempt <= 2; attempt++ {
		err := s.insert(ctx, accountID, symbol, companyName)
		if err == nil {
			return domain.AddCreated, nil
		}
		if !isUniqueViolation(err) {
			return "", fmt.Errorf("insert watchlist entry: %w", err)
		}

		exists, err := s.Contains(ctx, accountID, symbol)
		if err != nil {
			return "", fmt.Errorf("recheck watchlist entry: %w", err)
		}
		if exists {
			return domain.AddAlreadyPresent, nil
		}
	}

	return domain.AddAlreadyPresent, nil
}

func (s *WatchlistStore) insert(ctx context.Context, accountID, symbol, companyName string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO watchlist (account_id, symbol, company_name, added_at)
		 VALUES ($1, $2, $3, NOW())`,
		accountID, symbol, companyName,
	)
	return err
}

func (s *WatchlistStore) Remove(ctx context.Context, accountID, symbol string) (domain.RemoveResult, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM watchlist WHERE account_id = $1 AND symbol = $2`,
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

func (s *WatchlistStore) ListSymbols(ctx context.Context, accountID string) ([]string, error) {
	symbols := []string{}
	err := s.db.SelectContext(ctx, &symbols,
		`SELECT symbol FROM watchlist WHERE account_id = $1 ORDER BY added_at, symbol`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("select symbols: %w", err)
	}
	return symbols, nil
}

func (s *WatchlistStore) ListEntries(ctx context.Context, accountID string) ([]domain.WatchlistEntry, error) {
	entries := []domain.WatchlistEntry{}
	err := s.db.SelectContext(ctx, &entries,
		`SELECT account_id, symbol, company_name, added_at
		 FROM watchlist WHERE account_id = $1 ORDER BY added_at, symbol`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("select entries: %w", err)
	}
	return entries, nil
}

func (s *WatchlistStore) Contains(ctx context.Context, accountID, symbol string) (bool, error) {
	var one int
	err := s.db.GetContext(ctx, &one,
		`SELECT 1 FROM watchlist WHERE account_id = $1 AND symbol = $2`,
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

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
