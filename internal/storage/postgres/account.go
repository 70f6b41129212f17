package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"stock_digest/internal/domain"
)

// AccountStore reads accounts owned by the auth system. It never writes.
type AccountStore struct {
	db *sqlx.DB
}

func NewAccountStore(db *sqlx.DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) ListAccountsForDigest(ctx context.Context) ([]domain.Account, error) {
	accounts := []domain.Account{}
	err := s.db.SelectContext(ctx, &accounts,
		`SELECT id, email, name FROM users WHERE email <> '' ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select accounts: %w", err)
	}
	return accounts, nil
}

func (s *AccountStore) ResolveAccountID(ctx context.Context, email string) (string, error) {
	var id string
	err := s.db.GetContext(ctx, &id, `SELECT id FROM users WHERE email = $1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrAccountNotFound
	}
	if err != nil {
		return "", fmt.Errorf("select account: %w", err)
	}
	return id, nil
}

func (s *AccountStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
