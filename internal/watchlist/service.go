// Package watchlist exposes watchlist operations keyed by the caller's email
// and announces successful mutations on the membership bus.
package watchlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"stock_digest/internal/domain"
)

var ErrInvalidSymbol = errors.New("symbol is required")

type Service struct {
	store     Store
	accounts  AccountResolver
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(store Store, accounts AccountResolver, publisher Publisher, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		accounts:  accounts,
		publisher: publisher,
		logger:    logger.With("component", "watchlist"),
		now:       time.Now,
	}
}

// Resolve maps an email to an account id. Unknown emails return
// domain.ErrAccountNotFound.
func (s *Service) Resolve(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", domain.ErrAccountNotFound
	}
	id, err := s.accounts.ResolveAccountID(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return "", err
		}
		return "", fmt.Errorf("resolve account: %w", err)
	}
	return id, nil
}

func (s *Service) Add(ctx context.Context, email, symbol, companyName string) (domain.AddResult, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return "", ErrInvalidSymbol
	}
	companyName = strings.TrimSpace(companyName)
	if companyName == "" {
		companyName = symbol
	}

	accountID, err := s.Resolve(ctx, email)
	if err != nil {
		return "", err
	}

	result, err := s.store.Add(ctx, accountID, symbol, companyName)
	if err != nil {
		return "", fmt.Errorf("add to watchlist: %w", err)
	}

	if result == domain.AddCreated {
		s.publish(accountID, symbol, companyName, domain.MembershipAdded)
	}

	s.logger.Debug("watchlist add", "account_id", accountID, "symbol", symbol, "result", result)
	return result, nil
}

func (s *Service) Remove(ctx context.Context, email, symbol string) (domain.RemoveResult, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return "", ErrInvalidSymbol
	}

	accountID, err := s.Resolve(ctx, email)
	if err != nil {
		return "", err
	}

	result, err := s.store.Remove(ctx, accountID, symbol)
	if err != nil {
		return "", fmt.Errorf("remove from watchlist: %w", err)
	}

	if result == domain.RemoveRemoved {
		s.publish(accountID, symbol, "", domain.MembershipRemoved)
	}

	s.logger.Debug("watchlist remove", "account_id", accountID, "symbol", symbol, "result", result)
	return result, nil
}

// Symbols returns an empty list together with ErrAccountNotFound for unknown
// emails so callers can choose to treat both alike.
func (s *Service) Symbols(ctx context.Context, email string) ([]string, error) {
	accountID, err := s.Resolve(ctx, email)
	if err != nil {
		return []string{}, err
	}
	return s.store.ListSymbols(ctx, accountID)
}

func (s *Service) Entries(ctx context.Context, email string) ([]domain.WatchlistEntry, error) {
	accountID, err := s.Resolve(ctx, email)
	if err != nil {
		return []domain.WatchlistEntry{}, err
	}
	return s.store.ListEntries(ctx, accountID)
}

func (s *Service) Contains(ctx context.Context, email, symbol string) (bool, error) {
	accountID, err := s.Resolve(ctx, email)
	if err != nil {
		return false, err
	}
	return s.store.Contains(ctx, accountID, domain.NormalizeSymbol(symbol))
}

func (s *Service) publish(accountID, symbol, companyName string, action domain.MembershipAction) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(domain.MembershipChangeEvent{
		AccountID:   accountID,
		Symbol:      symbol,
		CompanyName: companyName,
		Action:      action,
		OccurredAt:  s.now().UTC(),
	})
}
