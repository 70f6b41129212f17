package watchlist

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"stock_digest/internal/domain"
)

type Store interface {
	Add(ctx context.Context, accountID, symbol, companyName string) (domain.AddResult, error)
	Remove(ctx context.Context, accountID, symbol string) (domain.RemoveResult, error)
	ListSymbols(ctx context.Context, accountID string) ([]string, error)
	ListEntries(ctx context.Context, accountID string) ([]domain.WatchlistEntry, error)
	Contains(ctx context.Context, accountID, symbol string) (bool, error)
}

type AccountResolver interface {
	ResolveAccountID(ctx context.Context, email string) (string, error)
}

type Publisher interface {
	Publish(event domain.MembershipChangeEvent)
}
