package digest

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"stock_digest/internal/domain"
)

type AccountDirectory interface {
	ListAccountsForDigest(ctx context.Context) ([]domain.Account, error)
}

type WatchlistReader interface {
	ListSymbols(ctx context.Context, accountID string) ([]string, error)
}

type NewsProvider interface {
	General(ctx context.Context) ([]domain.NewsItem, error)
	ForSymbols(ctx context.Context, symbols []string) ([]domain.NewsItem, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, news []domain.NewsItem) (string, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, recipient, date, body string) error
}
