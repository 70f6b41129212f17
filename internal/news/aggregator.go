// Package news assembles bounded, deduplicated news lists from a news source.
package news

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"stock_digest/internal/domain"
)

var (
	ErrNoSymbols         = errors.New("no valid symbols provided")
	ErrSourceUnavailable = errors.New("news source unavailable")
)

// Source is the upstream news provider.
type Source interface {
	FetchGeneral(ctx context.Context) ([]domain.NewsItem, error)
	FetchForSymbol(ctx context.Context, symbol string, from, to time.Time) ([]domain.NewsItem, error)
}

type Config struct {
	MaxItems     int
	MaxRounds    int
	Window       time.Duration
	FetchTimeout time.Duration
	Concurrency  int
}

func DefaultConfig() Config {
	return Config{
		MaxItems:     6,
		MaxRounds:    6,
		Window:       5 * 24 * time.Hour,
		FetchTimeout: 10 * time.Second,
		Concurrency:  4,
	}
}

type Aggregator struct {
	source Source
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

func NewAggregator(source Source, cfg Config, logger *slog.Logger) *Aggregator {
	def := DefaultConfig()
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = def.MaxItems
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = def.MaxRounds
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}

	return &Aggregator{
		source: source,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With("component", "news_aggregator"),
	}
}

// General returns up to MaxItems valid, deduplicated items from the general
// feed in upstream order.
func (a *Aggregator) General(ctx context.Context) ([]domain.NewsItem, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
	defer cancel()

	items, err := a.source.FetchGeneral(fetchCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	seen := make(map[string]struct{}, len(items))
	result := make([]domain.NewsItem, 0, a.cfg.MaxItems)
	for _, item := range items {
		key := item.DedupKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if !item.Valid() {
			continue
		}
		result = append(result, item)
		if len(result) == a.cfg.MaxItems {
			break
		}
	}

	a.logger.Debug("aggregated general news", "fetched", len(items), "returned", len(result))
	return result, nil
}

// ForSymbols samples news round-robin across symbols: round r takes the r-th
// item of each symbol's feed when it is valid. The result holds at most
// MaxItems entries sorted newest first.
func (a *Aggregator) ForSymbols(ctx context.Context, symbols []string) ([]domain.NewsItem, error) {
	cleaned := cleanSymbols(symbols)
	if len(cleaned) == 0 {
		return nil, ErrNoSymbols
	}

	to := a.now()
	from := to.Add(-a.cfg.Window)

	feeds := make(map[string][]domain.NewsItem, len(cleaned))
	var (
		attempts int
		failures int
		lastErr  error
	)

	result := make([]domain.NewsItem, 0, a.cfg.MaxItems)

	for round := 0; round < a.cfg.MaxRounds && len(result) < a.cfg.MaxItems; round++ {
		for start := 0; start < len(cleaned) && len(result) < a.cfg.MaxItems; {
			// Never visit more symbols than items still needed so the
			// cap is reached in input order.
			need := a.cfg.MaxItems - len(result)
			end := min(start+need, len(cleaned))
			chunk := cleaned[start:end]
			start = end

			missing := make([]string, 0, len(chunk))
			for _, sym := range chunk {
				if _, ok := feeds[sym]; !ok {
					missing = append(missing, sym)
				}
			}

			fetched, errs := a.fetchAll(ctx, missing, from, to)
			attempts += len(missing)
			for sym, items := range fetched {
				feeds[sym] = items
			}
			for sym, err := range errs {
				failures++
				lastErr = err
				a.logger.Warn("symbol fetch failed, skipping for this round",
					"symbol", sym,
					"round", round,
					"error", err,
				)
			}

			for _, sym := range chunk {
				feed, ok := feeds[sym]
				if !ok || round >= len(feed) {
					continue
				}
				if item := feed[round]; item.Valid() {
					result = append(result, item)
				}
			}
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	if attempts > 0 && failures == attempts {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, lastErr)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].PublishedAt > result[j].PublishedAt
	})

	a.logger.Debug("aggregated symbol news",
		"symbols", len(cleaned),
		"fetches", attempts,
		"failures", failures,
		"returned", len(result),
	)
	return result, nil
}

func (a *Aggregator) fetchAll(ctx context.Context, symbols []string, from, to time.Time) (map[string][]domain.NewsItem, map[string]error) {
	var (
		mu      sync.Mutex
		fetched = make(map[string][]domain.NewsItem, len(symbols))
		errs    = make(map[string]error)
	)

	var g errgroup.Group
	g.SetLimit(a.cfg.Concurrency)

	for _, sym := range symbols {
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
			defer cancel()

			items, err := a.source.FetchForSymbol(fetchCtx, sym, from, to)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[sym] = err
				return nil
			}
			fetched[sym] = items
			return nil
		})
	}
	_ = g.Wait()

	return fetched, errs
}

func cleanSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	cleaned := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = domain.NormalizeSymbol(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		cleaned = append(cleaned, s)
	}
	return cleaned
}
