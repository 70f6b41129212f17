package finnhub

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	finnhub "github.com/Finnhub-Stock-API/finnhub-go/v2"

	"stock_digest/internal/domain"
)

const (
	SourceID  = "finnhub"
	dayLayout = "2006-01-02"
)

// Config holds Finnhub source configuration.
type Config struct {
	APIKey         string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Source fetches market and company news from the Finnhub REST API.
type Source struct {
	httpClient     *http.Client
	api            *finnhub.DefaultApiService
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Source {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	apiCfg := finnhub.NewConfiguration()
	apiCfg.AddDefaultHeader("X-Finnhub-Token", cfg.APIKey)
	apiCfg.UserAgent = "StockDigest/1.0"
	apiCfg.HTTPClient = httpClient

	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &Source{
		httpClient:     httpClient,
		api:            finnhub.NewAPIClient(apiCfg).DefaultApi,
		maxAttempts:    maxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("source", SourceID),
	}
}

// FetchGeneral returns the general market news feed in upstream order.
func (s *Source) FetchGeneral(ctx context.Context) ([]domain.NewsItem, error) {
	var items []domain.NewsItem

	err := s.withRetry(ctx, "market news", func(ctx context.Context) error {
		res, _, err := s.api.MarketNews(ctx).Category("general").Execute()
		if err != nil {
			return err
		}
		items = make([]domain.NewsItem, 0, len(res))
		for i := range res {
			items = append(items, toNewsItem(&res[i]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch market news: %w", err)
	}

	s.logger.Debug("fetched market news", "count", len(items))
	return items, nil
}

// FetchForSymbol returns company news for symbol published between from and
// to. Finnhub filters by calendar day.
func (s *Source) FetchForSymbol(ctx context.Context, symbol string, from, to time.Time) ([]domain.NewsItem, error) {
	var items []domain.NewsItem

	err := s.withRetry(ctx, "company news", func(ctx context.Context) error {
		res, _, err := s.api.CompanyNews(ctx).
			Symbol(symbol).
			From(from.Format(dayLayout)).
			To(to.Format(dayLayout)).
			Execute()
		if err != nil {
			return err
		}
		items = make([]domain.NewsItem, 0, len(res))
		for i := range res {
			items = append(items, toNewsItem(&res[i]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch company news for %s: %w", symbol, err)
	}

	s.logger.Debug("fetched company news", "symbol", symbol, "count", len(items))
	return items, nil
}

func (s *Source) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}

		if attempt == s.maxAttempts {
			break
		}

		backoff := s.calculateBackoff(attempt)
		s.logger.Warn("request failed, retrying",
			"op", op,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("after %d attempts: %w", s.maxAttempts, err)
}

func (s *Source) calculateBackoff(attempt int) time.Duration {
	backoff := s.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if s.maxBackoff > 0 && backoff > s.maxBackoff {
		backoff = s.maxBackoff
	}
	return backoff
}

// newsRecord is satisfied by both finnhub.MarketNews and finnhub.CompanyNews.
type newsRecord interface {
	GetId() int64
	GetHeadline() string
	GetSummary() string
	GetSource() string
	GetUrl() string
	GetDatetime() int64
	GetCategory() string
	GetRelated() string
	GetImage() string
}

func toNewsItem(r newsRecord) domain.NewsItem {
	return domain.NewsItem{
		ID:             r.GetId(),
		Headline:       r.GetHeadline(),
		Summary:        r.GetSummary(),
		Source:         r.GetSource(),
		URL:            r.GetUrl(),
		PublishedAt:    r.GetDatetime(),
		Category:       r.GetCategory(),
		RelatedSymbols: splitRelated(r.GetRelated()),
		Image:          r.GetImage(),
	}
}

func splitRelated(related string) []string {
	if strings.TrimSpace(related) == "" {
		return nil
	}
	var symbols []string
	for _, s := range strings.Split(related, ",") {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, s)
		}
	}
	return symbols
}
