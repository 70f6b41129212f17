// Package digest runs the daily per-account news digest.
package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"stock_digest/internal/config"
	"stock_digest/internal/domain"
	"stock_digest/internal/news"
)

const (
	FallbackText = "No news available today."
	dateLayout   = "Monday, January 2, 2006"
)

type Orchestrator struct {
	accounts   AccountDirectory
	watchlists WatchlistReader
	news       NewsProvider
	summarizer Summarizer
	deliverer  Deliverer
	logger     *slog.Logger
	config     config.DigestConfig
	now        func() time.Time
}

func NewOrchestrator(
	accounts AccountDirectory,
	watchlists WatchlistReader,
	newsProvider NewsProvider,
	summarizer Summarizer,
	deliverer Deliverer,
	logger *slog.Logger,
	cfg config.DigestConfig,
) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Orchestrator{
		accounts:   accounts,
		watchlists: watchlists,
		news:       newsProvider,
		summarizer: summarizer,
		deliverer:  deliverer,
		logger:     logger.With("component", "digest"),
		config:     cfg,
		now:        time.Now,
	}
}

// prepared is a digest body ready for delivery.
type prepared struct {
	account     domain.Account
	body        string
	newsCount   int
	usedGeneral bool
}

// accountResult is one account's journey through the prepare stage. Exactly
// one of ready or outcome is set.
type accountResult struct {
	ready   *prepared
	outcome *domain.AccountOutcome
}

// Run executes one digest pass over every account. It returns an error only
// when accounts cannot be loaded; per-account failures land in the report.
func (o *Orchestrator) Run(ctx context.Context) (*domain.DigestReport, error) {
	startedAt := o.now()
	report := domain.NewDigestReport(uuid.NewString(), startedAt)
	logger := o.logger.With("run_id", report.RunID)

	logger.Info("starting digest run", "concurrency", o.config.Concurrency)

	accounts, err := o.accounts.ListAccountsForDigest(ctx)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	if len(accounts) == 0 {
		logger.Info("no accounts to process")
		report.Duration = time.Since(startedAt)
		return report, nil
	}

	general := newSharedNews(o.news.General)
	results := o.prepareAll(ctx, logger, accounts, general)

	var ready []prepared
	for _, r := range results {
		if r.outcome != nil {
			report.Record(*r.outcome)
			continue
		}
		ready = append(ready, *r.ready)
	}

	date := startedAt.In(o.config.Location()).Format(dateLayout)
	for _, outcome := range o.deliverAll(ctx, logger, ready, date) {
		report.Record(outcome)
	}

	report.Duration = time.Since(startedAt)

	logger.Info("digest run completed",
		"processed", report.Processed,
		"delivered", report.Delivered,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"duration", report.Duration,
	)

	return report, nil
}

// prepareAll stops scheduling accounts once ctx is cancelled. Accounts already
// in flight finish on a context detached from cancellation; their individual
// calls stay bounded by timeouts.
func (o *Orchestrator) prepareAll(ctx context.Context, logger *slog.Logger, accounts []domain.Account, general *sharedNews) []accountResult {
	results := make([]accountResult, len(accounts))
	workCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(o.config.Concurrency)

	for i, account := range accounts {
		if ctx.Err() != nil {
			results[i] = skip(account, "run cancelled")
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = skip(account, "run cancelled")
				return nil
			}
			results[i] = o.prepareAccount(workCtx, logger.With("account_id", account.ID), account, general)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (o *Orchestrator) prepareAccount(ctx context.Context, logger *slog.Logger, account domain.Account, general *sharedNews) accountResult {
	if strings.TrimSpace(account.Email) == "" {
		return skip(account, "no email address")
	}

	symbols, err := o.listSymbols(ctx, account.ID)
	if err != nil {
		logger.Error("failed to resolve watchlist", "error", err)
		return fail(account, fmt.Sprintf("resolve watchlist: %v", err))
	}

	items, usedGeneral, err := o.fetchNews(ctx, symbols, general)
	if err != nil {
		logger.Error("failed to fetch news", "symbols", len(symbols), "error", err)
		return fail(account, fmt.Sprintf("fetch news: %v", err))
	}

	body := FallbackText
	if len(items) > 0 {
		text, err := o.summarize(ctx, items)
		if err != nil {
			logger.Error("failed to summarize news", "error", err)
			return fail(account, fmt.Sprintf("summarize: %v", err))
		}
		if strings.TrimSpace(text) != "" {
			body = text
		} else {
			logger.Warn("summarizer returned no content, using fallback")
		}
	}

	logger.Debug("prepared digest", "news", len(items), "general", usedGeneral)

	return accountResult{ready: &prepared{
		account:     account,
		body:        body,
		newsCount:   len(items),
		usedGeneral: usedGeneral,
	}}
}

func (o *Orchestrator) listSymbols(ctx context.Context, accountID string) ([]string, error) {
	ctx, cancel := o.withTimeout(ctx, o.config.WatchlistTimeout)
	defer cancel()
	return o.watchlists.ListSymbols(ctx, accountID)
}

func (o *Orchestrator) fetchNews(ctx context.Context, symbols []string, general *sharedNews) ([]domain.NewsItem, bool, error) {
	ctx, cancel := o.withTimeout(ctx, o.config.NewsTimeout)
	defer cancel()

	if len(symbols) > 0 {
		items, err := o.news.ForSymbols(ctx, symbols)
		if !errors.Is(err, news.ErrNoSymbols) {
			return items, false, err
		}
	}

	items, err := general.Get(ctx)
	return items, true, err
}

func (o *Orchestrator) summarize(ctx context.Context, items []domain.NewsItem) (string, error) {
	ctx, cancel := o.withTimeout(ctx, o.config.SummarizeTimeout)
	defer cancel()
	return o.summarizer.Summarize(ctx, items)
}

// deliverAll makes one delivery attempt per prepared digest. Digests prepared
// before a cancellation are still sent.
func (o *Orchestrator) deliverAll(ctx context.Context, logger *slog.Logger, ready []prepared, date string) []domain.AccountOutcome {
	outcomes := make([]domain.AccountOutcome, len(ready))
	workCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(o.config.Concurrency)

	for i, p := range ready {
		g.Go(func() error {
			outcome := domain.AccountOutcome{
				AccountID:       p.account.ID,
				Status:          domain.OutcomeDelivered,
				NewsCount:       p.newsCount,
				UsedGeneralNews: p.usedGeneral,
			}

			deliverCtx, cancel := o.withTimeout(workCtx, o.config.DeliverTimeout)
			defer cancel()

			if err := o.deliverer.Deliver(deliverCtx, p.account.Email, date, p.body); err != nil {
				logger.Error("failed to deliver digest", "account_id", p.account.ID, "error", err)
				outcome.Status = domain.OutcomeFailed
				outcome.Reason = fmt.Sprintf("deliver: %v", err)
			}
			outcomes[i] = outcome
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (o *Orchestrator) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func skip(account domain.Account, reason string) accountResult {
	return accountResult{outcome: &domain.AccountOutcome{
		AccountID: account.ID,
		Status:    domain.OutcomeSkipped,
		Reason:    reason,
	}}
}

func fail(account domain.Account, reason string) accountResult {
	return accountResult{outcome: &domain.AccountOutcome{
		AccountID: account.ID,
		Status:    domain.OutcomeFailed,
		Reason:    reason,
	}}
}
