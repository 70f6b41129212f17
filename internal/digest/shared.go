package digest

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"stock_digest/internal/domain"
)

// sharedNews computes the general feed at most once per run. Concurrent
// callers join the in-flight fetch; a failed fetch is not cached.
type sharedNews struct {
	fetch func(ctx context.Context) ([]domain.NewsItem, error)
	group singleflight.Group

	mu    sync.Mutex
	items []domain.NewsItem
	done  bool
}

func newSharedNews(fetch func(ctx context.Context) ([]domain.NewsItem, error)) *sharedNews {
	return &sharedNews{fetch: fetch}
}

func (s *sharedNews) cached() ([]domain.NewsItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items, s.done
}

func (s *sharedNews) Get(ctx context.Context) ([]domain.NewsItem, error) {
	if items, ok := s.cached(); ok {
		return items, nil
	}

	v, err, _ := s.group.Do("general", func() (any, error) {
		if items, ok := s.cached(); ok {
			return items, nil
		}

		items, err := s.fetch(ctx)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.items = items
		s.done = true
		s.mu.Unlock()
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.NewsItem), nil
}
