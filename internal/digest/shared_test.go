package digest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock_digest/internal/domain"
)

func TestSharedNews_ConcurrentCallersShareOneFetch(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	shared := newSharedNews(func(context.Context) ([]domain.NewsItem, error) {
		calls.Add(1)
		<-release
		return []domain.NewsItem{{ID: 1}}, nil
	})

	var wg sync.WaitGroup
	results := make([][]domain.NewsItem, 10)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			items, err := shared.Get(context.Background())
			assert.NoError(t, err)
			results[i] = items
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Len(t, r, 1)
	}

	// Later callers reuse the memo.
	_, err := shared.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSharedNews_RetriesAfterFailure(t *testing.T) {
	var calls atomic.Int32
	shared := newSharedNews(func(context.Context) ([]domain.NewsItem, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("boom")
		}
		return []domain.NewsItem{}, nil
	})

	_, err := shared.Get(context.Background())
	assert.Error(t, err)

	items, err := shared.Get(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, int32(2), calls.Load())
}
