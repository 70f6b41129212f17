package finnhub

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

const companyNewsJSON = `[
	{"category":"company","datetime":1700000300,"headline":"Apple ships","id":11,"image":"https://img/a.png","related":"AAPL, MSFT","source":"Reuters","summary":"Apple shipped things.","url":"https://example.com/a"},
	{"category":"company","datetime":1700000100,"headline":"","id":12,"image":"","related":"","source":"Reuters","summary":"","url":"https://example.com/b"}
]`

const marketNewsJSON = `[
	{"category":"top news","datetime":1700000500,"headline":"Markets rise","id":1,"image":"","related":"","source":"CNBC","summary":"Stocks rose.","url":"https://example.com/m"}
]`

// rewriteTransport redirects all requests to a fixed base URL (test server).
type rewriteTransport struct {
	base  string
	inner http.RoundTripper
}

func (rt *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	parsed, _ := http.NewRequest("GET", rt.base, nil)
	req2.URL.Host = parsed.URL.Host
	req2.URL.Scheme = parsed.URL.Scheme
	return rt.inner.RoundTrip(req2)
}

func newTestSource(t *testing.T, handler http.HandlerFunc, attempts int) *Source {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	src := New(Config{
		APIKey:         "test-key",
		Timeout:        5 * time.Second,
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, slog.New(slog.DiscardHandler))
	src.httpClient.Transport = &rewriteTransport{base: srv.URL, inner: http.DefaultTransport}
	return src
}

func TestFetchForSymbol_MapsFields(t *testing.T) {
	var gotQuery, gotToken string
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/company-news") {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.RawQuery
		gotToken = r.Header.Get("X-Finnhub-Token")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(companyNewsJSON))
	}, 1)

	from := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 6, 15, 0, 0, 0, time.UTC)

	items, err := src.FetchForSymbol(context.Background(), "AAPL", from, to)

	assert.Equal(t, nil, err)
	assert.Equal(t, 2, len(items))
	assert.Equal(t, "test-key", gotToken)
	assert.Equal(t, true, strings.Contains(gotQuery, "symbol=AAPL"))
	assert.Equal(t, true, strings.Contains(gotQuery, "from=2024-03-01"))
	assert.Equal(t, true, strings.Contains(gotQuery, "to=2024-03-06"))

	a := items[0]
	assert.Equal(t, int64(11), a.ID)
	assert.Equal(t, "Apple ships", a.Headline)
	assert.Equal(t, "Apple shipped things.", a.Summary)
	assert.Equal(t, "Reuters", a.Source)
	assert.Equal(t, "https://example.com/a", a.URL)
	assert.Equal(t, int64(1700000300), a.PublishedAt)
	assert.Equal(t, []string{"AAPL", "MSFT"}, a.RelatedSymbols)
	assert.Equal(t, "https://img/a.png", a.Image)
	assert.Equal(t, true, a.Valid())

	assert.Equal(t, 0, len(items[1].RelatedSymbols))
	assert.Equal(t, false, items[1].Valid())
}

func TestFetchGeneral_UsesGeneralCategory(t *testing.T) {
	var category string
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/news") {
			http.NotFound(w, r)
			return
		}
		category = r.URL.Query().Get("category")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(marketNewsJSON))
	}, 1)

	items, err := src.FetchGeneral(context.Background())

	assert.Equal(t, nil, err)
	assert.Equal(t, "general", category)
	assert.Equal(t, 1, len(items))
	assert.Equal(t, "Markets rise", items[0].Headline)
}

func TestFetchGeneral_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(marketNewsJSON))
	}, 3)

	items, err := src.FetchGeneral(context.Background())

	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(items))
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchGeneral_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, 2)

	items, err := src.FetchGeneral(context.Background())

	assert.NotEqual(t, nil, err)
	assert.Equal(t, 0, len(items))
	assert.Equal(t, int32(2), calls.Load())
}

func TestCalculateBackoff(t *testing.T) {
	src := &Source{initialBackoff: time.Second, maxBackoff: 5 * time.Second}

	assert.Equal(t, time.Second, src.calculateBackoff(1))
	assert.Equal(t, 2*time.Second, src.calculateBackoff(2))
	assert.Equal(t, 4*time.Second, src.calculateBackoff(3))
	assert.Equal(t, 5*time.Second, src.calculateBackoff(4))
}
