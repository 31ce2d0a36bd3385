package data

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equityrun/equityrun/internal/config"
	"github.com/equityrun/equityrun/internal/domain"
)

const chartBody = `{"chart":{"result":[{"timestamp":[1767139200,1767225600,1767312000],
"indicators":{"quote":[{"open":[10,11,null],"high":[10.5,11.5,12.5],"low":[9.5,10.5,11.5],
"close":[10.2,11.2,null],"volume":[1000,2000,3000]}]}}],"error":null}}`

const summaryBody = `{"quoteSummary":{"result":[{
"summaryDetail":{"trailingPE":{"raw":22.5,"fmt":"22.50"},"dividendYield":{},"marketCap":{"raw":1.5e12}},
"financialData":{"returnOnEquity":{"raw":0.31},"revenueGrowth":{"raw":0.12},"debtToEquity":{"raw":140.0}},
"defaultKeyStatistics":{"priceToBook":{"raw":8.1},"pegRatio":{"raw":1.9}},
"assetProfile":{"sector":"Technology","industry":"Consumer Electronics"},
"price":{"shortName":"Apple Inc."}}],"error":null}}`

type memCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMemCache() *memCache { return &memCache{m: make(map[string][]byte)} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
}

func testProvider(t *testing.T, handler http.Handler, cache Cache) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewProvider(config.DataConfig{
		BaseURL:        srv.URL,
		HistoryDays:    120,
		RequestTimeout: 5 * time.Second,
		MaxRetries:     2,
		RequestsPerSec: 1000,
		Burst:          1000,
		MaxConcurrency: 4,
		CacheTTL:       time.Minute,
	}, cache)
}

func yahooHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v8/finance/chart/", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(chartBody))
	})
	mux.HandleFunc("/v10/finance/quoteSummary/", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(summaryBody))
	})
	return mux
}

func TestProvider_GetHistory_SkipsNullCloses(t *testing.T) {
	p := testProvider(t, yahooHandler(), nil)

	series, err := p.GetHistory(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Equal(t, 2, series.Len())
	assert.Equal(t, 10.2, series.Bars[0].Close)
	assert.Equal(t, 11.2, series.Bars[1].Close)
	assert.Equal(t, 2000.0, series.Bars[1].Volume)
}

func TestProvider_GetFundamentals_PreservesAbsentFields(t *testing.T) {
	p := testProvider(t, yahooHandler(), nil)

	f, err := p.GetFundamentals(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, "Apple Inc.", f.CompanyName)
	assert.Equal(t, "Technology", f.Sector)
	require.NotNil(t, f.PE)
	assert.Equal(t, 22.5, *f.PE)
	require.NotNil(t, f.ROE)
	assert.Equal(t, 0.31, *f.ROE)

	// Empty and omitted wrappers stay nil, never zero.
	assert.Nil(t, f.DividendYield)
	assert.Nil(t, f.EarningsGrowth)
	require.NotNil(t, f.PEG)
	assert.Equal(t, 1.9, *f.PEG)
}

func TestProvider_GetSnapshot_UsesCache(t *testing.T) {
	var hits int32
	var mu sync.Mutex
	counting := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		if strings.Contains(r.URL.Path, "/chart/") {
			w.Write([]byte(chartBody))
			return
		}
		w.Write([]byte(summaryBody))
	})

	cache := newMemCache()
	p := testProvider(t, counting, cache)

	first, err := p.GetSnapshot(context.Background(), "0700.HK")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketHK, first.Market)

	mu.Lock()
	afterFirst := hits
	mu.Unlock()
	require.Equal(t, int32(2), afterFirst) // chart + summary

	second, err := p.GetSnapshot(context.Background(), "0700.HK")
	require.NoError(t, err)
	assert.Equal(t, first.Series.Len(), second.Series.Len())

	mu.Lock()
	assert.Equal(t, afterFirst, hits, "second snapshot must come from cache")
	mu.Unlock()
}

func TestProvider_Fetch_RetriesThrottling(t *testing.T) {
	var calls int
	var mu sync.Mutex
	flaky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(chartBody))
	})

	p := testProvider(t, flaky, nil)
	series, err := p.GetHistory(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, 2, series.Len())

	mu.Lock()
	assert.Equal(t, 2, calls)
	mu.Unlock()
}

func TestProvider_GetBatch_BoundedAndPartial(t *testing.T) {
	failing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "BAD") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if strings.Contains(r.URL.Path, "/chart/") {
			w.Write([]byte(chartBody))
			return
		}
		w.Write([]byte(summaryBody))
	})

	p := testProvider(t, failing, nil)
	snaps := p.GetBatch(context.Background(), []string{"AAPL", "BAD", "MSFT"})

	assert.Len(t, snaps, 2)
	assert.Contains(t, snaps, "AAPL")
	assert.Contains(t, snaps, "MSFT")
	assert.NotContains(t, snaps, "BAD")
}

func TestProvider_OnRequest_CountsOutcomes(t *testing.T) {
	p := testProvider(t, yahooHandler(), nil)

	var mu sync.Mutex
	counts := map[string]int{}
	p.OnRequest(func(endpoint, result string) {
		mu.Lock()
		counts[endpoint+"/"+result]++
		mu.Unlock()
	})

	_, err := p.GetSnapshot(context.Background(), "AAPL")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, counts["chart/ok"])
	assert.Equal(t, 1, counts["quote_summary/ok"])
}
