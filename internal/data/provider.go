// Package data acquires per-symbol market data: daily OHLCV history from the
// chart endpoint and company fundamentals from the quote summary endpoint.
// Requests are rate limited, breaker protected, retried with backoff and
// cached briefly; scoring itself never touches the network.
package data

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/equityrun/equityrun/internal/config"
	"github.com/equityrun/equityrun/internal/domain"
	"github.com/equityrun/equityrun/internal/universe"
)

const userAgent = "EquityRun/1.0"

// Snapshot is one symbol's resident data: history plus fundamentals. Either
// part may be missing when the upstream had nothing for it.
type Snapshot struct {
	Symbol       string               `json:"symbol"`
	Market       domain.Market        `json:"market"`
	Series       *domain.MarketSeries `json:"series,omitempty"`
	Fundamentals *domain.Fundamentals `json:"fundamentals,omitempty"`
	FetchedAt    time.Time            `json:"fetched_at"`
}

// Provider fetches snapshots. Safe for concurrent use.
type Provider struct {
	cfg     config.DataConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	cache   Cache
	observe func(endpoint, result string)
}

// OnRequest registers a callback invoked once per upstream request with the
// endpoint name and "ok" or "error". Set before first use; not synchronized.
func (p *Provider) OnRequest(fn func(endpoint, result string)) {
	p.observe = fn
}

func (p *Provider) observeRequest(endpoint string, err error) {
	if p.observe == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.observe(endpoint, result)
}

// NewProvider builds a provider over the given data configuration. cache may
// be nil to disable caching.
func NewProvider(cfg config.DataConfig, cache Cache) *Provider {
	settings := gobreaker.Settings{
		Name:        "market-data",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	}

	return &Provider{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
		cache:   cache,
	}
}

// GetSnapshot fetches one symbol's history and fundamentals. A fundamentals
// failure degrades to history-only: partial fundamentals never block
// evaluation downstream.
func (p *Provider) GetSnapshot(ctx context.Context, symbol string) (*Snapshot, error) {
	if cached := p.cachedSnapshot(ctx, symbol); cached != nil {
		return cached, nil
	}

	series, err := p.GetHistory(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch history for %s: %w", symbol, err)
	}

	fundamentals, err := p.GetFundamentals(ctx, symbol)
	if err != nil {
		log.Warn().Str("symbol", symbol).Err(err).Msg("fundamentals unavailable, continuing with history only")
		fundamentals = nil
	}

	snap := &Snapshot{
		Symbol:       symbol,
		Market:       universe.MarketOf(symbol),
		Series:       series,
		Fundamentals: fundamentals,
		FetchedAt:    time.Now().UTC(),
	}
	p.storeSnapshot(ctx, snap)
	return snap, nil
}

// GetBatch fetches snapshots for many symbols with bounded concurrency.
// Failed symbols are logged and omitted; the caller sees what was fetchable.
func (p *Provider) GetBatch(ctx context.Context, symbols []string) map[string]*Snapshot {
	workers := p.cfg.MaxConcurrency
	if workers < 1 {
		workers = 1
	}

	out := make(map[string]*Snapshot, len(symbols))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)

	for _, symbol := range symbols {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()

			snap, err := p.GetSnapshot(ctx, symbol)
			if err != nil {
				log.Warn().Str("symbol", symbol).Err(err).Msg("snapshot fetch failed")
				return
			}
			mu.Lock()
			out[symbol] = snap
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()
	return out
}

// GetHistory fetches daily OHLCV bars covering the configured lookback.
func (p *Provider) GetHistory(ctx context.Context, symbol string) (*domain.MarketSeries, error) {
	period2 := time.Now().UTC()
	period1 := period2.AddDate(0, 0, -p.cfg.HistoryDays)
	url := fmt.Sprintf("%s/v8/finance/chart/%s?period1=%d&period2=%d&interval=1d",
		p.cfg.BaseURL, symbol, period1.Unix(), period2.Unix())

	body, err := p.fetch(ctx, url)
	p.observeRequest("chart", err)
	if err != nil {
		return nil, err
	}

	var doc chartResponse
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode chart response: %w", err)
	}
	if doc.Chart.Error != nil {
		return nil, fmt.Errorf("chart endpoint error: %s", doc.Chart.Error.Description)
	}
	if len(doc.Chart.Result) == 0 {
		return nil, fmt.Errorf("no chart data for %s", symbol)
	}

	return doc.Chart.Result[0].toSeries(symbol), nil
}

// GetFundamentals fetches the company fundamentals document. Absent fields
// stay nil; they are never defaulted to zero.
func (p *Provider) GetFundamentals(ctx context.Context, symbol string) (*domain.Fundamentals, error) {
	url := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?modules=summaryDetail,financialData,defaultKeyStatistics,assetProfile,price",
		p.cfg.BaseURL, symbol)

	body, err := p.fetch(ctx, url)
	p.observeRequest("quote_summary", err)
	if err != nil {
		return nil, err
	}

	var doc summaryResponse
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode quote summary: %w", err)
	}
	if doc.QuoteSummary.Error != nil {
		return nil, fmt.Errorf("quote summary error: %s", doc.QuoteSummary.Error.Description)
	}
	if len(doc.QuoteSummary.Result) == 0 {
		return nil, fmt.Errorf("no fundamentals for %s", symbol)
	}

	return doc.QuoteSummary.Result[0].toFundamentals(symbol), nil
}

// fetch performs one rate-limited, breaker-protected GET with retry/backoff
// on throttling and upstream errors.
func (p *Provider) fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	backoff := time.Second

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		result, err := p.breaker.Execute(func() (interface{}, error) {
			return p.doGet(ctx, url)
		})
		if err == nil {
			return result.([]byte), nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
		log.Debug().Err(err).Int("attempt", attempt+1).Str("url", url).Msg("retrying fetch")
	}
	return nil, fmt.Errorf("exhausted %d retries: %w", p.cfg.MaxRetries, lastErr)
}

func (p *Provider) doGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{Code: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

type statusError struct {
	Code int
}

func (e *statusError) Error() string { return fmt.Sprintf("unexpected status %d", e.Code) }

func retryable(err error) bool {
	if se, ok := err.(*statusError); ok {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	// Breaker-open and transport errors retry; the backoff gives the breaker
	// its recovery window.
	return true
}

func (p *Provider) cachedSnapshot(ctx context.Context, symbol string) *Snapshot {
	if p.cache == nil {
		return nil
	}
	raw, ok := p.cache.Get(ctx, snapshotKey(symbol))
	if !ok {
		return nil
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		log.Debug().Err(err).Str("symbol", symbol).Msg("discarding corrupt cached snapshot")
		return nil
	}
	return &snap
}

func (p *Provider) storeSnapshot(ctx context.Context, snap *Snapshot) {
	if p.cache == nil {
		return
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}
	p.cache.Set(ctx, snapshotKey(snap.Symbol), raw, p.cfg.CacheTTL)
}

func snapshotKey(symbol string) string { return "equityrun:snapshot:" + symbol }

// ---- wire formats ----

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

// toSeries maps the column arrays into bars, skipping rows without a close
// (halted or unpriced days come through as nulls).
func (r *chartResult) toSeries(symbol string) *domain.MarketSeries {
	series := &domain.MarketSeries{Symbol: symbol}
	if len(r.Indicators.Quote) == 0 {
		return series
	}
	q := r.Indicators.Quote[0]

	deref := func(vals []*float64, i int) float64 {
		if i < len(vals) && vals[i] != nil {
			return *vals[i]
		}
		return 0
	}

	for i, ts := range r.Timestamp {
		if i >= len(q.Close) || q.Close[i] == nil {
			continue
		}
		series.Bars = append(series.Bars, domain.Bar{
			Date:   time.Unix(ts, 0).UTC(),
			Open:   deref(q.Open, i),
			High:   deref(q.High, i),
			Low:    deref(q.Low, i),
			Close:  *q.Close[i],
			Volume: deref(q.Volume, i),
		})
	}
	return series
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// rawValue is the upstream {"raw": n, "fmt": "..."} number wrapper.
type rawValue struct {
	Raw *float64 `json:"raw"`
}

type summaryResponse struct {
	QuoteSummary struct {
		Result []summaryResult `json:"result"`
		Error  *apiError       `json:"error"`
	} `json:"quoteSummary"`
}

type summaryResult struct {
	SummaryDetail struct {
		TrailingPE    rawValue `json:"trailingPE"`
		ForwardPE     rawValue `json:"forwardPE"`
		DividendYield rawValue `json:"dividendYield"`
		MarketCap     rawValue `json:"marketCap"`
	} `json:"summaryDetail"`
	FinancialData struct {
		ReturnOnEquity rawValue `json:"returnOnEquity"`
		RevenueGrowth  rawValue `json:"revenueGrowth"`
		EarningsGrowth rawValue `json:"earningsGrowth"`
		ProfitMargins  rawValue `json:"profitMargins"`
		DebtToEquity   rawValue `json:"debtToEquity"`
		FreeCashflow   rawValue `json:"freeCashflow"`
	} `json:"financialData"`
	DefaultKeyStatistics struct {
		PriceToBook       rawValue `json:"priceToBook"`
		PegRatio          rawValue `json:"pegRatio"`
		SharesOutstanding rawValue `json:"sharesOutstanding"`
	} `json:"defaultKeyStatistics"`
	AssetProfile struct {
		Sector   string `json:"sector"`
		Industry string `json:"industry"`
	} `json:"assetProfile"`
	Price struct {
		ShortName string `json:"shortName"`
	} `json:"price"`
}

func (r *summaryResult) toFundamentals(symbol string) *domain.Fundamentals {
	return &domain.Fundamentals{
		Symbol:            symbol,
		CompanyName:       r.Price.ShortName,
		Sector:            r.AssetProfile.Sector,
		Industry:          r.AssetProfile.Industry,
		PE:                r.SummaryDetail.TrailingPE.Raw,
		ForwardPE:         r.SummaryDetail.ForwardPE.Raw,
		PB:                r.DefaultKeyStatistics.PriceToBook.Raw,
		ROE:               r.FinancialData.ReturnOnEquity.Raw,
		RevenueGrowth:     r.FinancialData.RevenueGrowth.Raw,
		EarningsGrowth:    r.FinancialData.EarningsGrowth.Raw,
		ProfitMargin:      r.FinancialData.ProfitMargins.Raw,
		DebtToEquity:      r.FinancialData.DebtToEquity.Raw,
		FreeCashflow:      r.FinancialData.FreeCashflow.Raw,
		PEG:               r.DefaultKeyStatistics.PegRatio.Raw,
		DividendYield:     r.SummaryDetail.DividendYield.Raw,
		MarketCap:         r.SummaryDetail.MarketCap.Raw,
		SharesOutstanding: r.DefaultKeyStatistics.SharesOutstanding.Raw,
	}
}
