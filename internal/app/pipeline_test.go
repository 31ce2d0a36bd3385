package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equityrun/equityrun/internal/config"
	"github.com/equityrun/equityrun/internal/data"
	"github.com/equityrun/equityrun/internal/domain"
)

// chartJSON builds a chart response with n rising daily bars.
func chartJSON(n int) string {
	ts := make([]string, n)
	closes := make([]string, n)
	highs := make([]string, n)
	lows := make([]string, n)
	opens := make([]string, n)
	vols := make([]string, n)
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		price := 100.0 + float64(i)
		ts[i] = fmt.Sprintf("%d", base.AddDate(0, 0, i).Unix())
		opens[i] = fmt.Sprintf("%.1f", price-0.5)
		highs[i] = fmt.Sprintf("%.1f", price+1)
		lows[i] = fmt.Sprintf("%.1f", price-1)
		closes[i] = fmt.Sprintf("%.1f", price)
		vols[i] = fmt.Sprintf("%d", 1000+10*i)
	}
	return fmt.Sprintf(`{"chart":{"result":[{"timestamp":[%s],
"indicators":{"quote":[{"open":[%s],"high":[%s],"low":[%s],"close":[%s],"volume":[%s]}]}}],"error":null}}`,
		strings.Join(ts, ","), strings.Join(opens, ","), strings.Join(highs, ","),
		strings.Join(lows, ","), strings.Join(closes, ","), strings.Join(vols, ","))
}

const summaryJSON = `{"quoteSummary":{"result":[{
"summaryDetail":{"trailingPE":{"raw":18.0}},
"financialData":{"returnOnEquity":{"raw":0.22},"revenueGrowth":{"raw":0.15},"earningsGrowth":{"raw":0.20}},
"defaultKeyStatistics":{"pegRatio":{"raw":0.9}},
"assetProfile":{"sector":"Technology"},
"price":{"shortName":"Test Corp"}}],"error":null}}`

func testPipeline(t *testing.T) *Pipeline {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v8/finance/chart/", func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "BAD") {
			http.Error(w, "no such symbol", http.StatusNotFound)
			return
		}
		w.Write([]byte(chartJSON(60)))
	})
	mux.HandleFunc("/v10/finance/quoteSummary/", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(summaryJSON))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Data.BaseURL = srv.URL
	cfg.Data.RequestsPerSec = 1000
	cfg.Data.Burst = 1000
	cfg.Data.MaxRetries = 1

	provider := data.NewProvider(cfg.Data, nil)
	return NewPipeline(cfg, provider, zerolog.Nop())
}

func TestScanSymbolsEvaluatesAndRanks(t *testing.T) {
	p := testPipeline(t)

	doc, err := p.ScanSymbols(context.Background(), []string{"AAPL", "MSFT", "0700.HK"})
	require.NoError(t, err)

	require.Len(t, doc.AllEvaluations, 3)
	assert.Equal(t, 3, doc.Summary.TotalAnalyzed)
	for i := 1; i < len(doc.AllEvaluations); i++ {
		prev, cur := doc.AllEvaluations[i-1], doc.AllEvaluations[i]
		if prev.TotalScore == cur.TotalScore {
			assert.Less(t, prev.Symbol, cur.Symbol)
		} else {
			assert.Greater(t, prev.TotalScore, cur.TotalScore)
		}
	}

	// identical inputs, so the HK symbol carries its own market's weights
	var hk *domain.StockEvaluation
	for _, ev := range doc.AllEvaluations {
		if ev.Symbol == "0700.HK" {
			hk = ev
		}
	}
	require.NotNil(t, hk)
	assert.Equal(t, domain.MarketHK, hk.Market)
	assert.Equal(t, "Test Corp", hk.CompanyName)
}

func TestScanSymbolsReportsFetchFailures(t *testing.T) {
	p := testPipeline(t)

	doc, err := p.ScanSymbols(context.Background(), []string{"AAPL", "BAD"})
	require.NoError(t, err)

	require.Len(t, doc.AllEvaluations, 1)
	require.Len(t, doc.Errors, 1)
	assert.Equal(t, "BAD", doc.Errors[0].Symbol)
	assert.Equal(t, "market data unavailable", doc.Errors[0].Err)
}

func TestScanSymbolsDeduplicates(t *testing.T) {
	p := testPipeline(t)

	doc, err := p.ScanSymbols(context.Background(), []string{"AAPL", "AAPL", " AAPL "})
	require.NoError(t, err)
	assert.Len(t, doc.AllEvaluations, 1)
}

func TestScanSymbolsEmptyList(t *testing.T) {
	p := testPipeline(t)

	_, err := p.ScanSymbols(context.Background(), nil)
	assert.Error(t, err)
}

// fixedUniverse serves a canned symbol list per market.
type fixedUniverse map[domain.Market][]string

func (u fixedUniverse) Symbols(_ context.Context, market domain.Market) []string {
	return u[market]
}

func TestScanResolvesSymbolsThroughUniverse(t *testing.T) {
	p := testPipeline(t).WithUniverse(fixedUniverse{
		domain.MarketUS: {"AAPL", "MSFT"},
		domain.MarketHK: {"0700.HK"},
	})

	doc, err := p.Scan(context.Background(), []domain.Market{domain.MarketUS})
	require.NoError(t, err)
	require.Len(t, doc.AllEvaluations, 2)
	for _, ev := range doc.AllEvaluations {
		assert.Equal(t, domain.MarketUS, ev.Market)
	}

	doc, err = p.Scan(context.Background(), nil) // all markets
	require.NoError(t, err)
	assert.Len(t, doc.AllEvaluations, 3)
}

func TestRecommendAppliesMarketFloorAndCap(t *testing.T) {
	p := testPipeline(t)

	evals := []*domain.StockEvaluation{
		{Symbol: "AAA", Market: domain.MarketUS, TotalScore: 82, Tier: domain.TierStrongBuy},
		{Symbol: "BBB", Market: domain.MarketUS, TotalScore: 61, Tier: domain.TierHold},
		{Symbol: "CCC", Market: domain.MarketUS, TotalScore: 40, Tier: domain.TierAvoid},
		{Symbol: "0700.HK", Market: domain.MarketHK, TotalScore: 70, Tier: domain.TierBuy},
	}
	picks := p.recommend(evals)

	require.Len(t, picks, 3)
	assert.Equal(t, "AAA", picks[0].Symbol)
	assert.Equal(t, "0700.HK", picks[1].Symbol)
	assert.Equal(t, "BBB", picks[2].Symbol)
}

func TestAnalyzeSingleSymbol(t *testing.T) {
	p := testPipeline(t)

	eval, err := p.Analyze(context.Background(), "600519.SS")
	require.NoError(t, err)
	assert.Equal(t, "600519.SS", eval.Symbol)
	assert.Equal(t, domain.MarketCN, eval.Market)
	assert.Greater(t, eval.TotalScore, 0.0)
	assert.NotEmpty(t, eval.Reasons)
}

func TestAnalyzeUnknownSymbolFails(t *testing.T) {
	p := testPipeline(t)

	_, err := p.Analyze(context.Background(), "BAD")
	assert.Error(t, err)
}
