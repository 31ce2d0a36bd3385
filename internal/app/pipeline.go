// Package app orchestrates one scan: fetch snapshots, evaluate, filter to
// recommendations and hand the result to the presentation layers.
package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/equityrun/equityrun/internal/config"
	"github.com/equityrun/equityrun/internal/data"
	"github.com/equityrun/equityrun/internal/domain"
	httpapi "github.com/equityrun/equityrun/internal/interfaces/http"
	"github.com/equityrun/equityrun/internal/persistence"
	"github.com/equityrun/equityrun/internal/report"
	"github.com/equityrun/equityrun/internal/strategy"
	"github.com/equityrun/equityrun/internal/universe"
)

// Universe resolves the symbols to scan for a market.
type Universe interface {
	Symbols(ctx context.Context, market domain.Market) []string
}

// staticUniverse serves the built-in watchlists.
type staticUniverse struct{}

func (staticUniverse) Symbols(_ context.Context, market domain.Market) []string {
	return universe.Watchlist(market)
}

// Pipeline runs scans end to end. The store and metrics collaborators are
// optional; a nil store skips persistence and a nil registry skips metrics.
type Pipeline struct {
	cfg      *config.Config
	provider *data.Provider
	engine   *strategy.Engine
	universe Universe
	store    *persistence.Store
	metrics  *httpapi.MetricsRegistry
	log      zerolog.Logger
}

// NewPipeline builds a pipeline over the given configuration and provider,
// scanning the static watchlists unless WithUniverse overrides that.
func NewPipeline(cfg *config.Config, provider *data.Provider, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		provider: provider,
		engine:   strategy.New(cfg),
		universe: staticUniverse{},
		log:      log,
	}
}

// WithUniverse replaces the symbol-universe resolver.
func (p *Pipeline) WithUniverse(u Universe) *Pipeline {
	p.universe = u
	return p
}

// WithStore enables persistence of scan runs.
func (p *Pipeline) WithStore(store *persistence.Store) *Pipeline {
	p.store = store
	return p
}

// WithMetrics enables metric observation, including per-request provider
// counters.
func (p *Pipeline) WithMetrics(m *httpapi.MetricsRegistry) *Pipeline {
	p.metrics = m
	p.provider.OnRequest(func(endpoint, result string) {
		m.ProviderRequests.WithLabelValues(endpoint, result).Inc()
	})
	return p
}

// Scan evaluates each given market's resolved symbol universe.
func (p *Pipeline) Scan(ctx context.Context, markets []domain.Market) (*report.Document, error) {
	if len(markets) == 0 {
		markets = domain.AllMarkets()
	}
	var symbols []string
	for _, market := range markets {
		symbols = append(symbols, p.universe.Symbols(ctx, market)...)
	}
	return p.ScanSymbols(ctx, symbols)
}

// ScanSymbols evaluates an explicit symbol list. Markets are classified from
// symbol suffixes and each market's recommendation thresholds apply to its
// own symbols.
func (p *Pipeline) ScanSymbols(ctx context.Context, symbols []string) (*report.Document, error) {
	symbols = universe.Merge(symbols)
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols to scan")
	}
	started := time.Now()
	marketsLabel := scanLabel(symbols)
	p.log.Info().Int("symbols", len(symbols)).Str("markets", marketsLabel).Msg("scan started")

	snapshots := p.provider.GetBatch(ctx, symbols)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var inputs []strategy.Input
	var fetchErrors []domain.EvaluationError
	for _, symbol := range symbols {
		snap, ok := snapshots[symbol]
		if !ok {
			fetchErrors = append(fetchErrors, domain.EvaluationError{
				Symbol: symbol,
				Market: universe.MarketOf(symbol),
				Err:    "market data unavailable",
			})
			continue
		}
		inputs = append(inputs, strategy.Input{
			Symbol:       snap.Symbol,
			Market:       snap.Market,
			Series:       snap.Series,
			Fundamentals: snap.Fundamentals,
		})
	}

	batch := p.engine.EvaluateBatch(inputs)
	recommendations := p.recommend(batch.Evaluations)

	errs := append(fetchErrors, batch.Errors...)
	sort.Slice(errs, func(i, j int) bool { return errs[i].Symbol < errs[j].Symbol })

	doc := report.Build(recommendations, batch.Evaluations, errs)
	p.observe(marketsLabel, batch, time.Since(started))
	p.record(ctx, started, batch, recommendations)

	p.log.Info().
		Int("analyzed", len(batch.Evaluations)).
		Int("recommended", len(recommendations)).
		Int("skipped", len(errs)).
		Dur("duration", time.Since(started)).
		Msg("scan finished")
	return doc, nil
}

// Analyze evaluates a single symbol without recommendation filtering.
func (p *Pipeline) Analyze(ctx context.Context, symbol string) (*domain.StockEvaluation, error) {
	snap, err := p.provider.GetSnapshot(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return p.engine.Evaluate(strategy.Input{
		Symbol:       snap.Symbol,
		Market:       snap.Market,
		Series:       snap.Series,
		Fundamentals: snap.Fundamentals,
	})
}

// recommend applies each market's score floor and pick cap, then merges the
// per-market picks back into one ranked list.
func (p *Pipeline) recommend(evals []*domain.StockEvaluation) []*domain.StockEvaluation {
	byMarket := make(map[domain.Market][]*domain.StockEvaluation)
	for _, ev := range evals {
		byMarket[ev.Market] = append(byMarket[ev.Market], ev)
	}

	var picks []*domain.StockEvaluation
	for market, group := range byMarket {
		th, err := p.cfg.MarketThresholds(market)
		if err != nil {
			continue
		}
		picks = append(picks, p.engine.Filter(group, th)...)
	}
	sort.Slice(picks, func(i, j int) bool {
		if picks[i].TotalScore != picks[j].TotalScore {
			return picks[i].TotalScore > picks[j].TotalScore
		}
		return picks[i].Symbol < picks[j].Symbol
	})
	return picks
}

func (p *Pipeline) observe(marketsLabel string, batch *strategy.BatchResult, d time.Duration) {
	if p.metrics == nil {
		return
	}
	p.metrics.ObserveScan(marketsLabel, d, nil)
	for _, ev := range batch.Evaluations {
		p.metrics.EvaluationsTotal.WithLabelValues(string(ev.Market), string(ev.Tier)).Inc()
	}
	for _, e := range batch.Errors {
		p.metrics.SkippedSymbols.WithLabelValues(string(e.Market)).Inc()
	}
}

func (p *Pipeline) record(ctx context.Context, started time.Time, batch *strategy.BatchResult, recommended []*domain.StockEvaluation) {
	if p.store == nil {
		return
	}
	runID, err := p.store.SaveRun(ctx, started, time.Now(), batch.Evaluations, recommended, len(batch.Errors))
	if err != nil {
		p.log.Error().Err(err).Msg("scan run not persisted")
		return
	}
	p.log.Debug().Str("run_id", runID.String()).Msg("scan run persisted")
}

// scanLabel summarizes the markets covered by a symbol list, for metrics and
// logs.
func scanLabel(symbols []string) string {
	grouped := universe.GroupByMarket(symbols)
	var parts []string
	for _, market := range domain.AllMarkets() {
		if len(grouped[market]) > 0 {
			parts = append(parts, string(market))
		}
	}
	return strings.Join(parts, ",")
}
