package strategy

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/equityrun/equityrun/internal/config"
	"github.com/equityrun/equityrun/internal/domain"
	"github.com/equityrun/equityrun/internal/scoring"
)

// Recommendation tier breakpoints. Global constants, not market-parameterized.
const (
	tierStrongBuyFloor = 80.0
	tierBuyFloor       = 65.0
	tierHoldFloor      = 50.0
)

// Input is one symbol's resident data snapshot, supplied by the data layer.
type Input struct {
	Symbol       string
	Market       domain.Market
	Series       *domain.MarketSeries
	Fundamentals *domain.Fundamentals
}

// BatchResult is the outcome of a batch evaluation: the ranked list plus the
// symbols that were analyzed but could not be scored.
type BatchResult struct {
	Evaluations []*domain.StockEvaluation `json:"evaluations"`
	Errors      []domain.EvaluationError  `json:"errors,omitempty"`
}

// Engine combines technical and fundamental scores into ranked
// recommendations. Stateless between calls; safe for concurrent use.
type Engine struct {
	cfg     *config.Config
	tech    *scoring.TechnicalScorer
	fund    *scoring.FundamentalScorer
	workers int
}

// New returns a strategy engine over the given configuration.
func New(cfg *config.Config) *Engine {
	return &Engine{
		cfg:     cfg,
		tech:    scoring.NewTechnicalScorer(),
		fund:    scoring.NewFundamentalScorer(cfg.SectorPE, cfg.DefaultPE),
		workers: runtime.NumCPU(),
	}
}

// Evaluate scores one symbol. It fails when the market is unknown or the
// series is too short (scoring.ErrInsufficientData); partial fundamentals
// never fail.
func (e *Engine) Evaluate(in Input) (*domain.StockEvaluation, error) {
	profile, err := e.cfg.Profile(in.Market)
	if err != nil {
		return nil, err
	}
	thresholds, err := e.cfg.MarketThresholds(in.Market)
	if err != nil {
		return nil, err
	}

	techResult, err := e.tech.Score(in.Series, profile, thresholds)
	if err != nil {
		return nil, err
	}
	fundResult := e.fund.Score(in.Fundamentals, in.Market, profile, thresholds)

	eval := &domain.StockEvaluation{
		Symbol:           in.Symbol,
		Market:           in.Market,
		TechnicalScore:   techResult.Score,
		FundamentalScore: fundResult.Score,
		Technical:        techResult,
		Fundamental:      fundResult,
	}
	if in.Fundamentals != nil {
		eval.CompanyName = in.Fundamentals.CompanyName
		eval.Sector = in.Fundamentals.Sector
	}
	if fundResult.Growth != nil {
		eval.GrowthLabel = fundResult.Growth.Label
		eval.GrowthBonus = fundResult.Growth.Bonus
	}

	raw := techResult.Score*profile.TechnicalWeight + fundResult.Score*profile.FundamentalWeight
	eval.TotalScore = round2(math.Max(0, math.Min(100, raw)))
	eval.Tier = tierFor(eval.TotalScore)
	eval.Reasons = buildReasons(techResult, fundResult, eval)

	return eval, nil
}

// EvaluateBatch evaluates every input independently and concurrently, joins,
// and returns results sorted by total score descending with ties broken by
// symbol for determinism. Symbols that fail are recorded and excluded from
// the ranking.
func (e *Engine) EvaluateBatch(inputs []Input) *BatchResult {
	result := &BatchResult{}
	if len(inputs) == 0 {
		return result
	}

	workers := e.workers
	if workers > len(inputs) {
		workers = len(inputs)
	}
	if workers < 1 {
		workers = 1
	}

	type outcome struct {
		eval *domain.StockEvaluation
		err  domain.EvaluationError
		ok   bool
	}

	jobs := make(chan Input)
	outcomes := make(chan outcome, len(inputs))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for in := range jobs {
				eval, err := e.Evaluate(in)
				if err != nil {
					log.Warn().Str("symbol", in.Symbol).Str("market", string(in.Market)).
						Err(err).Msg("evaluation skipped")
					outcomes <- outcome{err: domain.EvaluationError{
						Symbol: in.Symbol,
						Market: in.Market,
						Err:    err.Error(),
					}}
					continue
				}
				outcomes <- outcome{eval: eval, ok: true}
			}
		}()
	}

	for _, in := range inputs {
		jobs <- in
	}
	close(jobs)
	wg.Wait()
	close(outcomes)

	for o := range outcomes {
		if o.ok {
			result.Evaluations = append(result.Evaluations, o.eval)
		} else {
			result.Errors = append(result.Errors, o.err)
		}
	}

	sort.Slice(result.Evaluations, func(i, j int) bool {
		a, b := result.Evaluations[i], result.Evaluations[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		return a.Symbol < b.Symbol
	})
	sort.Slice(result.Errors, func(i, j int) bool {
		return result.Errors[i].Symbol < result.Errors[j].Symbol
	})

	return result
}

// Filter retains evaluations at or above the recommendation floor, truncated
// to the configured count. The input is assumed already sorted; the filter
// preserves its order and never re-sorts.
func (e *Engine) Filter(evals []*domain.StockEvaluation, th *config.Thresholds) []*domain.StockEvaluation {
	out := make([]*domain.StockEvaluation, 0, th.MaxRecommendations)
	for _, ev := range evals {
		if ev.TotalScore >= th.MinRecommendationScore {
			out = append(out, ev)
		}
	}
	if len(out) > th.MaxRecommendations {
		out = out[:th.MaxRecommendations]
	}
	return out
}

func tierFor(score float64) domain.Tier {
	switch {
	case score >= tierStrongBuyFloor:
		return domain.TierStrongBuy
	case score >= tierBuyFloor:
		return domain.TierBuy
	case score >= tierHoldFloor:
		return domain.TierHold
	default:
		return domain.TierAvoid
	}
}

// buildReasons assembles the ordered rationale: a technical overview, a
// fundamental overview, the growth label when it says something, then up to
// two strongest signals from each side.
func buildReasons(tech *domain.TechnicalResult, fund *domain.FundamentalResult, eval *domain.StockEvaluation) []string {
	var reasons []string

	switch {
	case tech.Score >= 65:
		reasons = append(reasons, fmt.Sprintf("technical score %.0f (strong)", tech.Score))
	case tech.Score >= 45:
		reasons = append(reasons, fmt.Sprintf("technical score %.0f (neutral)", tech.Score))
	default:
		reasons = append(reasons, fmt.Sprintf("technical score %.0f (weak)", tech.Score))
	}

	switch {
	case fund.Score >= 65:
		reasons = append(reasons, fmt.Sprintf("fundamental score %.0f (solid)", fund.Score))
	case fund.Score >= 45:
		reasons = append(reasons, fmt.Sprintf("fundamental score %.0f (average)", fund.Score))
	default:
		reasons = append(reasons, fmt.Sprintf("fundamental score %.0f (weak)", fund.Score))
	}

	if eval.GrowthLabel != "" && eval.GrowthLabel != domain.GrowthLow && eval.GrowthLabel != domain.GrowthUnknown {
		reasons = append(reasons, fmt.Sprintf("growth profile: %s (bonus %+.1f)", eval.GrowthLabel.Human(), eval.GrowthBonus))
	}

	reasons = append(reasons, strongestSignals(tech.SubScores, 2)...)
	reasons = append(reasons, strongestSignals(fund.SubScores, 2)...)

	return reasons
}

// strongestSignals picks up to limit signals from the sub-scores furthest
// above neutral, one per sub-score, ties broken by key for determinism.
func strongestSignals(subs map[string]domain.SubScore, limit int) []string {
	type ranked struct {
		key string
		sub domain.SubScore
	}
	candidates := make([]ranked, 0, len(subs))
	for key, sub := range subs {
		if sub.Score > 50 && len(sub.Signals) > 0 {
			candidates = append(candidates, ranked{key: key, sub: sub})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].sub.Score != candidates[j].sub.Score {
			return candidates[i].sub.Score > candidates[j].sub.Score
		}
		return candidates[i].key < candidates[j].key
	})

	var out []string
	for _, c := range candidates {
		if len(out) == limit {
			break
		}
		out = append(out, c.sub.Signals[0])
	}
	return out
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
