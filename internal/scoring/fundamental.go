package scoring

import (
	"fmt"

	"github.com/equityrun/equityrun/internal/config"
	"github.com/equityrun/equityrun/internal/domain"
)

// FundamentalScorer computes up to ten metric sub-scores and combines them
// via a market profile's fundamental weights, then adds the growth bonus.
// It never fails: any missing field degrades to a neutral sub-score with an
// explanatory signal. The sector PE table is injected so tests can substitute
// deterministic benchmarks.
type FundamentalScorer struct {
	sectorPE  map[string]float64
	defaultPE float64
	growth    *GrowthProfiler
}

// NewFundamentalScorer returns a fundamental scorer using the given sector
// PE benchmark table.
func NewFundamentalScorer(sectorPE map[string]float64, defaultPE float64) *FundamentalScorer {
	return &FundamentalScorer{
		sectorPE:  sectorPE,
		defaultPE: defaultPE,
		growth:    NewGrowthProfiler(),
	}
}

func (fs *FundamentalScorer) benchmarkPE(sector string) float64 {
	if pe, ok := fs.sectorPE[sector]; ok {
		return pe
	}
	return fs.defaultPE
}

// Score evaluates one company's fundamentals for the given market profile
// and thresholds. The returned score already includes the growth bonus.
func (fs *FundamentalScorer) Score(f *domain.Fundamentals, market domain.Market, profile *config.ScoringProfile, th *config.Thresholds) *domain.FundamentalResult {
	if f == nil {
		return &domain.FundamentalResult{
			Score:   neutralScore,
			Signals: []string{"fundamentals unavailable"},
			Growth:  &domain.GrowthProfile{Label: domain.GrowthUnknown},
		}
	}

	subs := map[string]domain.SubScore{
		config.MetPERatio:        fs.scorePE(f, th),
		config.MetPBRatio:        scorePB(f, th),
		config.MetROE:            scoreROE(f, th),
		config.MetRevenueGrowth:  scoreRevenueGrowth(f, th),
		config.MetEarningsGrowth: scoreEarningsGrowth(f, th),
		config.MetProfitMargin:   scoreProfitMargin(f),
		config.MetDebtRatio:      scoreDebtRatio(f),
		config.MetFreeCashflow:   scoreFreeCashflow(f),
		config.MetPEGRatio:       scorePEG(f),
		config.MetDividendYield:  scoreDividendYield(f, market),
	}

	result := &domain.FundamentalResult{
		Symbol:    f.Symbol,
		SubScores: subs,
		Metrics:   *f,
	}
	for _, key := range []string{
		config.MetPERatio, config.MetPBRatio, config.MetROE,
		config.MetRevenueGrowth, config.MetEarningsGrowth, config.MetProfitMargin,
		config.MetDebtRatio, config.MetFreeCashflow, config.MetPEGRatio,
		config.MetDividendYield,
	} {
		result.Signals = append(result.Signals, subs[key].Signals...)
	}

	total := 0.0
	weightUsed := 0.0
	for key, weight := range profile.Fundamental {
		sub, ok := subs[key]
		if !ok {
			continue
		}
		total += sub.Score * weight
		weightUsed += weight
	}
	// Market profiles use metric subsets; renormalize over the weight
	// actually applied so absent metrics never dilute the base.
	if weightUsed > 0 && weightUsed < 0.99 {
		total /= weightUsed
	}
	base := round2(total)

	growth := fs.growth.Profile(f, th, profile.GrowthBonusCap)
	result.Growth = growth
	result.Signals = append(result.Signals, growth.Signals...)
	result.Score = round2(clampScore(base + growth.Bonus))

	return result
}

func (fs *FundamentalScorer) scorePE(f *domain.Fundamentals, th *config.Thresholds) domain.SubScore {
	benchmark := fs.benchmarkPE(f.Sector)

	var signals []string
	var pe float64
	switch {
	case f.PE != nil && *f.PE > 0:
		pe = *f.PE
	case f.ForwardPE != nil && *f.ForwardPE > 0:
		pe = *f.ForwardPE
		signals = append(signals, fmt.Sprintf("using forward PE=%.1f for valuation", pe))
	default:
		return domain.SubScore{Score: 40.0, Signals: []string{"PE unavailable, valuation not assessable"}}
	}

	var score float64
	switch {
	case pe > th.MaxPERatio:
		score = 15.0
		signals = append(signals, fmt.Sprintf("PE=%.1f far above the %.0f ceiling, valuation rich", pe, th.MaxPERatio))
	case pe > benchmark*1.5:
		score = 25.0
		signals = append(signals, fmt.Sprintf("PE=%.1f above 1.5x the sector benchmark %.0f, valuation elevated", pe, benchmark))
	case pe > benchmark:
		score = 45.0
		signals = append(signals, fmt.Sprintf("PE=%.1f slightly above the sector benchmark %.0f", pe, benchmark))
	case pe > benchmark*0.7:
		score = 65.0
		signals = append(signals, fmt.Sprintf("PE=%.1f near the sector benchmark %.0f, valuation fair", pe, benchmark))
	case pe > benchmark*0.5:
		score = 80.0
		signals = append(signals, fmt.Sprintf("PE=%.1f below the sector benchmark %.0f, valuation attractive", pe, benchmark))
	default:
		score = 85.0
		signals = append(signals, fmt.Sprintf("PE=%.1f far below the sector benchmark %.0f, possibly undervalued", pe, benchmark))
	}

	return domain.SubScore{Score: score, Signals: signals, Values: map[string]float64{"pe": round2(pe), "pe_benchmark": benchmark}}
}

func scorePB(f *domain.Fundamentals, th *config.Thresholds) domain.SubScore {
	if f.PB == nil {
		return domain.SubScore{Score: neutralScore, Signals: []string{"PB unavailable"}}
	}
	pb := *f.PB

	var score float64
	var signal string
	switch {
	case pb < 0:
		score = 20.0
		signal = "PB negative, book value below zero, elevated risk"
	case pb > th.MaxPBRatio:
		score = 20.0
		signal = fmt.Sprintf("PB=%.2f above the %.0f ceiling", pb, th.MaxPBRatio)
	case pb > 5:
		score = 35.0
		signal = fmt.Sprintf("PB=%.2f on the high side", pb)
	case pb > 3:
		score = 50.0
		signal = fmt.Sprintf("PB=%.2f moderate", pb)
	case pb > 1:
		score = 70.0
		signal = fmt.Sprintf("PB=%.2f reasonable", pb)
	default:
		score = 80.0
		signal = fmt.Sprintf("PB=%.2f below book value, possibly undervalued", pb)
	}

	return domain.SubScore{Score: score, Signals: []string{signal}, Values: map[string]float64{"pb": round2(pb)}}
}

func scoreROE(f *domain.Fundamentals, th *config.Thresholds) domain.SubScore {
	if f.ROE == nil {
		return domain.SubScore{Score: neutralScore, Signals: []string{"ROE unavailable"}}
	}
	pct := *f.ROE * 100

	var score float64
	var signal string
	switch {
	case pct < 0:
		score = 10.0
		signal = fmt.Sprintf("ROE=%.1f%% negative, profitability poor", pct)
	case pct < th.MinROE:
		score = 30.0
		signal = fmt.Sprintf("ROE=%.1f%% below the %.0f%% floor", pct, th.MinROE)
	case pct < 10:
		score = 50.0
		signal = fmt.Sprintf("ROE=%.1f%% ordinary", pct)
	case pct < 15:
		score = 65.0
		signal = fmt.Sprintf("ROE=%.1f%% decent", pct)
	case pct < 25:
		score = 80.0
		signal = fmt.Sprintf("ROE=%.1f%% excellent", pct)
	default:
		score = 90.0
		signal = fmt.Sprintf("ROE=%.1f%% outstanding, very strong profitability", pct)
	}

	return domain.SubScore{Score: score, Signals: []string{signal}, Values: map[string]float64{"roe_pct": round2(pct)}}
}

func scoreRevenueGrowth(f *domain.Fundamentals, th *config.Thresholds) domain.SubScore {
	if f.RevenueGrowth == nil {
		return domain.SubScore{Score: neutralScore, Signals: []string{"revenue growth unavailable"}}
	}
	pct := *f.RevenueGrowth * 100

	var score float64
	var signal string
	switch {
	case pct < -10:
		score = 15.0
		signal = fmt.Sprintf("revenue growth %.1f%%, shrinking sharply", pct)
	case pct < 0:
		score = 30.0
		signal = fmt.Sprintf("revenue growth %.1f%%, slipping", pct)
	case pct < 5:
		score = 45.0
		signal = fmt.Sprintf("revenue growth %.1f%%, sluggish", pct)
	case pct < 15:
		score = 60.0
		signal = fmt.Sprintf("revenue growth %.1f%%, steady", pct)
	case pct < th.HighGrowthRevenue:
		score = 75.0
		signal = fmt.Sprintf("revenue growth %.1f%%, brisk", pct)
	default:
		score = 90.0
		signal = fmt.Sprintf("revenue growth %.1f%%, expanding at high speed", pct)
	}

	return domain.SubScore{Score: score, Signals: []string{signal}, Values: map[string]float64{"revenue_growth_pct": round2(pct)}}
}

func scoreEarningsGrowth(f *domain.Fundamentals, th *config.Thresholds) domain.SubScore {
	if f.EarningsGrowth == nil {
		return domain.SubScore{Score: neutralScore, Signals: []string{"earnings growth unavailable"}}
	}
	pct := *f.EarningsGrowth * 100

	var score float64
	var signal string
	switch {
	case pct < -20:
		score = 10.0
		signal = fmt.Sprintf("earnings growth %.1f%%, collapsing", pct)
	case pct < -5:
		score = 25.0
		signal = fmt.Sprintf("earnings growth %.1f%%, clearly declining", pct)
	case pct < 0:
		score = 35.0
		signal = fmt.Sprintf("earnings growth %.1f%%, slipping", pct)
	case pct < 10:
		score = 50.0
		signal = fmt.Sprintf("earnings growth %.1f%%, flat", pct)
	case pct < th.HighGrowthEarnings:
		score = 70.0
		signal = fmt.Sprintf("earnings growth %.1f%%, steady", pct)
	default:
		score = 90.0
		signal = fmt.Sprintf("earnings growth %.1f%%, expanding at high speed", pct)
	}

	return domain.SubScore{Score: score, Signals: []string{signal}, Values: map[string]float64{"earnings_growth_pct": round2(pct)}}
}

func scoreProfitMargin(f *domain.Fundamentals) domain.SubScore {
	if f.ProfitMargin == nil {
		return domain.SubScore{Score: neutralScore, Signals: []string{"profit margin unavailable"}}
	}
	pct := *f.ProfitMargin * 100

	var score float64
	var signal string
	switch {
	case pct < 0:
		score = 10.0
		signal = fmt.Sprintf("net margin %.1f%%, loss-making", pct)
	case pct < 5:
		score = 35.0
		signal = fmt.Sprintf("net margin %.1f%%, thin profitability", pct)
	case pct < 10:
		score = 50.0
		signal = fmt.Sprintf("net margin %.1f%%, ordinary", pct)
	case pct < 20:
		score = 70.0
		signal = fmt.Sprintf("net margin %.1f%%, healthy", pct)
	default:
		score = 85.0
		signal = fmt.Sprintf("net margin %.1f%%, excellent profitability", pct)
	}

	return domain.SubScore{Score: score, Signals: []string{signal}, Values: map[string]float64{"profit_margin_pct": round2(pct)}}
}

func scoreDebtRatio(f *domain.Fundamentals) domain.SubScore {
	if f.DebtToEquity == nil {
		return domain.SubScore{Score: neutralScore, Signals: []string{"debt/equity unavailable"}}
	}
	de := *f.DebtToEquity

	var score float64
	var signal string
	switch {
	case de > 200:
		score = 15.0
		signal = fmt.Sprintf("debt/equity %.0f%%, leverage extreme", de)
	case de > 100:
		score = 35.0
		signal = fmt.Sprintf("debt/equity %.0f%%, leverage high", de)
	case de > 50:
		score = 55.0
		signal = fmt.Sprintf("debt/equity %.0f%%, balance sheet ordinary", de)
	case de > 20:
		score = 75.0
		signal = fmt.Sprintf("debt/equity %.0f%%, balance sheet healthy", de)
	default:
		score = 90.0
		signal = fmt.Sprintf("debt/equity %.0f%%, balance sheet strong", de)
	}

	return domain.SubScore{Score: score, Signals: []string{signal}, Values: map[string]float64{"debt_to_equity": round2(de)}}
}

func scoreFreeCashflow(f *domain.Fundamentals) domain.SubScore {
	if f.FreeCashflow == nil {
		return domain.SubScore{Score: neutralScore, Signals: []string{"free cash flow unavailable"}}
	}
	fcf := *f.FreeCashflow

	if f.MarketCap != nil && *f.MarketCap > 0 {
		yield := fcf / *f.MarketCap * 100
		var score float64
		var signal string
		switch {
		case yield < -2:
			score = 15.0
			signal = fmt.Sprintf("FCF yield %.1f%%, cash flow negative", yield)
		case yield < 0:
			score = 30.0
			signal = fmt.Sprintf("FCF yield %.1f%%, slightly negative", yield)
		case yield < 3:
			score = 55.0
			signal = fmt.Sprintf("FCF yield %.1f%%, ordinary", yield)
		case yield < 6:
			score = 70.0
			signal = fmt.Sprintf("FCF yield %.1f%%, good", yield)
		default:
			score = 85.0
			signal = fmt.Sprintf("FCF yield %.1f%%, excellent", yield)
		}
		return domain.SubScore{Score: score, Signals: []string{signal}, Values: map[string]float64{"fcf_yield_pct": round2(yield)}}
	}

	if fcf > 0 {
		return domain.SubScore{Score: 65.0, Signals: []string{"free cash flow positive"}}
	}
	return domain.SubScore{Score: 30.0, Signals: []string{"free cash flow negative, watch liquidity risk"}}
}

func scorePEG(f *domain.Fundamentals) domain.SubScore {
	if f.PEG == nil {
		return domain.SubScore{Score: neutralScore, Signals: []string{"PEG unavailable"}}
	}
	peg := *f.PEG

	var score float64
	var signal string
	switch {
	case peg < 0:
		score = 25.0
		signal = fmt.Sprintf("PEG=%.2f negative (losses or shrinking earnings)", peg)
	case peg < 0.5:
		score = 90.0
		signal = fmt.Sprintf("PEG=%.2f, growth extremely cheap", peg)
	case peg < 1.0:
		score = 80.0
		signal = fmt.Sprintf("PEG=%.2f, valuation reasonable to low", peg)
	case peg < 1.5:
		score = 65.0
		signal = fmt.Sprintf("PEG=%.2f, valuation reasonable", peg)
	case peg < 2.5:
		score = 45.0
		signal = fmt.Sprintf("PEG=%.2f, valuation elevated", peg)
	default:
		score = 25.0
		signal = fmt.Sprintf("PEG=%.2f, valuation excessive", peg)
	}

	return domain.SubScore{Score: score, Signals: []string{signal}, Values: map[string]float64{"peg": round2(peg)}}
}

// scoreDividendYield scores yield bands; the HK profile weights dividends and
// high-yield names there get a small extra nudge.
func scoreDividendYield(f *domain.Fundamentals, market domain.Market) domain.SubScore {
	if f.DividendYield == nil {
		return domain.SubScore{Score: neutralScore, Signals: []string{"dividend yield unavailable"}}
	}
	pct := *f.DividendYield * 100

	var score float64
	var signals []string
	switch {
	case pct <= 0:
		score = 40.0
		signals = append(signals, "no dividend")
	case pct < 1:
		score = 50.0
		signals = append(signals, fmt.Sprintf("dividend yield %.2f%%, low", pct))
	case pct < 3:
		score = 65.0
		signals = append(signals, fmt.Sprintf("dividend yield %.2f%%, moderate", pct))
	case pct < 5:
		score = 80.0
		signals = append(signals, fmt.Sprintf("dividend yield %.2f%%, high", pct))
	default:
		score = 90.0
		signals = append(signals, fmt.Sprintf("dividend yield %.2f%%, very high", pct))
	}

	if market == domain.MarketHK && pct >= 3 {
		if score += 5; score > 95 {
			score = 95
		}
		signals = append(signals, "high-dividend tilt rewarded for the HK market")
	}

	return domain.SubScore{Score: score, Signals: signals, Values: map[string]float64{"dividend_yield_pct": round2(pct)}}
}
