package scoring

import (
	"errors"
	"fmt"
	"math"

	"github.com/equityrun/equityrun/internal/config"
	"github.com/equityrun/equityrun/internal/domain"
)

// ErrInsufficientData is returned when a series is too short to score.
var ErrInsufficientData = errors.New("insufficient history")

// MinBars is the minimum series length the technical scorer accepts.
const MinBars = 30

const neutralScore = 50.0

// TechnicalScorer computes the five technical sub-scores and combines them
// via a market profile's technical weights. Stateless; safe for concurrent use.
type TechnicalScorer struct{}

// NewTechnicalScorer returns a technical scorer.
func NewTechnicalScorer() *TechnicalScorer { return &TechnicalScorer{} }

// Score evaluates one symbol's history. It fails only when fewer than MinBars
// bars are present; any computable input yields a result.
func (ts *TechnicalScorer) Score(series *domain.MarketSeries, profile *config.ScoringProfile, th *config.Thresholds) (*domain.TechnicalResult, error) {
	if series == nil || series.Len() < MinBars {
		n := 0
		symbol := ""
		if series != nil {
			n = series.Len()
			symbol = series.Symbol
		}
		return nil, fmt.Errorf("%s: %w: have %d bars, need %d", symbol, ErrInsufficientData, n, MinBars)
	}

	subs := map[string]domain.SubScore{
		config.IndMATrend:     scoreMATrend(series),
		config.IndRSI:         scoreRSI(series, th),
		config.IndMACD:        scoreMACD(series),
		config.IndBollinger:   scoreBollinger(series),
		config.IndVolumeTrend: scoreVolumeTrend(series),
	}

	result := &domain.TechnicalResult{
		Symbol:     series.Symbol,
		SubScores:  subs,
		Indicators: make(map[string]float64),
	}

	// Aggregation is a pure weight lookup over the sub-score registry; an
	// indicator a profile names but the registry lacks contributes neutral.
	total := 0.0
	for key, weight := range profile.Technical {
		sub, ok := subs[key]
		if !ok {
			total += neutralScore * weight
			continue
		}
		total += sub.Score * weight
	}
	result.Score = round2(clampScore(total))

	for _, key := range []string{config.IndMATrend, config.IndRSI, config.IndMACD, config.IndBollinger, config.IndVolumeTrend} {
		sub := subs[key]
		result.Signals = append(result.Signals, sub.Signals...)
		for name, v := range sub.Values {
			result.Indicators[name] = v
		}
	}

	return result, nil
}

// scoreMATrend scores price position against the 5/20/60-day moving averages
// and the MA5/MA20 golden and death crosses.
func scoreMATrend(series *domain.MarketSeries) domain.SubScore {
	closes := series.Closes()
	n := len(closes)

	ma5 := tailMean(closes, 5)
	ma20 := tailMean(closes, 20)
	ma60 := ma20
	if n >= 60 {
		ma60 = tailMean(closes, 60)
	}

	score := neutralScore
	var signals []string
	latest := closes[n-1]

	if latest > ma5 {
		score += 10
	} else {
		score -= 10
	}
	if latest > ma20 {
		score += 10
		signals = append(signals, "price above MA20, medium-term trend improving")
	} else {
		score -= 10
	}
	if latest > ma60 {
		score += 10
		signals = append(signals, "price above MA60, long-term trend improving")
	} else {
		score -= 10
	}

	// MA5/MA20 cross on the latest bar.
	prevMA5 := tailMeanAt(closes, 5, n-2)
	prevMA20 := tailMeanAt(closes, 20, n-2)
	prevDiff := prevMA5 - prevMA20
	currDiff := ma5 - ma20
	if prevDiff < 0 && currDiff > 0 {
		score += 15
		signals = append(signals, "MA5 crossed above MA20, golden cross")
	} else if prevDiff > 0 && currDiff < 0 {
		score -= 15
		signals = append(signals, "MA5 crossed below MA20, death cross")
	}

	return domain.SubScore{
		Score:   clampScore(score),
		Signals: signals,
		Values: map[string]float64{
			"ma5":  round2(ma5),
			"ma20": round2(ma20),
			"ma60": round2(ma60),
		},
	}
}

// scoreRSI maps the 14-day RSI into score bands: oversold is treated as a
// rebound setup, overbought as a pullback risk.
func scoreRSI(series *domain.MarketSeries, th *config.Thresholds) domain.SubScore {
	const period = 14
	closes := series.Closes()

	rsi, ok := rsiSimple(closes, period)
	if !ok {
		return domain.SubScore{Score: neutralScore, Signals: []string{"RSI unavailable, not enough movement data"}}
	}

	var score float64
	var signal string
	switch {
	case rsi < th.RSIOversold:
		score = 80.0
		signal = fmt.Sprintf("RSI=%.1f in oversold territory, rebound potential", rsi)
	case rsi > th.RSIOverbought:
		score = 20.0
		signal = fmt.Sprintf("RSI=%.1f in overbought territory, pullback risk", rsi)
	case rsi >= 40 && rsi <= 60:
		score = 55.0
		signal = fmt.Sprintf("RSI=%.1f in neutral range", rsi)
	case rsi < 40:
		score = 65.0
		signal = fmt.Sprintf("RSI=%.1f on the low side, room to rise", rsi)
	default:
		score = 40.0
		signal = fmt.Sprintf("RSI=%.1f elevated, momentum strong but stretched", rsi)
	}

	return domain.SubScore{
		Score:   score,
		Signals: []string{signal},
		Values:  map[string]float64{"rsi_14": round2(rsi)},
	}
}

// rsiSimple computes RSI over a simple moving average of the last `period`
// gains and losses. Returns ok=false when losses average to zero, in which
// case the ratio is undefined and the caller treats RSI as unavailable.
func rsiSimple(closes []float64, period int) (float64, bool) {
	if len(closes) < period+1 {
		return 0, false
	}
	gain, loss := 0.0, 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	if loss == 0 {
		return 0, false
	}
	rs := gain / loss
	return 100.0 - 100.0/(1.0+rs), true
}

// scoreMACD scores DIF/DEA alignment, histogram sign flips, and zero-axis
// position, additively from a neutral base.
func scoreMACD(series *domain.MarketSeries) domain.SubScore {
	closes := series.Closes()

	ema12 := emaSeries(closes, 12)
	ema26 := emaSeries(closes, 26)
	dif := make([]float64, len(closes))
	for i := range closes {
		dif[i] = ema12[i] - ema26[i]
	}
	dea := emaSeries(dif, 9)
	hist := make([]float64, len(closes))
	for i := range closes {
		hist[i] = (dif[i] - dea[i]) * 2
	}

	n := len(closes)
	latestDIF := dif[n-1]
	latestDEA := dea[n-1]
	latestHist := hist[n-1]
	prevHist := hist[n-2]

	score := neutralScore
	var signals []string

	if latestDIF > latestDEA {
		score += 15
		signals = append(signals, "MACD: DIF above DEA, bullish alignment")
	} else {
		score -= 15
		signals = append(signals, "MACD: DIF below DEA, bearish alignment")
	}

	switch {
	case latestHist > 0 && prevHist < 0:
		score += 15
		signals = append(signals, "MACD histogram flipped positive, buy signal")
	case latestHist < 0 && prevHist > 0:
		score -= 15
		signals = append(signals, "MACD histogram flipped negative, sell signal")
	case latestHist > prevHist:
		score += 5
	default:
		score -= 5
	}

	if latestDIF > 0 && latestDEA > 0 {
		score += 10
	}

	return domain.SubScore{
		Score:   clampScore(score),
		Signals: signals,
		Values: map[string]float64{
			"macd_dif":  round4(latestDIF),
			"macd_dea":  round4(latestDEA),
			"macd_hist": round4(latestHist),
		},
	}
}

// scoreBollinger scores the close's position inside the 20-day, 2-sigma band.
func scoreBollinger(series *domain.MarketSeries) domain.SubScore {
	const period = 20
	const numStd = 2.0

	closes := series.Closes()
	n := len(closes)
	mid := tailMean(closes, period)
	std := tailSampleStd(closes, period)
	upper := mid + numStd*std
	lower := mid - numStd*std

	width := upper - lower
	if width == 0 {
		return domain.SubScore{Score: neutralScore, Signals: []string{"Bollinger band width is zero"}}
	}

	// 0 = lower band, 1 = upper band.
	position := (closes[n-1] - lower) / width

	var score float64
	var signal string
	switch {
	case position < 0.1:
		score = 75.0
		signal = "price near lower Bollinger band, rebound potential"
	case position > 0.9:
		score = 25.0
		signal = "price near upper Bollinger band, pullback risk"
	case position >= 0.4 && position <= 0.6:
		score = 55.0
		signal = "price near Bollinger midline, neutral posture"
	case position < 0.4:
		score = 60.0
		signal = "price in lower half of Bollinger band, some rebound room"
	default:
		score = 45.0
		signal = "price in upper half of Bollinger band"
	}

	return domain.SubScore{
		Score:   score,
		Signals: []string{signal},
		Values: map[string]float64{
			"boll_upper":    round2(upper),
			"boll_mid":      round2(mid),
			"boll_lower":    round2(lower),
			"boll_position": round4(position),
		},
	}
}

// scoreVolumeTrend scores the latest volume against its 5- and 20-day
// averages, in the direction of the latest price move.
func scoreVolumeTrend(series *domain.MarketSeries) domain.SubScore {
	volumes := series.Volumes()
	closes := series.Closes()
	n := len(volumes)

	volMA5 := tailMean(volumes, 5)
	volMA20 := tailMean(volumes, 20)
	latestVol := volumes[n-1]
	priceChange := (closes[n-1] - closes[n-2]) / closes[n-2]

	score := neutralScore
	var signals []string

	switch {
	case latestVol > volMA20*1.5 && priceChange > 0:
		score += 20
		signals = append(signals, "rising price on expanding volume, buying pressure building")
	case latestVol > volMA20*1.5 && priceChange < 0:
		score -= 15
		signals = append(signals, "falling price on expanding volume, selling pressure heavy")
	case latestVol < volMA20*0.5:
		score -= 5
		signals = append(signals, "volume drying up, market attention fading")
	}

	if volMA5 > volMA20 {
		score += 5
		signals = append(signals, "short-term volume activity picking up")
	}

	return domain.SubScore{
		Score:   clampScore(score),
		Signals: signals,
		Values: map[string]float64{
			"volume_latest": latestVol,
			"volume_ma5":    math.Trunc(volMA5),
			"volume_ma20":   math.Trunc(volMA20),
		},
	}
}

// tailMean returns the mean of the last `window` values.
func tailMean(vals []float64, window int) float64 {
	return tailMeanAt(vals, window, len(vals)-1)
}

// tailMeanAt returns the mean of the `window` values ending at index `end`.
func tailMeanAt(vals []float64, window, end int) float64 {
	sum := 0.0
	for i := end - window + 1; i <= end; i++ {
		sum += vals[i]
	}
	return sum / float64(window)
}

// tailSampleStd returns the sample standard deviation of the last `window` values.
func tailSampleStd(vals []float64, window int) float64 {
	mean := tailMean(vals, window)
	sum := 0.0
	for i := len(vals) - window; i < len(vals); i++ {
		d := vals[i] - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(window-1))
}

// emaSeries computes a standard recursive EMA seeded with the first value.
func emaSeries(vals []float64, span int) []float64 {
	alpha := 2.0 / (float64(span) + 1.0)
	out := make([]float64, len(vals))
	out[0] = vals[0]
	for i := 1; i < len(vals); i++ {
		out[i] = alpha*vals[i] + (1-alpha)*out[i-1]
	}
	return out
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
