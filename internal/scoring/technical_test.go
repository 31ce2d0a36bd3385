package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equityrun/equityrun/internal/config"
	"github.com/equityrun/equityrun/internal/domain"
)

func seriesFromCloses(symbol string, closes []float64) *domain.MarketSeries {
	bars := make([]domain.Bar, len(closes))
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		bars[i] = domain.Bar{
			Date:   start.AddDate(0, 0, i),
			Open:   c * 0.99,
			High:   c * 1.01,
			Low:    c * 0.98,
			Close:  c,
			Volume: 1_000_000,
		}
	}
	return &domain.MarketSeries{Symbol: symbol, Bars: bars}
}

func trendingSeries(symbol string, n int, start, step float64) *domain.MarketSeries {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = start + step*float64(i)
	}
	return seriesFromCloses(symbol, closes)
}

func usProfile(t *testing.T) (*config.ScoringProfile, *config.Thresholds) {
	t.Helper()
	cfg := config.Default()
	profile, err := cfg.Profile(domain.MarketUS)
	require.NoError(t, err)
	th, err := cfg.MarketThresholds(domain.MarketUS)
	require.NoError(t, err)
	return profile, th
}

func TestTechnicalScorer_InsufficientData(t *testing.T) {
	profile, th := usProfile(t)
	scorer := NewTechnicalScorer()

	_, err := scorer.Score(trendingSeries("AAPL", 20, 100, 1), profile, th)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = scorer.Score(nil, profile, th)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = scorer.Score(trendingSeries("AAPL", MinBars, 100, 1), profile, th)
	assert.NoError(t, err)
}

func TestTechnicalScorer_UptrendScoresAboveDowntrend(t *testing.T) {
	profile, th := usProfile(t)
	scorer := NewTechnicalScorer()

	up, err := scorer.Score(trendingSeries("UP", 90, 100, 1.5), profile, th)
	require.NoError(t, err)
	down, err := scorer.Score(trendingSeries("DOWN", 90, 250, -1.5), profile, th)
	require.NoError(t, err)

	assert.Greater(t, up.Score, down.Score)
	assert.GreaterOrEqual(t, up.Score, 0.0)
	assert.LessOrEqual(t, up.Score, 100.0)
	assert.GreaterOrEqual(t, down.Score, 0.0)

	maUp := up.SubScores[config.IndMATrend]
	assert.Contains(t, maUp.Signals, "price above MA20, medium-term trend improving")
	assert.Greater(t, maUp.Score, 50.0)

	macdDown := down.SubScores[config.IndMACD]
	assert.Less(t, macdDown.Score, 50.0)
}

func TestTechnicalScorer_WeightedAggregateMatchesSubScores(t *testing.T) {
	profile, th := usProfile(t)
	scorer := NewTechnicalScorer()

	result, err := scorer.Score(trendingSeries("MSFT", 90, 50, 0.8), profile, th)
	require.NoError(t, err)

	expected := 0.0
	for key, weight := range profile.Technical {
		sub, ok := result.SubScores[key]
		require.True(t, ok, "missing sub-score %s", key)
		expected += sub.Score * weight
	}
	expected = math.Round(math.Max(0, math.Min(100, expected))*100) / 100

	assert.InDelta(t, expected, result.Score, 1e-9)
}

func TestTechnicalScorer_AllSubScoresInRange(t *testing.T) {
	profile, th := usProfile(t)
	scorer := NewTechnicalScorer()

	for _, series := range []*domain.MarketSeries{
		trendingSeries("A", 120, 100, 2),
		trendingSeries("B", 120, 400, -3),
		seriesFromCloses("C", constantSlice(100.0, 60)),
	} {
		result, err := scorer.Score(series, profile, th)
		require.NoError(t, err)
		for key, sub := range result.SubScores {
			assert.GreaterOrEqual(t, sub.Score, 0.0, "%s/%s", series.Symbol, key)
			assert.LessOrEqual(t, sub.Score, 100.0, "%s/%s", series.Symbol, key)
		}
	}
}

func TestScoreBollinger_FlatSeriesIsNeutral(t *testing.T) {
	series := seriesFromCloses("FLAT", constantSlice(42.0, 40))
	sub := scoreBollinger(series)
	assert.Equal(t, 50.0, sub.Score)
	assert.Contains(t, sub.Signals[0], "width is zero")
}

func TestRSISimple(t *testing.T) {
	// Alternating +2/-1 moves: avg gain 1.0, avg loss 0.5 over the window,
	// RS=2 so RSI = 100 - 100/3.
	closes := []float64{100}
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			closes = append(closes, closes[len(closes)-1]+2)
		} else {
			closes = append(closes, closes[len(closes)-1]-1)
		}
	}
	rsi, ok := rsiSimple(closes, 14)
	require.True(t, ok)
	assert.InDelta(t, 100.0-100.0/3.0, rsi, 1e-9)

	// All gains: the loss average is zero and RSI is unavailable.
	_, ok = rsiSimple([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}, 14)
	assert.False(t, ok)
}

func TestScoreRSI_Bands(t *testing.T) {
	_, th := usProfile(t)

	cases := []struct {
		name  string
		rsi   float64
		score float64
	}{
		{"oversold", 25, 80},
		{"overbought", 75, 20},
		{"neutral", 50, 55},
		{"low side", 35, 65},
		{"elevated", 65, 40},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			series := seriesWithRSI(t, tc.rsi)
			sub := scoreRSI(series, th)
			assert.Equal(t, tc.score, sub.Score)
			assert.InDelta(t, tc.rsi, sub.Values["rsi_14"], 0.5)
		})
	}
}

// seriesWithRSI builds a series whose last 14 deltas produce approximately
// the target RSI: gains of g and losses of l with g/(g+l) = rsi/100.
func seriesWithRSI(t *testing.T, target float64) *domain.MarketSeries {
	t.Helper()
	gain := target
	loss := 100 - target
	closes := []float64{1000}
	for i := 0; i < 40; i++ {
		last := closes[len(closes)-1]
		if i%2 == 0 {
			closes = append(closes, last+gain)
		} else {
			closes = append(closes, last-loss)
		}
	}
	return seriesFromCloses("RSI", closes)
}

func constantSlice(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
