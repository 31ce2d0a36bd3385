package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equityrun/equityrun/internal/domain"
)

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	for _, market := range domain.AllMarkets() {
		profile, err := cfg.Profile(market)
		require.NoError(t, err)
		assert.NotEmpty(t, profile.Technical)
		assert.NotEmpty(t, profile.Fundamental)
		assert.Greater(t, profile.GrowthBonusCap, 0.0)

		th, err := cfg.MarketThresholds(market)
		require.NoError(t, err)
		assert.Greater(t, th.MinRecommendationScore, 0.0)
		assert.Greater(t, th.MaxRecommendations, 0)
	}
}

func TestValidate_WeightSumViolationIsFatal(t *testing.T) {
	cfg := Default()
	cfg.Profiles[domain.MarketUS].Technical[IndRSI] = 0.5

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 1.000")
}

func TestValidate_SplitMustSumToOne(t *testing.T) {
	cfg := Default()
	cfg.Profiles[domain.MarketHK].TechnicalWeight = 0.5 // fundamental stays 0.70

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "split")
}

func TestValidate_UnknownMarket(t *testing.T) {
	cfg := Default()
	cfg.Profiles[domain.Market("JP")] = cfg.Profiles[domain.MarketUS]

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown market")
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "equityrun.yaml")
	override := `
thresholds:
  US:
    max_pe_ratio: 80.0
    max_pb_ratio: 15.0
    min_roe: 8.0
    high_growth_revenue: 20.0
    high_growth_earnings: 20.0
    min_growth_revenue: 8.0
    rsi_oversold: 25.0
    rsi_overbought: 75.0
    min_recommendation_score: 55.0
    max_recommendations: 5
`
	require.NoError(t, os.WriteFile(path, []byte(override), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	us, err := cfg.MarketThresholds(domain.MarketUS)
	require.NoError(t, err)
	assert.Equal(t, 80.0, us.MaxPERatio)
	assert.Equal(t, 5, us.MaxRecommendations)
	assert.Equal(t, 25.0, us.RSIOversold)

	// Untouched markets keep their defaults.
	hk, err := cfg.MarketThresholds(domain.MarketHK)
	require.NoError(t, err)
	assert.Equal(t, 40.0, hk.MaxPERatio)
}

func TestValidate_NegativeCacheExpiry(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.Universe.DynamicIndexes)
	assert.Equal(t, 24, cfg.Universe.CacheExpiryHours)

	cfg.Universe.CacheExpiryHours = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache expiry")
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestPEBenchmark_Fallback(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 30.0, cfg.PEBenchmark("Technology"))
	assert.Equal(t, cfg.DefaultPE, cfg.PEBenchmark("Underwater Basket Weaving"))
}
