package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equityrun/equityrun/internal/config"
	"github.com/equityrun/equityrun/internal/domain"
)

func growthThresholds() *config.Thresholds {
	return &config.Thresholds{
		HighGrowthRevenue:  25.0,
		HighGrowthEarnings: 25.0,
		MinGrowthRevenue:   10.0,
	}
}

func TestGrowthProfiler_HyperGrowthWithPEGBand(t *testing.T) {
	gp := NewGrowthProfiler()
	f := &domain.Fundamentals{
		RevenueGrowth:  domain.Float(0.30),
		EarningsGrowth: domain.Float(0.35),
		PEG:            domain.Float(0.9),
	}

	profile := gp.Profile(f, growthThresholds(), 15.0)
	require.NotNil(t, profile)

	// Base +12 for hyper growth, +2 for PEG in [0.8, 1.2].
	assert.Equal(t, domain.GrowthHyper, profile.Label)
	assert.Equal(t, 14.0, profile.Bonus)
	assert.Equal(t, 30.0, *profile.RevenueGrowth)
	assert.Equal(t, 35.0, *profile.EarningsGrowth)
}

func TestGrowthProfiler_BonusCapped(t *testing.T) {
	gp := NewGrowthProfiler()
	f := &domain.Fundamentals{
		RevenueGrowth:  domain.Float(0.40),
		EarningsGrowth: domain.Float(0.40),
		PEG:            domain.Float(0.5),
		FreeCashflow:   domain.Float(1e9),
	}

	// Raw 12 + 4 + 1.5 = 17.5, capped at 15.
	profile := gp.Profile(f, growthThresholds(), 15.0)
	assert.Equal(t, 15.0, profile.Bonus)

	// Same inputs under the HK cap.
	profile = gp.Profile(f, growthThresholds(), 12.0)
	assert.Equal(t, 12.0, profile.Bonus)
}

func TestGrowthProfiler_LabelLadder(t *testing.T) {
	gp := NewGrowthProfiler()
	th := growthThresholds()

	cases := []struct {
		name  string
		rev   float64
		earn  float64
		label domain.GrowthLabel
		bonus float64
	}{
		{"earnings led", 0.12, 0.30, domain.GrowthEarningsLed, 9.0},
		{"revenue led", 0.30, 0.10, domain.GrowthRevenueLed, 7.0},
		{"steady", 0.12, 0.05, domain.GrowthSteady, 4.0},
		{"double decline", -0.10, -0.15, domain.GrowthDoubleDecline, -5.0},
		{"low growth", 0.02, 0.05, domain.GrowthLow, 0.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := &domain.Fundamentals{
				RevenueGrowth:  domain.Float(tc.rev),
				EarningsGrowth: domain.Float(tc.earn),
			}
			profile := gp.Profile(f, th, 15.0)
			assert.Equal(t, tc.label, profile.Label)
			assert.Equal(t, tc.bonus, profile.Bonus)
		})
	}
}

func TestGrowthProfiler_RevenueOnlyEvidence(t *testing.T) {
	gp := NewGrowthProfiler()
	th := growthThresholds()

	fast := gp.Profile(&domain.Fundamentals{RevenueGrowth: domain.Float(0.30)}, th, 15.0)
	assert.Equal(t, domain.GrowthRevenueLed, fast.Label)
	assert.Equal(t, 6.0, fast.Bonus)

	steady := gp.Profile(&domain.Fundamentals{RevenueGrowth: domain.Float(0.12)}, th, 15.0)
	assert.Equal(t, domain.GrowthSteady, steady.Label)
	assert.Equal(t, 3.0, steady.Bonus)

	declining := gp.Profile(&domain.Fundamentals{RevenueGrowth: domain.Float(-0.08)}, th, 15.0)
	assert.Equal(t, domain.GrowthRevenueDecline, declining.Label)
	assert.Equal(t, -3.0, declining.Bonus)
}

func TestGrowthProfiler_TotalAndDeterministic(t *testing.T) {
	gp := NewGrowthProfiler()
	th := growthThresholds()

	empty := gp.Profile(&domain.Fundamentals{}, th, 15.0)
	assert.Equal(t, domain.GrowthUnknown, empty.Label)
	assert.Equal(t, 0.0, empty.Bonus)

	missing := gp.Profile(nil, th, 15.0)
	assert.Equal(t, domain.GrowthUnknown, missing.Label)

	f := &domain.Fundamentals{
		RevenueGrowth:  domain.Float(0.22),
		EarningsGrowth: domain.Float(0.18),
		PEG:            domain.Float(2.8),
		FreeCashflow:   domain.Float(-5e8),
	}
	a := gp.Profile(f, th, 15.0)
	b := gp.Profile(f, th, 15.0)
	assert.Equal(t, a.Label, b.Label)
	assert.Equal(t, a.Bonus, b.Bonus)
	// Steady growth +4, expensive PEG -2, negative FCF -1.
	assert.Equal(t, 1.0, a.Bonus)
}
