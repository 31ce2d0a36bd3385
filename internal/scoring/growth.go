package scoring

import (
	"fmt"

	"github.com/equityrun/equityrun/internal/config"
	"github.com/equityrun/equityrun/internal/domain"
)

// GrowthProfiler classifies growth character from revenue growth, earnings
// growth and PEG, and emits a bonus clamped to the market's cap. Pure and
// deterministic; missing inputs degrade the evidence, never fail.
type GrowthProfiler struct{}

// NewGrowthProfiler returns a growth profiler.
func NewGrowthProfiler() *GrowthProfiler { return &GrowthProfiler{} }

// Profile derives the growth label and bonus for one company. The bonus is
// clamped to [-cap, +cap]; a negative bonus drags the fundamental score while
// the final fundamental total is clamped separately.
func (gp *GrowthProfiler) Profile(f *domain.Fundamentals, th *config.Thresholds, cap float64) *domain.GrowthProfile {
	profile := &domain.GrowthProfile{Label: domain.GrowthUnknown}
	if f == nil {
		return profile
	}

	var revPct, earnPct *float64
	if f.RevenueGrowth != nil {
		revPct = domain.Float(round2(*f.RevenueGrowth * 100))
	}
	if f.EarningsGrowth != nil {
		earnPct = domain.Float(round2(*f.EarningsGrowth * 100))
	}
	profile.RevenueGrowth = revPct
	profile.EarningsGrowth = earnPct
	profile.PEG = f.PEG
	if f.FreeCashflow != nil && f.SharesOutstanding != nil && *f.SharesOutstanding > 0 {
		profile.FCFPerShare = domain.Float(round2(*f.FreeCashflow / *f.SharesOutstanding))
	}

	bonus := 0.0

	switch {
	case revPct != nil && earnPct != nil:
		rev, earn := *revPct, *earnPct
		// First matching rule wins.
		switch {
		case rev >= th.HighGrowthRevenue && earn >= th.HighGrowthEarnings:
			profile.Label = domain.GrowthHyper
			bonus += 12.0
			profile.Signals = append(profile.Signals,
				fmt.Sprintf("[hyper growth] revenue +%.1f%% and earnings +%.1f%% both expanding fast", rev, earn))
		case rev >= th.MinGrowthRevenue && earn >= th.HighGrowthEarnings:
			profile.Label = domain.GrowthEarningsLed
			bonus += 9.0
			profile.Signals = append(profile.Signals,
				fmt.Sprintf("[earnings-led growth] earnings +%.1f%% standout with steady revenue +%.1f%%", earn, rev))
		case rev >= th.HighGrowthRevenue && earn >= 0:
			profile.Label = domain.GrowthRevenueLed
			bonus += 7.0
			profile.Signals = append(profile.Signals,
				fmt.Sprintf("[revenue-led growth] revenue growing at a strong %.1f%%", rev))
		case rev >= th.MinGrowthRevenue && earn >= 0:
			profile.Label = domain.GrowthSteady
			bonus += 4.0
			profile.Signals = append(profile.Signals,
				fmt.Sprintf("[steady growth] revenue +%.1f%%, earnings +%.1f%%", rev, earn))
		case rev < 0 && earn < 0:
			profile.Label = domain.GrowthDoubleDecline
			bonus -= 5.0
			profile.Signals = append(profile.Signals,
				fmt.Sprintf("[double decline] revenue %.1f%% and earnings %.1f%% both shrinking", rev, earn))
		default:
			profile.Label = domain.GrowthLow
			profile.Signals = append(profile.Signals,
				fmt.Sprintf("[low growth] revenue %.1f%%, earnings %.1f%%", rev, earn))
		}
	case revPct != nil:
		// Revenue-only evidence: same ladder at reduced confidence.
		rev := *revPct
		switch {
		case rev >= th.HighGrowthRevenue:
			profile.Label = domain.GrowthRevenueLed
			bonus += 6.0
			profile.Signals = append(profile.Signals,
				fmt.Sprintf("[revenue-led growth] revenue growing at %.1f%%", rev))
		case rev >= th.MinGrowthRevenue:
			profile.Label = domain.GrowthSteady
			bonus += 3.0
		case rev < -5:
			profile.Label = domain.GrowthRevenueDecline
			bonus -= 3.0
			profile.Signals = append(profile.Signals,
				fmt.Sprintf("revenue %.1f%%, growth under pressure", rev))
		default:
			profile.Label = domain.GrowthLow
		}
	}

	if f.PEG != nil {
		peg := *f.PEG
		switch {
		case peg > 0 && peg < 0.8:
			bonus += 4.0
			profile.Signals = append(profile.Signals,
				fmt.Sprintf("PEG=%.2f, growth available at a very attractive price", peg))
		case peg >= 0.8 && peg <= 1.2:
			bonus += 2.0
			profile.Signals = append(profile.Signals,
				fmt.Sprintf("PEG=%.2f, valuation in line with growth", peg))
		case peg > 2.0:
			bonus -= 2.0
			profile.Signals = append(profile.Signals,
				fmt.Sprintf("PEG=%.2f, growth looks expensive relative to valuation", peg))
		}
	}

	if f.FreeCashflow != nil {
		if *f.FreeCashflow > 0 {
			bonus += 1.5
			profile.Signals = append(profile.Signals, "positive free cash flow backs the growth quality")
		} else {
			bonus -= 1.0
		}
	}

	if bonus > cap {
		bonus = cap
	} else if bonus < -cap {
		bonus = -cap
	}
	profile.Bonus = round2(bonus)

	return profile
}
