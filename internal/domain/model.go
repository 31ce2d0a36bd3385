package domain

import "time"

// Market identifies one of the three supported listing venues.
type Market string

const (
	MarketUS Market = "US"
	MarketHK Market = "HK"
	MarketCN Market = "CN"
)

// AllMarkets returns the recognized markets in presentation order.
func AllMarkets() []Market {
	return []Market{MarketUS, MarketHK, MarketCN}
}

// Valid reports whether m is one of the recognized market identifiers.
func (m Market) Valid() bool {
	switch m {
	case MarketUS, MarketHK, MarketCN:
		return true
	}
	return false
}

// Bar is a single daily OHLCV bar.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// MarketSeries holds one symbol's daily history, chronologically ascending.
type MarketSeries struct {
	Symbol string `json:"symbol"`
	Bars   []Bar  `json:"bars"`
}

// Len returns the number of bars in the series.
func (s *MarketSeries) Len() int { return len(s.Bars) }

// Closes returns the close column in bar order.
func (s *MarketSeries) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Volumes returns the volume column in bar order.
func (s *MarketSeries) Volumes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Volume
	}
	return out
}

// Fundamentals carries the per-company metric snapshot. Pointer fields
// distinguish "not reported" from zero; absent fields are never defaulted.
//
// Ratio fields (ROE, growth rates, margins, dividend yield) are fractions as
// reported upstream (0.18 == 18%). DebtToEquity is a percentage, matching the
// upstream convention.
type Fundamentals struct {
	Symbol      string `json:"symbol"`
	CompanyName string `json:"company_name,omitempty"`
	Sector      string `json:"sector,omitempty"`
	Industry    string `json:"industry,omitempty"`

	PE                *float64 `json:"pe_ratio,omitempty"`
	ForwardPE         *float64 `json:"forward_pe,omitempty"`
	PB                *float64 `json:"pb_ratio,omitempty"`
	ROE               *float64 `json:"roe,omitempty"`
	RevenueGrowth     *float64 `json:"revenue_growth,omitempty"`
	EarningsGrowth    *float64 `json:"earnings_growth,omitempty"`
	ProfitMargin      *float64 `json:"profit_margin,omitempty"`
	DebtToEquity      *float64 `json:"debt_to_equity,omitempty"`
	FreeCashflow      *float64 `json:"free_cashflow,omitempty"`
	PEG               *float64 `json:"peg_ratio,omitempty"`
	DividendYield     *float64 `json:"dividend_yield,omitempty"`
	MarketCap         *float64 `json:"market_cap,omitempty"`
	SharesOutstanding *float64 `json:"shares_outstanding,omitempty"`
}

// Float is a convenience constructor for optional numeric fields.
func Float(v float64) *float64 { return &v }

// SubScore is one indicator's or metric's contribution: a score in [0,100],
// the human-readable signals it produced, and the raw values behind it.
type SubScore struct {
	Score   float64            `json:"score"`
	Signals []string           `json:"signals,omitempty"`
	Values  map[string]float64 `json:"values,omitempty"`
}

// TechnicalResult is the technical scorer's output for one symbol.
type TechnicalResult struct {
	Symbol     string              `json:"symbol"`
	Score      float64             `json:"score"`
	SubScores  map[string]SubScore `json:"sub_scores"`
	Signals    []string            `json:"signals"`
	Indicators map[string]float64  `json:"indicators"`
}

// GrowthLabel classifies a company's growth character.
type GrowthLabel string

const (
	GrowthHyper          GrowthLabel = "hyper_growth"
	GrowthEarningsLed    GrowthLabel = "earnings_led_growth"
	GrowthRevenueLed     GrowthLabel = "revenue_led_growth"
	GrowthSteady         GrowthLabel = "steady_growth"
	GrowthDoubleDecline  GrowthLabel = "double_decline"
	GrowthRevenueDecline GrowthLabel = "revenue_decline"
	GrowthLow            GrowthLabel = "low_growth"
	GrowthUnknown        GrowthLabel = "unknown"
)

// GrowthProfile is the growth profiler's classification plus the evidence it
// used. Growth rates here are percentages (30.0 == 30%).
type GrowthProfile struct {
	RevenueGrowth  *float64    `json:"revenue_growth,omitempty"`
	EarningsGrowth *float64    `json:"earnings_growth,omitempty"`
	PEG            *float64    `json:"peg_ratio,omitempty"`
	FCFPerShare    *float64    `json:"fcf_per_share,omitempty"`
	Label          GrowthLabel `json:"label"`
	Bonus          float64     `json:"bonus"`
	Signals        []string    `json:"signals,omitempty"`
}

// FundamentalResult is the fundamental scorer's output for one symbol. Score
// already includes the growth bonus.
type FundamentalResult struct {
	Symbol    string              `json:"symbol"`
	Score     float64             `json:"score"`
	SubScores map[string]SubScore `json:"sub_scores"`
	Signals   []string            `json:"signals"`
	Metrics   Fundamentals        `json:"metrics"`
	Growth    *GrowthProfile      `json:"growth,omitempty"`
}

// Tier is the discrete recommendation level derived from the total score.
type Tier string

const (
	TierStrongBuy Tier = "strong_buy"
	TierBuy       Tier = "buy"
	TierHold      Tier = "hold"
	TierAvoid     Tier = "avoid"
)

// StockEvaluation is the strategy engine's output unit. It is created once
// per (symbol, data snapshot) pair and never mutated afterwards; presentation
// layers format it without recomputing any score.
type StockEvaluation struct {
	Symbol      string `json:"symbol"`
	CompanyName string `json:"company_name,omitempty"`
	Market      Market `json:"market"`
	Sector      string `json:"sector,omitempty"`

	TechnicalScore   float64 `json:"technical_score"`
	FundamentalScore float64 `json:"fundamental_score"`
	TotalScore       float64 `json:"total_score"`

	GrowthLabel GrowthLabel `json:"growth_label,omitempty"`
	GrowthBonus float64     `json:"growth_bonus"`

	Tier    Tier     `json:"tier"`
	Reasons []string `json:"reasons"`

	Technical   *TechnicalResult   `json:"technical,omitempty"`
	Fundamental *FundamentalResult `json:"fundamental,omitempty"`
}

// EvaluationError records a symbol that was analyzed but could not be scored.
// It is reported alongside the ranked list, never inside it.
type EvaluationError struct {
	Symbol string `json:"symbol"`
	Market Market `json:"market"`
	Err    string `json:"error"`
}
