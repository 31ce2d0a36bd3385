package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/equityrun/equityrun/internal/domain"
)

// Indicator and metric keys shared between weight maps and sub-score maps.
const (
	IndMATrend     = "ma_trend"
	IndRSI         = "rsi"
	IndMACD        = "macd"
	IndBollinger   = "bollinger"
	IndVolumeTrend = "volume_trend"

	MetPERatio        = "pe_ratio"
	MetPBRatio        = "pb_ratio"
	MetROE            = "roe"
	MetRevenueGrowth  = "revenue_growth"
	MetEarningsGrowth = "earnings_growth"
	MetProfitMargin   = "profit_margin"
	MetDebtRatio      = "debt_ratio"
	MetFreeCashflow   = "free_cashflow"
	MetPEGRatio       = "peg_ratio"
	MetDividendYield  = "dividend_yield"
)

// weightSumTolerance bounds the allowed drift of a weight map away from 1.0.
const weightSumTolerance = 0.01

// ScoringProfile is one market's immutable weight configuration.
type ScoringProfile struct {
	Technical   map[string]float64 `yaml:"technical"`
	Fundamental map[string]float64 `yaml:"fundamental"`

	TechnicalWeight   float64 `yaml:"technical_weight"`
	FundamentalWeight float64 `yaml:"fundamental_weight"`

	GrowthBonusCap float64 `yaml:"growth_bonus_cap"`
}

// Thresholds is one market's screening thresholds.
type Thresholds struct {
	MaxPERatio float64 `yaml:"max_pe_ratio"`
	MaxPBRatio float64 `yaml:"max_pb_ratio"`
	MinROE     float64 `yaml:"min_roe"`

	// Growth tier lines, in percent.
	HighGrowthRevenue  float64 `yaml:"high_growth_revenue"`
	HighGrowthEarnings float64 `yaml:"high_growth_earnings"`
	MinGrowthRevenue   float64 `yaml:"min_growth_revenue"`

	RSIOversold   float64 `yaml:"rsi_oversold"`
	RSIOverbought float64 `yaml:"rsi_overbought"`

	MinRecommendationScore float64 `yaml:"min_recommendation_score"`
	MaxRecommendations     int     `yaml:"max_recommendations"`
}

// DataConfig configures the market-data provider.
type DataConfig struct {
	BaseURL        string        `yaml:"base_url"`
	HistoryDays    int           `yaml:"history_days"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RequestsPerSec float64       `yaml:"requests_per_sec"`
	Burst          int           `yaml:"burst"`
	MaxConcurrency int           `yaml:"max_concurrency"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	RedisAddr      string        `yaml:"redis_addr"`
}

// UniverseConfig configures how the scan universe is resolved. With dynamic
// indexes enabled, index constituent pages are fetched and merged over the
// static watchlists; the watchlists remain the fallback when fetches fail.
type UniverseConfig struct {
	DynamicIndexes   bool `yaml:"dynamic_indexes"`
	CacheExpiryHours int  `yaml:"cache_expiry_hours"`
}

// ServerConfig configures the read-only dashboard server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// DatabaseConfig configures the optional scan-snapshot recorder.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// ScheduleJob is one cron-driven scan.
type ScheduleJob struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"` // cron format: "0 18 * * 1-5"
	Market   string `yaml:"market"`   // "US" / "HK" / "CN" / "" for all
	Enabled  bool   `yaml:"enabled"`
}

// Config is the full application configuration. Defaults() supplies the
// built-in values; Load overlays them from a YAML file.
type Config struct {
	Profiles   map[domain.Market]*ScoringProfile `yaml:"profiles"`
	Thresholds map[domain.Market]*Thresholds     `yaml:"thresholds"`

	// SectorPE maps sector name to its benchmark PE for relative valuation.
	SectorPE  map[string]float64 `yaml:"sector_pe_benchmarks"`
	DefaultPE float64            `yaml:"default_pe_benchmark"`

	Universe UniverseConfig `yaml:"universe"`
	Data     DataConfig     `yaml:"data"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Schedule []ScheduleJob  `yaml:"schedule"`
}

// Default returns the built-in configuration for the three markets.
func Default() *Config {
	return &Config{
		Profiles: map[domain.Market]*ScoringProfile{
			// US: earnings quality and growth weighted up, technicals carry
			// meaningful signal.
			domain.MarketUS: {
				Technical: map[string]float64{
					IndMATrend: 0.25, IndRSI: 0.20, IndMACD: 0.25,
					IndBollinger: 0.15, IndVolumeTrend: 0.15,
				},
				Fundamental: map[string]float64{
					MetPERatio: 0.12, MetPBRatio: 0.05, MetROE: 0.15,
					MetRevenueGrowth: 0.18, MetEarningsGrowth: 0.15,
					MetProfitMargin: 0.10, MetFreeCashflow: 0.10,
					MetDebtRatio: 0.05, MetPEGRatio: 0.10,
				},
				TechnicalWeight:   0.35,
				FundamentalWeight: 0.65,
				GrowthBonusCap:    15.0,
			},
			// HK: valuation discount and dividends weighted up, technicals
			// down (thinner liquidity).
			domain.MarketHK: {
				Technical: map[string]float64{
					IndMATrend: 0.25, IndRSI: 0.20, IndMACD: 0.25,
					IndBollinger: 0.15, IndVolumeTrend: 0.15,
				},
				Fundamental: map[string]float64{
					MetPERatio: 0.15, MetPBRatio: 0.10, MetROE: 0.15,
					MetRevenueGrowth: 0.15, MetEarningsGrowth: 0.10,
					MetProfitMargin: 0.10, MetDividendYield: 0.10,
					MetDebtRatio: 0.08, MetPEGRatio: 0.07,
				},
				TechnicalWeight:   0.30,
				FundamentalWeight: 0.70,
				GrowthBonusCap:    12.0,
			},
			// CN: flow/sentiment driven, technicals weighted up, growth
			// elasticity rewarded with a larger bonus cap.
			domain.MarketCN: {
				Technical: map[string]float64{
					IndMATrend: 0.25, IndRSI: 0.20, IndMACD: 0.25,
					IndBollinger: 0.15, IndVolumeTrend: 0.15,
				},
				Fundamental: map[string]float64{
					MetPERatio: 0.12, MetPBRatio: 0.08, MetROE: 0.15,
					MetRevenueGrowth: 0.18, MetEarningsGrowth: 0.17,
					MetProfitMargin: 0.10, MetFreeCashflow: 0.05,
					MetDebtRatio: 0.05, MetPEGRatio: 0.10,
				},
				TechnicalWeight:   0.40,
				FundamentalWeight: 0.60,
				GrowthBonusCap:    18.0,
			},
		},
		Thresholds: map[domain.Market]*Thresholds{
			domain.MarketUS: {
				MaxPERatio: 60.0, MaxPBRatio: 15.0, MinROE: 8.0,
				HighGrowthRevenue: 20.0, HighGrowthEarnings: 20.0, MinGrowthRevenue: 8.0,
				RSIOversold: 30.0, RSIOverbought: 70.0,
				MinRecommendationScore: 60.0, MaxRecommendations: 10,
			},
			domain.MarketHK: {
				MaxPERatio: 40.0, MaxPBRatio: 8.0, MinROE: 5.0,
				HighGrowthRevenue: 20.0, HighGrowthEarnings: 20.0, MinGrowthRevenue: 8.0,
				RSIOversold: 30.0, RSIOverbought: 70.0,
				MinRecommendationScore: 60.0, MaxRecommendations: 10,
			},
			domain.MarketCN: {
				MaxPERatio: 50.0, MaxPBRatio: 10.0, MinROE: 6.0,
				HighGrowthRevenue: 25.0, HighGrowthEarnings: 30.0, MinGrowthRevenue: 10.0,
				RSIOversold: 30.0, RSIOverbought: 70.0,
				MinRecommendationScore: 60.0, MaxRecommendations: 10,
			},
		},
		SectorPE: map[string]float64{
			"Technology":             30.0,
			"Financial Services":     15.0,
			"Healthcare":             25.0,
			"Consumer Cyclical":      22.0,
			"Consumer Defensive":     20.0,
			"Communication Services": 20.0,
			"Industrials":            20.0,
			"Energy":                 12.0,
			"Basic Materials":        15.0,
			"Real Estate":            18.0,
			"Utilities":              16.0,
		},
		DefaultPE: 20.0,
		Universe: UniverseConfig{
			DynamicIndexes:   true,
			CacheExpiryHours: 24,
		},
		Data: DataConfig{
			BaseURL:        "https://query1.finance.yahoo.com",
			HistoryDays:    120,
			RequestTimeout: 15 * time.Second,
			MaxRetries:     3,
			RequestsPerSec: 2.0,
			Burst:          4,
			MaxConcurrency: 5,
			CacheTTL:       10 * time.Minute,
		},
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Schedule: []ScheduleJob{
			{Name: "scan.us", Schedule: "0 7 * * 2-6", Market: "US", Enabled: true},
			{Name: "scan.hk", Schedule: "30 16 * * 1-5", Market: "HK", Enabled: true},
			{Name: "scan.cn", Schedule: "0 16 * * 1-5", Market: "CN", Enabled: true},
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Profile returns the scoring profile for a market.
func (c *Config) Profile(market domain.Market) (*ScoringProfile, error) {
	p, ok := c.Profiles[market]
	if !ok {
		return nil, fmt.Errorf("unknown market %q", market)
	}
	return p, nil
}

// MarketThresholds returns the screening thresholds for a market.
func (c *Config) MarketThresholds(market domain.Market) (*Thresholds, error) {
	t, ok := c.Thresholds[market]
	if !ok {
		return nil, fmt.Errorf("unknown market %q", market)
	}
	return t, nil
}

// Validate enforces the configuration-time invariants: weight maps sum to
// 1.0 within tolerance, the technical/fundamental split sums to 1.0, markets
// are recognized, and every profiled market has thresholds. Violations are
// programmer errors and fatal at load.
func (c *Config) Validate() error {
	if len(c.Profiles) == 0 {
		return fmt.Errorf("no scoring profiles configured")
	}
	for market, p := range c.Profiles {
		if !market.Valid() {
			return fmt.Errorf("unknown market identifier %q in profiles", market)
		}
		if err := validateWeightMap(string(market)+".technical", p.Technical); err != nil {
			return err
		}
		if err := validateWeightMap(string(market)+".fundamental", p.Fundamental); err != nil {
			return err
		}
		split := p.TechnicalWeight + p.FundamentalWeight
		if math.Abs(split-1.0) > weightSumTolerance {
			return fmt.Errorf("market %s technical/fundamental split sums to %.3f, expected 1.000", market, split)
		}
		if p.GrowthBonusCap < 0 {
			return fmt.Errorf("market %s growth bonus cap is negative", market)
		}
		if _, ok := c.Thresholds[market]; !ok {
			return fmt.Errorf("market %s has a profile but no thresholds", market)
		}
	}
	for market := range c.Thresholds {
		if !market.Valid() {
			return fmt.Errorf("unknown market identifier %q in thresholds", market)
		}
	}
	if c.DefaultPE <= 0 {
		return fmt.Errorf("default PE benchmark must be positive")
	}
	if c.Universe.CacheExpiryHours < 0 {
		return fmt.Errorf("universe cache expiry hours must not be negative")
	}
	return nil
}

func validateWeightMap(name string, weights map[string]float64) error {
	if len(weights) == 0 {
		return fmt.Errorf("%s weight map is empty", name)
	}
	sum := 0.0
	for key, w := range weights {
		if w < 0 {
			return fmt.Errorf("%s weight %q is negative", name, key)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > weightSumTolerance {
		return fmt.Errorf("%s weights sum to %.3f, expected 1.000", name, sum)
	}
	return nil
}

// PEBenchmark returns the benchmark PE for a sector, falling back to the
// default for unmapped sectors.
func (c *Config) PEBenchmark(sector string) float64 {
	if pe, ok := c.SectorPE[sector]; ok {
		return pe
	}
	return c.DefaultPE
}
