package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/equityrun/equityrun/internal/app"
	"github.com/equityrun/equityrun/internal/config"
	"github.com/equityrun/equityrun/internal/data"
	"github.com/equityrun/equityrun/internal/domain"
	"github.com/equityrun/equityrun/internal/persistence"
	"github.com/equityrun/equityrun/internal/report"
	"github.com/equityrun/equityrun/internal/universe"
)

// buildPipeline wires the provider, symbol universe, optional cache and
// optional store. The returned cleanup closes whatever was opened.
func buildPipeline(cmd *cobra.Command, cfg *config.Config) (*app.Pipeline, func(), error) {
	var cache data.Cache
	var redisCache *data.RedisCache
	if cfg.Data.RedisAddr != "" {
		redisCache = data.NewRedisCache(cfg.Data.RedisAddr)
		cache = redisCache
	}

	provider := data.NewProvider(cfg.Data, cache)
	pipeline := app.NewPipeline(cfg, provider, log.Logger)

	if cfg.Universe.DynamicIndexes {
		expiry := time.Duration(cfg.Universe.CacheExpiryHours) * time.Hour
		pipeline.WithUniverse(universe.NewConstituentSource(cache, expiry))
	}

	var store *persistence.Store
	if cfg.Database.DSN != "" {
		var err error
		store, err = persistence.Open(cmd.Context(), cfg.Database.DSN, log.Logger)
		if err != nil {
			if redisCache != nil {
				redisCache.Close()
			}
			return nil, nil, fmt.Errorf("open recorder: %w", err)
		}
		pipeline.WithStore(store)
	}

	cleanup := func() {
		if store != nil {
			store.Close()
		}
		if redisCache != nil {
			redisCache.Close()
		}
	}
	return pipeline, cleanup, nil
}

func parseMarkets(raw string) ([]domain.Market, error) {
	if strings.TrimSpace(raw) == "" {
		return domain.AllMarkets(), nil
	}
	var markets []domain.Market
	for _, part := range strings.Split(raw, ",") {
		market := domain.Market(strings.ToUpper(strings.TrimSpace(part)))
		if !market.Valid() {
			return nil, fmt.Errorf("unknown market %q (want US, HK or CN)", part)
		}
		markets = append(markets, market)
	}
	return markets, nil
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	pipeline, cleanup, err := buildPipeline(cmd, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	symbols, _ := cmd.Flags().GetStringSlice("symbols")
	marketFlag, _ := cmd.Flags().GetString("market")
	asJSON, _ := cmd.Flags().GetBool("json")
	top, _ := cmd.Flags().GetInt("top")

	var doc *report.Document
	if len(symbols) > 0 {
		doc, err = pipeline.ScanSymbols(cmd.Context(), symbols)
	} else {
		var markets []domain.Market
		markets, err = parseMarkets(marketFlag)
		if err != nil {
			return err
		}
		doc, err = pipeline.Scan(cmd.Context(), markets)
	}
	if err != nil {
		return err
	}

	if top > 0 && len(doc.Recommendations) > top {
		doc.Recommendations = doc.Recommendations[:top]
		doc.Summary.TotalRecommended = top
	}

	if asJSON {
		body, err := doc.JSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(body))
		return nil
	}
	doc.Render(os.Stdout, fmt.Sprintf("%s scan", appName))
	return nil
}
