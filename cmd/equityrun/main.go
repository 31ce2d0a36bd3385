package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/equityrun/equityrun/internal/config"
)

const (
	appName = "equityrun"
	version = "v1.2.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Multi-market stock scoring and recommendation scanner",
		Version: version,
		Long: `equityrun scores US, HK and CN equities on technical and fundamental
factors, classifies growth profiles and ranks the results into
recommendation tiers. For research only, not investment advice.`,
		SilenceUsage: true,
	}

	// accept snake_case spellings of every flag
	rootCmd.SetGlobalNormalizationFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	rootCmd.PersistentFlags().String("config", "", "Path to YAML config overlay (defaults built in)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace|debug|info|warn|error)")

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan watchlists and print ranked recommendations",
		Long:  "Fetches market data for the selected watchlists, scores every symbol and prints the ranked report",
		RunE:  runScan,
	}
	scanCmd.Flags().String("market", "", "Comma-separated markets to scan (US,HK,CN); empty scans all")
	scanCmd.Flags().StringSlice("symbols", nil, "Explicit symbols to scan instead of the watchlists")
	scanCmd.Flags().Bool("json", false, "Emit the JSON document instead of the terminal report")
	scanCmd.Flags().Int("top", 0, "Limit the recommendation list to the top N picks")

	analyzeCmd := &cobra.Command{
		Use:   "analyze <symbol>",
		Short: "Score a single symbol with full sub-score detail",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}
	analyzeCmd.Flags().Bool("json", false, "Emit the evaluation as JSON")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the read-only dashboard API",
		Long:  "Serves /health, /metrics, /api/v1/scan and /api/v1/analyze/{symbol} on localhost",
		RunE:  runServe,
	}
	serveCmd.Flags().String("host", "", "Listen host (overrides config)")
	serveCmd.Flags().Int("port", 0, "Listen port (overrides config)")

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the configured cron scan jobs",
		Long:  "Registers the schedule section of the config on a cron runner and blocks until interrupted",
		RunE:  runSchedule,
	}

	rootCmd.AddCommand(scanCmd, analyzeCmd, serveCmd, scheduleCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the configuration and log level shared by every
// subcommand.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	levelName, _ := cmd.Flags().GetString("log-level")
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q", levelName)
	}
	zerolog.SetGlobalLevel(level)

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", path).Msg("config overlay loaded")
	return cfg, nil
}
