package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/equityrun/equityrun/internal/domain"
)

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	pipeline, cleanup, err := buildPipeline(cmd, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	symbol := strings.ToUpper(strings.TrimSpace(args[0]))
	eval, err := pipeline.Analyze(cmd.Context(), symbol)
	if err != nil {
		return fmt.Errorf("analyze %s: %w", symbol, err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		body, err := json.MarshalIndent(eval, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(body))
		return nil
	}
	printEvaluation(eval)
	return nil
}

func printEvaluation(eval *domain.StockEvaluation) {
	name := eval.CompanyName
	if name == "" {
		name = eval.Symbol
	}
	fmt.Printf("\n%s (%s, %s market)\n", name, eval.Symbol, eval.Market)
	if eval.Sector != "" {
		fmt.Printf("sector: %s\n", eval.Sector)
	}
	fmt.Printf("\ntotal score:       %6.1f   %s %s\n", eval.TotalScore, eval.Tier.Human(), eval.Tier.Stars())
	fmt.Printf("technical score:   %6.1f\n", eval.TechnicalScore)
	fmt.Printf("fundamental score: %6.1f\n", eval.FundamentalScore)
	if eval.GrowthLabel != "" && eval.GrowthLabel != domain.GrowthUnknown {
		fmt.Printf("growth profile:    %s (%+.1f)\n", eval.GrowthLabel.Human(), eval.GrowthBonus)
	}

	if eval.Technical != nil {
		fmt.Println("\ntechnical breakdown:")
		printSubScores(eval.Technical.SubScores)
	}
	if eval.Fundamental != nil {
		fmt.Println("\nfundamental breakdown:")
		printSubScores(eval.Fundamental.SubScores)
	}

	if len(eval.Reasons) > 0 {
		fmt.Println("\nassessment:")
		for _, reason := range eval.Reasons {
			fmt.Printf("  - %s\n", reason)
		}
	}
	fmt.Println()
}

func printSubScores(subs map[string]domain.SubScore) {
	keys := make([]string, 0, len(subs))
	for key := range subs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		sub := subs[key]
		fmt.Printf("  %-18s %6.1f", key, sub.Score)
		if len(sub.Signals) > 0 {
			fmt.Printf("   %s", strings.Join(sub.Signals, "; "))
		}
		fmt.Println()
	}
}
