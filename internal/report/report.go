// Package report formats ranked evaluations for people and machines. It
// only formats: every number it prints was computed by the strategy engine.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/equityrun/equityrun/internal/domain"
)

// Summary totals one scan run.
type Summary struct {
	TotalAnalyzed    int `json:"total_analyzed"`
	TotalRecommended int `json:"total_recommended"`
	TotalErrored     int `json:"total_errored"`
}

// Document is the serializable scan report.
type Document struct {
	GeneratedAt     time.Time                 `json:"generated_at"`
	Summary         Summary                   `json:"summary"`
	Recommendations []*domain.StockEvaluation `json:"recommendations"`
	AllEvaluations  []*domain.StockEvaluation `json:"all_evaluations"`
	Errors          []domain.EvaluationError  `json:"errors,omitempty"`
}

// Build assembles a report document from the engine's output.
func Build(recommendations, all []*domain.StockEvaluation, errs []domain.EvaluationError) *Document {
	return &Document{
		GeneratedAt: time.Now().UTC(),
		Summary: Summary{
			TotalAnalyzed:    len(all),
			TotalRecommended: len(recommendations),
			TotalErrored:     len(errs),
		},
		Recommendations: recommendations,
		AllEvaluations:  all,
		Errors:          errs,
	}
}

// JSON renders the document as an indented JSON body.
func (d *Document) JSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

const rule = 90

// Render writes the terminal report.
func (d *Document) Render(w io.Writer, title string) {
	line := strings.Repeat("=", rule)
	thin := strings.Repeat("-", rule)

	fmt.Fprintf(w, "\n%s\n  %s\n  generated: %s\n%s\n\n", line, title,
		d.GeneratedAt.Format("2006-01-02 15:04:05"), line)

	fmt.Fprintf(w, "  recommended picks (%d)\n%s\n", len(d.Recommendations), thin)
	if len(d.Recommendations) == 0 {
		fmt.Fprintln(w, "  no symbols met the recommendation bar this run.")
	} else {
		fmt.Fprintf(w, "  %-5s%-12s%-20s%-5s%-8s%-8s%-8s%-22s%s\n",
			"#", "symbol", "company", "mkt", "total", "tech", "fund", "growth", "tier")
		fmt.Fprintln(w, thin)
		for rank, ev := range d.Recommendations {
			name := ev.CompanyName
			if name == "" {
				name = ev.Symbol
			}
			if len(name) > 18 {
				name = name[:18]
			}
			fmt.Fprintf(w, "  %-5d%-12s%-20s%-5s%-8.1f%-8.1f%-8.1f%-22s%s %s\n",
				rank+1, ev.Symbol, name, ev.Market,
				ev.TotalScore, ev.TechnicalScore, ev.FundamentalScore,
				ev.GrowthLabel.Human(), ev.Tier.Human(), ev.Tier.Stars())
		}
	}

	fmt.Fprintf(w, "\n%s\n  why these picks\n%s\n", line, line)
	for rank, ev := range d.Recommendations {
		fmt.Fprintf(w, "\n  [%d] %s - %s\n", rank+1, ev.Symbol, ev.CompanyName)
		fmt.Fprintf(w, "      total %.1f  |  tier %s  |  growth %s\n",
			ev.TotalScore, ev.Tier.Human(), ev.GrowthLabel.Human())
		if ev.GrowthBonus != 0 {
			fmt.Fprintf(w, "      growth bonus: %+.1f\n", ev.GrowthBonus)
		}
		for _, reason := range ev.Reasons {
			fmt.Fprintf(w, "      - %s\n", reason)
		}
		if metrics := metricsLine(ev); metrics != "" {
			fmt.Fprintf(w, "      metrics: %s\n", metrics)
		}
	}

	fmt.Fprintf(w, "\n%s\n  market overview\n%s\n", line, thin)
	for _, market := range domain.AllMarkets() {
		var evals []*domain.StockEvaluation
		for _, ev := range d.AllEvaluations {
			if ev.Market == market {
				evals = append(evals, ev)
			}
		}
		if len(evals) == 0 {
			continue
		}
		sum := 0.0
		counts := make(map[domain.GrowthLabel]int)
		for _, ev := range evals {
			sum += ev.TotalScore
			counts[ev.GrowthLabel]++
		}
		fmt.Fprintf(w, "  %s: %d analyzed, average %.1f, growth mix: %s\n",
			market, len(evals), sum/float64(len(evals)), growthMix(counts))
	}
	if len(d.Errors) > 0 {
		fmt.Fprintf(w, "  skipped (%d):", len(d.Errors))
		for _, e := range d.Errors {
			fmt.Fprintf(w, " %s", e.Symbol)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "  total: %d analyzed, %d recommended\n%s\n", d.Summary.TotalAnalyzed,
		d.Summary.TotalRecommended, line)

	fmt.Fprintln(w, "\n  disclaimer: for research only, not investment advice.")
	fmt.Fprintln(w, "    markets carry risk; past behavior does not predict returns.")
}

// growthMix formats the top three growth labels with counts.
func growthMix(counts map[domain.GrowthLabel]int) string {
	type kv struct {
		label domain.GrowthLabel
		n     int
	}
	all := make([]kv, 0, len(counts))
	for label, n := range counts {
		all = append(all, kv{label, n})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].n != all[j].n {
			return all[i].n > all[j].n
		}
		return all[i].label < all[j].label
	})
	if len(all) > 3 {
		all = all[:3]
	}
	parts := make([]string, len(all))
	for i, e := range all {
		parts[i] = fmt.Sprintf("%s(%d)", e.label.Human(), e.n)
	}
	return strings.Join(parts, ", ")
}

func metricsLine(ev *domain.StockEvaluation) string {
	if ev.Fundamental == nil {
		return ""
	}
	m := ev.Fundamental.Metrics
	var parts []string
	if m.PE != nil {
		parts = append(parts, fmt.Sprintf("PE=%.1f", *m.PE))
	}
	if m.ROE != nil {
		parts = append(parts, fmt.Sprintf("ROE=%.1f%%", *m.ROE*100))
	}
	if m.RevenueGrowth != nil {
		parts = append(parts, fmt.Sprintf("rev growth=%.1f%%", *m.RevenueGrowth*100))
	}
	if m.EarningsGrowth != nil {
		parts = append(parts, fmt.Sprintf("earn growth=%.1f%%", *m.EarningsGrowth*100))
	}
	if m.PEG != nil {
		parts = append(parts, fmt.Sprintf("PEG=%.2f", *m.PEG))
	}
	return strings.Join(parts, " | ")
}
