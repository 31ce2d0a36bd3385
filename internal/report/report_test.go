package report

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equityrun/equityrun/internal/domain"
)

func sampleEvaluations() []*domain.StockEvaluation {
	return []*domain.StockEvaluation{
		{
			Symbol:           "AAPL",
			CompanyName:      "Apple Inc.",
			Market:           domain.MarketUS,
			TechnicalScore:   72.5,
			FundamentalScore: 81.0,
			TotalScore:       78.0,
			GrowthLabel:      domain.GrowthSteady,
			GrowthBonus:      4,
			Tier:             domain.TierBuy,
			Reasons:          []string{"strong technical setup", "solid fundamentals"},
			Fundamental: &domain.FundamentalResult{
				Symbol: "AAPL",
				Score:  81.0,
				Metrics: domain.Fundamentals{
					Symbol: "AAPL",
					PE:     domain.Float(28.4),
					ROE:    domain.Float(0.31),
				},
			},
		},
		{
			Symbol:           "0700.HK",
			CompanyName:      "Tencent Holdings",
			Market:           domain.MarketHK,
			TechnicalScore:   55.0,
			FundamentalScore: 60.0,
			TotalScore:       58.5,
			GrowthLabel:      domain.GrowthLow,
			Tier:             domain.TierHold,
			Reasons:          []string{"average fundamentals"},
		},
	}
}

func TestBuildSummaryCounts(t *testing.T) {
	all := sampleEvaluations()
	recs := all[:1]
	errs := []domain.EvaluationError{{Symbol: "BAD", Market: domain.MarketUS, Err: "insufficient history"}}

	doc := Build(recs, all, errs)

	assert.Equal(t, 2, doc.Summary.TotalAnalyzed)
	assert.Equal(t, 1, doc.Summary.TotalRecommended)
	assert.Equal(t, 1, doc.Summary.TotalErrored)
	assert.False(t, doc.GeneratedAt.IsZero())
}

func TestDocumentJSONRoundTrip(t *testing.T) {
	all := sampleEvaluations()
	doc := Build(all[:1], all, nil)

	body, err := doc.JSON()
	require.NoError(t, err)

	var decoded Document
	require.NoError(t, json.Unmarshal(body, &decoded))
	require.Len(t, decoded.Recommendations, 1)
	assert.Equal(t, "AAPL", decoded.Recommendations[0].Symbol)
	assert.InDelta(t, 78.0, decoded.Recommendations[0].TotalScore, 1e-9)
	assert.Equal(t, domain.TierBuy, decoded.Recommendations[0].Tier)
	assert.Empty(t, decoded.Errors)
}

func TestRenderContainsPicksAndOverview(t *testing.T) {
	all := sampleEvaluations()
	doc := Build(all[:1], all, []domain.EvaluationError{
		{Symbol: "BAD", Market: domain.MarketUS, Err: "insufficient history"},
	})

	var buf strings.Builder
	doc.Render(&buf, "daily scan")
	out := buf.String()

	assert.Contains(t, out, "daily scan")
	assert.Contains(t, out, "AAPL")
	assert.Contains(t, out, "Apple Inc.")
	assert.Contains(t, out, "BUY")
	assert.Contains(t, out, "growth bonus: +4.0")
	assert.Contains(t, out, "PE=28.4")
	assert.Contains(t, out, "US: 1 analyzed")
	assert.Contains(t, out, "HK: 1 analyzed")
	assert.Contains(t, out, "skipped (1): BAD")
	assert.Contains(t, out, "disclaimer")
	// the HK symbol was analyzed but not recommended
	assert.NotContains(t, out, "[2] 0700.HK")
}

func TestRenderEmptyRecommendations(t *testing.T) {
	doc := Build(nil, nil, nil)

	var buf strings.Builder
	doc.Render(&buf, "empty scan")

	assert.Contains(t, buf.String(), "no symbols met the recommendation bar")
}
