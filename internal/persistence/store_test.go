package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equityrun/equityrun/internal/domain"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return &Store{
		db:      sqlx.NewDb(mockDB, "postgres"),
		timeout: time.Second,
		log:     zerolog.Nop(),
	}, mock
}

func TestSaveRunInsertsRunAndEvaluations(t *testing.T) {
	store, mock := newMockStore(t)

	all := []*domain.StockEvaluation{
		{
			Symbol: "AAPL", Market: domain.MarketUS, CompanyName: "Apple Inc.",
			TechnicalScore: 70, FundamentalScore: 80, TotalScore: 76.5,
			GrowthLabel: domain.GrowthSteady, GrowthBonus: 4,
			Tier: domain.TierBuy, Reasons: []string{"solid fundamentals"},
		},
		{
			Symbol: "0700.HK", Market: domain.MarketHK,
			TechnicalScore: 50, FundamentalScore: 55, TotalScore: 53.5,
			GrowthLabel: domain.GrowthLow, Tier: domain.TierHold,
		},
	}
	recommended := all[:1]

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO scan_runs").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), 2, 1, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep := mock.ExpectPrepare("INSERT INTO evaluations")
	prep.ExpectExec().
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "AAPL", "US", "Apple Inc.",
			70.0, 80.0, 76.5, "steady_growth", 4.0, "buy", true,
			[]byte(`["solid fundamentals"]`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "0700.HK", "HK", "",
			50.0, 55.0, 53.5, "low_growth", 0.0, "hold", false,
			[]byte(`null`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	started := time.Now().Add(-time.Minute)
	runID, err := store.SaveRun(context.Background(), started, time.Now(), all, recommended, 0)
	require.NoError(t, err)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", runID.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRunRollsBackOnInsertFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO scan_runs").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := store.SaveRun(context.Background(), time.Now(), time.Now(),
		[]*domain.StockEvaluation{{Symbol: "AAPL", Market: domain.MarketUS}}, nil, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert scan run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryReturnsRowsNewestFirst(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	cols := []string{"id", "run_id", "symbol", "market", "company_name",
		"technical_score", "fundamental_score", "total_score",
		"growth_label", "growth_bonus", "tier", "recommended", "reasons", "created_at"}
	mock.ExpectQuery("SELECT (.+) FROM evaluations").
		WithArgs("AAPL", 2).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("0b9e8a60-0000-4000-8000-000000000001", "0b9e8a60-0000-4000-8000-000000000002",
				"AAPL", "US", "Apple Inc.", 70.0, 80.0, 76.5,
				"steady_growth", 4.0, "buy", true, []byte(`[]`), now).
			AddRow("0b9e8a60-0000-4000-8000-000000000003", "0b9e8a60-0000-4000-8000-000000000004",
				"AAPL", "US", "Apple Inc.", 65.0, 78.0, 73.0,
				"steady_growth", 4.0, "buy", true, []byte(`[]`), now.Add(-24*time.Hour)))

	rows, err := store.History(context.Background(), "AAPL", 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 76.5, rows[0].TotalScore)
	assert.True(t, rows[0].CreatedAt.After(rows[1].CreatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestRunNoRows(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM scan_runs").
		WillReturnRows(sqlmock.NewRows([]string{"id", "started_at", "finished_at",
			"analyzed", "recommended", "errored"}))

	run, err := store.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Nil(t, run)
}
