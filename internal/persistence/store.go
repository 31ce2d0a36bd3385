// Package persistence stores scan runs in PostgreSQL so past evaluations can
// be compared across days. The store is optional: the engine and CLI work
// without a database configured.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/equityrun/equityrun/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS scan_runs (
	id          UUID PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	analyzed    INT NOT NULL,
	recommended INT NOT NULL,
	errored     INT NOT NULL
);

CREATE TABLE IF NOT EXISTS evaluations (
	id                UUID PRIMARY KEY,
	run_id            UUID NOT NULL REFERENCES scan_runs(id) ON DELETE CASCADE,
	symbol            TEXT NOT NULL,
	market            TEXT NOT NULL,
	company_name      TEXT NOT NULL DEFAULT '',
	technical_score   DOUBLE PRECISION NOT NULL,
	fundamental_score DOUBLE PRECISION NOT NULL,
	total_score       DOUBLE PRECISION NOT NULL,
	growth_label      TEXT NOT NULL DEFAULT '',
	growth_bonus      DOUBLE PRECISION NOT NULL DEFAULT 0,
	tier              TEXT NOT NULL,
	recommended       BOOLEAN NOT NULL DEFAULT FALSE,
	reasons           JSONB NOT NULL DEFAULT '[]',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_evaluations_run ON evaluations(run_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_symbol ON evaluations(symbol, created_at DESC);
`

// Run records one completed scan.
type Run struct {
	ID          uuid.UUID `db:"id"`
	StartedAt   time.Time `db:"started_at"`
	FinishedAt  time.Time `db:"finished_at"`
	Analyzed    int       `db:"analyzed"`
	Recommended int       `db:"recommended"`
	Errored     int       `db:"errored"`
}

// EvaluationRow is the stored form of one symbol's evaluation.
type EvaluationRow struct {
	ID               uuid.UUID `db:"id"`
	RunID            uuid.UUID `db:"run_id"`
	Symbol           string    `db:"symbol"`
	Market           string    `db:"market"`
	CompanyName      string    `db:"company_name"`
	TechnicalScore   float64   `db:"technical_score"`
	FundamentalScore float64   `db:"fundamental_score"`
	TotalScore       float64   `db:"total_score"`
	GrowthLabel      string    `db:"growth_label"`
	GrowthBonus      float64   `db:"growth_bonus"`
	Tier             string    `db:"tier"`
	Recommended      bool      `db:"recommended"`
	Reasons          []byte    `db:"reasons"`
	CreatedAt        time.Time `db:"created_at"`
}

// Store persists scan runs and their evaluations.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
	log     zerolog.Logger
}

// Open connects to postgres and ensures the schema exists.
func Open(ctx context.Context, dsn string, log zerolog.Logger) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{db: db, timeout: 10 * time.Second, log: log}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// SaveRun writes one scan run and its evaluations atomically. Symbols in
// recommended must be a subset of all; they are flagged, not duplicated.
func (s *Store) SaveRun(ctx context.Context, startedAt, finishedAt time.Time,
	all, recommended []*domain.StockEvaluation, errored int) (uuid.UUID, error) {

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	runID := uuid.New()
	picked := make(map[string]bool, len(recommended))
	for _, ev := range recommended {
		picked[ev.Symbol] = true
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scan_runs (id, started_at, finished_at, analyzed, recommended, errored)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		runID, startedAt, finishedAt, len(all), len(recommended), errored)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert scan run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO evaluations (id, run_id, symbol, market, company_name,
			technical_score, fundamental_score, total_score,
			growth_label, growth_bonus, tier, recommended, reasons)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`)
	if err != nil {
		return uuid.Nil, fmt.Errorf("prepare evaluation insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range all {
		reasons, err := json.Marshal(ev.Reasons)
		if err != nil {
			return uuid.Nil, fmt.Errorf("marshal reasons for %s: %w", ev.Symbol, err)
		}
		_, err = stmt.ExecContext(ctx,
			uuid.New(), runID, ev.Symbol, string(ev.Market), ev.CompanyName,
			ev.TechnicalScore, ev.FundamentalScore, ev.TotalScore,
			string(ev.GrowthLabel), ev.GrowthBonus, string(ev.Tier),
			picked[ev.Symbol], reasons)
		if err != nil {
			return uuid.Nil, fmt.Errorf("insert evaluation %s: %w", ev.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("commit scan run: %w", err)
	}
	s.log.Info().Str("run_id", runID.String()).Int("analyzed", len(all)).
		Int("recommended", len(recommended)).Msg("scan run persisted")
	return runID, nil
}

// History returns a symbol's stored evaluations, newest first.
func (s *Store) History(ctx context.Context, symbol string, limit int) ([]EvaluationRow, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 30
	}
	var rows []EvaluationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, run_id, symbol, market, company_name,
		       technical_score, fundamental_score, total_score,
		       growth_label, growth_bonus, tier, recommended, reasons, created_at
		FROM evaluations
		WHERE symbol = $1
		ORDER BY created_at DESC
		LIMIT $2`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query evaluation history: %w", err)
	}
	return rows, nil
}

// LatestRun returns the most recent scan run, or nil when no runs exist.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var run Run
	err := s.db.GetContext(ctx, &run, `
		SELECT id, started_at, finished_at, analyzed, recommended, errored
		FROM scan_runs
		ORDER BY started_at DESC
		LIMIT 1`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query latest run: %w", err)
	}
	return &run, nil
}
