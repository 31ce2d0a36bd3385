// Package scheduler runs configured scans on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/equityrun/equityrun/internal/config"
	"github.com/equityrun/equityrun/internal/domain"
	"github.com/equityrun/equityrun/internal/report"
)

// Runner executes one scan for the given markets. Satisfied by app.Pipeline.
type Runner interface {
	Scan(ctx context.Context, markets []domain.Market) (*report.Document, error)
}

// JobResult records one job execution.
type JobResult struct {
	JobName    string        `json:"job_name"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	Analyzed   int           `json:"analyzed"`
	Recommends int           `json:"recommends"`
}

// Status summarizes the running scheduler.
type Status struct {
	Running     bool       `json:"running"`
	EnabledJobs int        `json:"enabled_jobs"`
	NextRun     time.Time  `json:"next_run"`
	LastResult  *JobResult `json:"last_result,omitempty"`
}

// Scheduler wires config.Schedule jobs onto a cron runner. Each job fetches,
// evaluates and reports one market group.
type Scheduler struct {
	jobs   []config.ScheduleJob
	runner Runner
	out    io.Writer
	log    zerolog.Logger

	cron    *cron.Cron
	timeout time.Duration

	mu      sync.Mutex
	running bool
	last    *JobResult
}

// New builds a scheduler from the configured jobs. out receives each run's
// terminal report; pass io.Discard to silence it.
func New(jobs []config.ScheduleJob, runner Runner, out io.Writer, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		jobs:    jobs,
		runner:  runner,
		out:     out,
		log:     log,
		cron:    cron.New(),
		timeout: 15 * time.Minute,
	}
}

// Start registers enabled jobs and starts the cron loop. It fails when any
// enabled job has an invalid schedule or market so misconfiguration surfaces
// at startup, not at fire time.
func (s *Scheduler) Start() error {
	enabled := 0
	for _, job := range s.jobs {
		if !job.Enabled {
			continue
		}
		markets, err := jobMarkets(job)
		if err != nil {
			return fmt.Errorf("job %q: %w", job.Name, err)
		}
		job := job
		_, err = s.cron.AddFunc(job.Schedule, func() { s.run(job, markets) })
		if err != nil {
			return fmt.Errorf("job %q: invalid schedule %q: %w", job.Name, job.Schedule, err)
		}
		enabled++
		s.log.Info().Str("job", job.Name).Str("schedule", job.Schedule).
			Str("market", job.Market).Msg("job registered")
	}
	if enabled == 0 {
		return fmt.Errorf("no enabled jobs in schedule")
	}
	s.cron.Start()
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	s.log.Info().Int("jobs", enabled).Msg("scheduler started")
	return nil
}

// Stop halts the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.log.Info().Msg("scheduler stopped")
}

// Status reports the scheduler's current state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Running: s.running, LastResult: s.last}
	for _, e := range s.cron.Entries() {
		st.EnabledJobs++
		if st.NextRun.IsZero() || e.Next.Before(st.NextRun) {
			st.NextRun = e.Next
		}
	}
	return st
}

func (s *Scheduler) run(job config.ScheduleJob, markets []domain.Market) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	started := time.Now()
	s.log.Info().Str("job", job.Name).Msg("job started")

	result := JobResult{JobName: job.Name, StartedAt: started}
	doc, err := s.runner.Scan(ctx, markets)
	result.Duration = time.Since(started)
	if err != nil {
		result.Error = err.Error()
		s.log.Error().Str("job", job.Name).Err(err).Msg("job failed")
	} else {
		result.Success = true
		result.Analyzed = doc.Summary.TotalAnalyzed
		result.Recommends = doc.Summary.TotalRecommended
		if s.out != nil {
			doc.Render(s.out, fmt.Sprintf("scheduled scan: %s", job.Name))
		}
		s.log.Info().Str("job", job.Name).
			Int("analyzed", result.Analyzed).
			Int("recommended", result.Recommends).
			Dur("duration", result.Duration).
			Msg("job finished")
	}

	s.mu.Lock()
	s.last = &result
	s.mu.Unlock()
}

// jobMarkets resolves a job's market field. Empty means all markets.
func jobMarkets(job config.ScheduleJob) ([]domain.Market, error) {
	raw := strings.TrimSpace(job.Market)
	if raw == "" {
		return domain.AllMarkets(), nil
	}
	var markets []domain.Market
	for _, part := range strings.Split(raw, ",") {
		market := domain.Market(strings.ToUpper(strings.TrimSpace(part)))
		if !market.Valid() {
			return nil, fmt.Errorf("unknown market %q", part)
		}
		markets = append(markets, market)
	}
	return markets, nil
}
