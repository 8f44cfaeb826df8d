// Package scheduler runs the periodic sweeps (note snapshots, recovery
// purge) on cron specs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dmitrijs2005/boardcontext/internal/logging"
	"github.com/dmitrijs2005/boardcontext/internal/server/metrics"
)

const jobTimeout = 10 * time.Minute

// Job is one named periodic task. Run receives the scheduled time.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context, now time.Time) error
}

type Scheduler struct {
	cron   *cron.Cron
	logger logging.Logger
	now    func() time.Time
}

func New(logger logging.Logger) *Scheduler {
	logger = logger.With("module", "scheduler")
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger})),
		cron.WithLogger(cronLogger{logger}),
	)
	return &Scheduler{cron: c, logger: logger, now: time.Now}
}

// Add registers job on its spec.
func (s *Scheduler) Add(job Job) error {
	if _, err := s.cron.AddFunc(job.Spec, func() { s.runJob(job) }); err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name, err)
	}
	return nil
}

func (s *Scheduler) runJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := s.now()
	err := job.Run(ctx, start.UTC())
	outcome := "ok"
	if err != nil {
		outcome = "error"
		s.logger.Error(ctx, "job failed", "job", job.Name, "error", err, "duration", time.Since(start))
	} else {
		s.logger.Info(ctx, "job finished", "job", job.Name, "duration", time.Since(start))
	}
	metrics.JobRuns.WithLabelValues(job.Name, outcome).Inc()
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs or ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn(ctx, "scheduler stop timed out")
	}
}

// cronLogger adapts logging.Logger to cron.Logger.
type cronLogger struct {
	l logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(context.Background(), msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(context.Background(), msg, append(keysAndValues, "error", err)...)
}
