// Package reconcile runs periodic reconciliation sweeps on a cron schedule.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a single sweep. It returns how many records it repaired.
type Job interface {
	Sweep(ctx context.Context) (int, error)
}

type Runner struct {
	cron    *cron.Cron
	job     Job
	logger  zerolog.Logger
	timeout time.Duration
}

// NewRunner builds a runner whose sweeps are bounded by timeout. Overlapping
// runs are skipped and panics are recovered.
func NewRunner(job Job, timeout time.Duration, logger zerolog.Logger) *Runner {
	cl := cronLogger{logger: logger}
	return &Runner{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		job:     job,
		logger:  logger,
		timeout: timeout,
	}
}

// Schedule registers the sweep under a cron spec such as "@every 5m".
func (r *Runner) Schedule(spec string) error {
	if _, err := r.cron.AddFunc(spec, r.run); err != nil {
		return fmt.Errorf("schedule reconcile %q: %w", spec, err)
	}
	r.logger.Info().Str("schedule", spec).Msg("reconciliation scheduled")
	return nil
}

func (r *Runner) Start() {
	r.cron.Start()
}

// Stop stops the scheduler and waits for a running sweep, or for ctx.
func (r *Runner) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs one sweep synchronously.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	start := time.Now()
	n, err := r.job.Sweep(ctx)
	if err != nil {
		r.logger.Error().Err(err).Int("advanced", n).Msg("reconciliation sweep failed")
		return n, err
	}
	r.logger.Debug().Int("advanced", n).Dur("took", time.Since(start)).Msg("reconciliation sweep done")
	return n, nil
}

func (r *Runner) run() {
	_, _ = r.RunOnce(context.Background())
}

// cronLogger routes cron's internal logging through zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
