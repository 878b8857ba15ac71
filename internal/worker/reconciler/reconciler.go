// Package reconciler periodically re-verifies stale pending deposits with the
// payment gateway so a lost webhook never strands a deposit.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"wallet-ledger/config"
	"wallet-ledger/internal/core/ports"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Reconciler runs LedgerService.ReconcilePending on a cron schedule.
type Reconciler struct {
	ledger  ports.LedgerService
	metrics ports.LedgerMetrics
	cfg     config.ReconcilerConfig
	log     zerolog.Logger
	now     func() time.Time

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// New creates a Reconciler. It does nothing until Start is called.
func New(ledger ports.LedgerService, metrics ports.LedgerMetrics, cfg config.ReconcilerConfig, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		ledger:  ledger,
		metrics: metrics,
		cfg:     cfg,
		log:     log.With().Str("component", "reconciler").Logger(),
		now:     time.Now,
	}
}

// RunOnce reconciles one batch of deposits older than the configured minimum age.
func (r *Reconciler) RunOnce(ctx context.Context) (*ports.ReconcileReport, error) {
	started := r.now()
	cutoff := started.Add(-r.cfg.MinAge)

	report, err := r.ledger.ReconcilePending(ctx, cutoff, r.cfg.BatchSize)
	elapsed := time.Since(started)
	if report != nil {
		r.metrics.ReconcileCompleted(*report, elapsed)
	}
	if err != nil {
		return report, fmt.Errorf("reconcile pending deposits: %w", err)
	}

	evt := r.log.Debug()
	if report.Settled > 0 || report.Errors > 0 {
		evt = r.log.Info()
	}
	evt.Int("checked", report.Checked).
		Int("settled", report.Settled).
		Int("pending", report.Pending).
		Int("errors", report.Errors).
		Dur("elapsed", elapsed).
		Msg("reconcile pass finished")
	return report, nil
}

// Start schedules RunOnce. Overlapping passes are skipped. The passes run
// under a context derived from ctx that Stop cancels.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return errors.New("reconciler already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithChain(cron.Recover(cronLogger{r.log}), cron.SkipIfStillRunning(cronLogger{r.log})))
	if _, err := c.AddFunc(r.cfg.Schedule, func() {
		if _, err := r.RunOnce(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			r.log.Error().Err(err).Msg("reconcile pass failed")
		}
	}); err != nil {
		cancel()
		return fmt.Errorf("invalid reconciler schedule %q: %w", r.cfg.Schedule, err)
	}

	c.Start()
	r.cron = c
	r.cancel = cancel
	r.log.Info().Str("schedule", r.cfg.Schedule).Dur("min_age", r.cfg.MinAge).Msg("reconciler started")
	return nil
}

// Stop cancels an in-flight pass and waits for it to return, bounded by ctx.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	c, cancel := r.cron, r.cancel
	r.cron, r.cancel = nil, nil
	r.mu.Unlock()
	if c == nil {
		return nil
	}

	cancel()
	done := c.Stop()
	select {
	case <-done.Done():
		r.log.Info().Msg("reconciler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{ log zerolog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
