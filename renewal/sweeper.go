// Package renewal drives unattended auto-renewal. A Sweeper periodically
// lists subscriptions whose term has lapsed and whose retry time has come,
// and asks the engine to renew each one.
package renewal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/xraph/patron"
	"github.com/xraph/patron/subscription"
)

// Defaults.
const (
	DefaultSchedule  = "@every 1h"
	DefaultBatchSize = 100
	DefaultTimeout   = 5 * time.Minute
)

// Renewer is the part of the engine the sweeper drives. *patron.Patron
// satisfies it.
type Renewer interface {
	ListDueRenewals(ctx context.Context, after subscription.DueCursor, limit int) ([]*subscription.Subscription, error)
	ProcessAutoRenewal(ctx context.Context, creatorID, fanID string) (*patron.Receipt, error)
}

var _ Renewer = (*patron.Patron)(nil)

// Report summarizes one sweep.
type Report struct {
	Due       int           `json:"due"`
	Renewed   int           `json:"renewed"`
	Failed    int           `json:"failed"`
	Cancelled int           `json:"cancelled"`
	Skipped   int           `json:"skipped"`
	Errors    int           `json:"errors"`
	Duration  time.Duration `json:"duration"`
}

// Sweeper runs renewal sweeps on a cron schedule.
type Sweeper struct {
	renewer   Renewer
	schedule  string
	batchSize int
	timeout   time.Duration
	logger    *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
	last Report
}

// New creates a Sweeper over r.
func New(r Renewer, opts ...Option) *Sweeper {
	s := &Sweeper{
		renewer:   r,
		schedule:  DefaultSchedule,
		batchSize: DefaultBatchSize,
		timeout:   DefaultTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunOnce renews every subscription that is currently due. Per-item
// renewal failures are counted, not returned. Batches are read in
// due-renewal order and each one resumes after the last subscription of the
// previous batch, so fans who cannot pay never hide the ones behind them.
// A subscription that becomes due again during the sweep, such as a failed
// renewal with no retry interval, is attempted once per sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (Report, error) {
	start := time.Now()
	var (
		report Report
		after  subscription.DueCursor
	)
	seen := make(map[[2]string]bool)

	for {
		due, err := s.renewer.ListDueRenewals(ctx, after, s.batchSize)
		if err != nil {
			report.Duration = time.Since(start)
			return report, fmt.Errorf("renewal: list due: %w", err)
		}

		for _, sub := range due {
			after = sub.Cursor()
			key := [2]string{sub.CreatorID, sub.FanID}
			if seen[key] {
				continue
			}
			seen[key] = true
			report.Due++

			if err := ctx.Err(); err != nil {
				report.Duration = time.Since(start)
				return report, err
			}
			s.renew(ctx, sub, &report)
		}

		if len(due) < s.batchSize {
			break
		}
	}

	report.Duration = time.Since(start)
	s.mu.Lock()
	s.last = report
	s.mu.Unlock()

	if report.Due > 0 {
		s.logger.Info("renewal sweep finished",
			"due", report.Due,
			"renewed", report.Renewed,
			"failed", report.Failed,
			"cancelled", report.Cancelled,
			"skipped", report.Skipped,
			"errors", report.Errors,
			"duration", report.Duration,
		)
	}
	return report, nil
}

func (s *Sweeper) renew(ctx context.Context, sub *subscription.Subscription, report *Report) {
	_, err := s.renewer.ProcessAutoRenewal(ctx, sub.CreatorID, sub.FanID)
	switch {
	case err == nil:
		report.Renewed++
	case errors.Is(err, patron.ErrMaxRetriesExceeded):
		report.Cancelled++
	case errors.Is(err, patron.ErrAutoRenewFailed):
		report.Failed++
	case errors.Is(err, patron.ErrNotDue), errors.Is(err, patron.ErrNoSubscription):
		report.Skipped++
	default:
		report.Errors++
		s.logger.Error("renewal failed",
			"creator_id", sub.CreatorID,
			"fan_id", sub.FanID,
			"error", err,
		)
	}
}

// LastReport returns the report of the most recent completed sweep.
func (s *Sweeper) LastReport() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Start schedules sweeps. Overlapping runs are skipped.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return errors.New("renewal: sweeper already started")
	}

	l := cronLogger{s.logger}
	c := cron.New(
		cron.WithLogger(l),
		cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
	)
	if _, err := c.AddFunc(s.schedule, s.tick); err != nil {
		return fmt.Errorf("renewal: schedule %q: %w", s.schedule, err)
	}
	c.Start()
	s.cron = c

	s.logger.Info("renewal sweeper started", "schedule", s.schedule, "batch_size", s.batchSize)
	return nil
}

// Stop halts scheduling and waits for a running sweep until ctx is done.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("renewal sweep failed", "error", err)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
