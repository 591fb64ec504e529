package notifications

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/evercal/notify-service/internal/domain"
)

// EmailSubject is the subject line used for dispatched comment
// notification emails.
const EmailSubject = "New comment on your event"

// SchedulerConfig contains dispatch scheduler configuration.
type SchedulerConfig struct {
	Interval       time.Duration
	BatchSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:       15 * time.Second,
		BatchSize:      25,
		MaxAttempts:    5,
		InitialBackoff: 30 * time.Second,
		MaxBackoff:     15 * time.Minute,
	}
}

// Scheduler is the recurring background task that turns pending email
// notifications into delivery attempts. Exactly one scheduler instance runs
// per deployment; within a cycle records are processed strictly
// sequentially, and each record's outcome is persisted before the next
// record is attempted.
//
// Delivery is at-least-once: a crash between a successful send and the
// status write leaves the record pending, so it will be sent again on the
// next cycle.
type Scheduler struct {
	config SchedulerConfig
	repo   Repository
	sender Sender

	stopCh   chan struct{}
	wg       sync.WaitGroup
	inFlight atomic.Bool
}

// NewScheduler creates a new dispatch scheduler.
func NewScheduler(config SchedulerConfig, repo Repository, sender Sender) *Scheduler {
	return &Scheduler{
		config: config,
		repo:   repo,
		sender: sender,
		stopCh: make(chan struct{}),
	}
}

// Start launches the scheduler goroutine. An initial cycle runs
// immediately, then one cycle per interval.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("starting notification dispatch scheduler",
		"interval", s.config.Interval,
		"batch_size", s.config.BatchSize,
		"max_attempts", s.config.MaxAttempts,
	)

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop gracefully stops the scheduler. Future timer firings are cancelled;
// an in-flight cycle is allowed to finish to avoid partial writes.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	slog.Info("notification dispatch scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	s.RunCycle(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle executes a single dispatch cycle and returns the number of
// records attempted. A cycle that finds no due records is a no-op. If a
// cycle is already in flight the call is skipped, never run concurrently.
func (s *Scheduler) RunCycle(ctx context.Context) int {
	if !s.inFlight.CompareAndSwap(false, true) {
		slog.Debug("dispatch cycle still in flight, skipping")
		recordCycleSkipped()
		return 0
	}
	defer s.inFlight.Store(false)

	now := time.Now()

	due, err := s.repo.FetchDue(ctx, now, s.config.BatchSize, s.config.MaxAttempts)
	if err != nil {
		slog.Error("failed to fetch due notifications", "error", err)
		return 0
	}

	if len(due) == 0 {
		return 0
	}

	slog.Debug("dispatching notifications", "count", len(due))
	recordQueueFetched(len(due))

	for _, n := range due {
		s.dispatch(ctx, now, n)
	}

	return len(due)
}

func (s *Scheduler) dispatch(ctx context.Context, now time.Time, n *domain.Notification) {
	start := time.Now()
	err := s.sender.Send(ctx, n.RecipientEmail, EmailSubject, n.Message)
	recordSendDuration(time.Since(start))

	if err == nil {
		if markErr := s.repo.MarkSent(ctx, n.ID, now); markErr != nil {
			slog.Error("failed to mark notification as sent", "id", n.ID, "error", markErr)
		}
		recordDispatched("success")
		slog.Debug("notification sent", "id", n.ID, "attempt", n.Attempts+1)
		return
	}

	attempts := n.Attempts + 1
	slog.Warn("notification send failed",
		"id", n.ID,
		"attempt", attempts,
		"max_attempts", s.config.MaxAttempts,
		"error", err,
	)

	if !isRetryable(err) || attempts >= s.config.MaxAttempts {
		if markErr := s.repo.MarkFailed(ctx, n.ID, now, err); markErr != nil {
			slog.Error("failed to mark notification as failed", "id", n.ID, "error", markErr)
		}
		recordDispatched("failed")
		return
	}

	nextAttemptAt := now.Add(s.backoff(attempts))
	if markErr := s.repo.MarkRetry(ctx, n.ID, now, err, nextAttemptAt); markErr != nil {
		slog.Error("failed to mark notification for retry", "id", n.ID, "error", markErr)
	}
	recordDispatched("retry")

	slog.Info("notification scheduled for retry",
		"id", n.ID,
		"attempt", attempts,
		"next_attempt_at", nextAttemptAt,
	)
}

// backoff returns the delay before the next attempt after the n-th attempt
// failed: initial backoff doubled per failure, capped at the maximum.
func (s *Scheduler) backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}

	shift := uint(n - 1)
	// Guard against overflow for large attempt counts.
	if shift > 32 {
		return s.config.MaxBackoff
	}

	d := s.config.InitialBackoff << shift
	if d <= 0 || d > s.config.MaxBackoff {
		return s.config.MaxBackoff
	}
	return d
}

// isRetryable checks if a send error may be retried. Unknown errors are
// retried by default; adapters opt out via an IsRetryable method.
func isRetryable(err error) bool {
	var r interface{ IsRetryable() bool }
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return true
}
