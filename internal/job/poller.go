package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/genbridge-api/internal/generator"
)

// Poll loop errors.
var (
	// ErrGenerationFailed is returned when the vendor reports the job failed.
	ErrGenerationFailed = errors.New("job: generation failed")
	// ErrTimeout is returned when the job is still running after the last attempt.
	ErrTimeout = errors.New("job: polling timed out")
)

// Default poll parameters.
const (
	DefaultMaxAttempts  = 120
	DefaultPollInterval = 2 * time.Second
)

// StatusFetcher reads the current vendor snapshot of a job.
type StatusFetcher interface {
	Status(ctx context.Context, jobID string) (generator.Snapshot, error)
}

// Outcome is the classification of a single snapshot.
type Outcome int

const (
	// OutcomeRunning means polling should continue.
	OutcomeRunning Outcome = iota
	// OutcomeSucceeded means the job completed with at least one result.
	OutcomeSucceeded
	// OutcomeFailed means the vendor reported failure.
	OutcomeFailed
)

// Classify maps a snapshot to an Outcome. A completed snapshot without
// results is still running.
func Classify(snap generator.Snapshot) Outcome {
	switch {
	case snap.Status == generator.StatusCompleted && len(snap.Results) > 0:
		return OutcomeSucceeded
	case snap.Status == generator.StatusFailed:
		return OutcomeFailed
	default:
		return OutcomeRunning
	}
}

// Poller waits for a vendor job to reach a terminal state.
type Poller struct {
	fetcher     StatusFetcher
	maxAttempts int
	interval    time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithMaxAttempts sets the number of status checks before ErrTimeout.
func WithMaxAttempts(n int) PollerOption {
	return func(p *Poller) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithPollInterval sets the wait before each status check.
func WithPollInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d >= 0 {
			p.interval = d
		}
	}
}

// WithSleep replaces the wait between attempts. Used by tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) PollerOption {
	return func(p *Poller) {
		p.sleep = sleep
	}
}

// WithPollerLogger sets the logger.
func WithPollerLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPoller creates a Poller reading snapshots from fetcher.
func NewPoller(fetcher StatusFetcher, opts ...PollerOption) *Poller {
	p := &Poller{
		fetcher:     fetcher,
		maxAttempts: DefaultMaxAttempts,
		interval:    DefaultPollInterval,
		sleep:       sleepContext,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Budget returns the worst-case time Wait spends sleeping.
func (p *Poller) Budget() time.Duration {
	return time.Duration(p.maxAttempts) * p.interval
}

// Wait polls until the job succeeds, fails or runs out of attempts, and
// returns the vendor result URLs on success. Each attempt sleeps first.
// onUpdate, when non-nil, sees every snapshot fetched.
// A status fetch error aborts the wait.
func (p *Poller) Wait(ctx context.Context, jobID string, onUpdate func(generator.Snapshot)) ([]string, error) {
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if err := p.sleep(ctx, p.interval); err != nil {
			return nil, err
		}

		snap, err := p.fetcher.Status(ctx, jobID)
		if err != nil {
			p.logger.Error("status check failed",
				slog.String("task_id", jobID),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			return nil, err
		}

		p.logger.Debug("task status",
			slog.String("task_id", jobID),
			slog.Int("attempt", attempt),
			slog.String("status", string(snap.Status)),
			slog.Int("progress", snap.Progress),
		)

		if onUpdate != nil {
			onUpdate(snap)
		}

		switch Classify(snap) {
		case OutcomeSucceeded:
			return snap.Results, nil
		case OutcomeFailed:
			if snap.Error != "" {
				return nil, fmt.Errorf("%w: %s", ErrGenerationFailed, snap.Error)
			}
			return nil, ErrGenerationFailed
		}
	}

	p.logger.Warn("task polling timed out",
		slog.String("task_id", jobID),
		slog.Int("attempts", p.maxAttempts),
		slog.Duration("budget", p.Budget()),
	)
	return nil, ErrTimeout
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
