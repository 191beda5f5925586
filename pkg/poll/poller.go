package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/Alwanly/dify-indexing-watch/pkg/logger"
	"go.uber.org/zap"
)

// Poller drives a probe until it reaches a terminal result or the attempt
// budget in Config runs out. A Poller keeps no per-call state, so one value
// can serve concurrent Poll calls.
type Poller struct {
	logger   *logger.CanonicalLogger
	sleep    Sleeper
	observer AttemptObserver
}

// Option customises a Poller.
type Option func(*Poller)

// WithSleeper replaces the timer-based suspension, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(p *Poller) {
		if s != nil {
			p.sleep = s
		}
	}
}

// WithObserver registers a callback invoked after every probe call.
func WithObserver(o AttemptObserver) Option {
	return func(p *Poller) {
		p.observer = o
	}
}

// New creates a Poller. A nil logger disables logging.
func New(log *logger.CanonicalLogger, opts ...Option) *Poller {
	if log == nil {
		log = logger.NewNop()
	}
	p := &Poller{
		logger: log,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var defaultPoller = New(nil)

// Poll runs probe with the package default Poller.
func Poll(ctx context.Context, probe Probe, cfg Config) error {
	return defaultPoller.Poll(ctx, probe, cfg)
}

// Poll invokes probe up to cfg.MaxAttempts times. It returns nil on the
// first Success, *AbortedError on the first Failed, *TimeoutExceededError
// when every attempt was Pending, and the probe's own error (wrapped) as soon
// as one is returned. Cancelling ctx stops the schedule and returns ctx.Err()
// wrapped.
func (p *Poller) Poll(ctx context.Context, probe Probe, cfg Config) error {
	if probe == nil {
		return fmt.Errorf("%w: nil probe", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var last Result
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := cfg.Delay(attempt)
			p.logger.Debug("waiting before next attempt",
				zap.Int(logger.FieldAttempt, attempt),
				zap.Duration(logger.FieldDelay, delay),
			)
			if err := p.sleep(ctx, delay); err != nil {
				return fmt.Errorf("poll canceled after %d attempts: %w", attempt-1, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("poll canceled after %d attempts: %w", attempt-1, err)
		}

		result, err := probe(ctx)
		if p.observer != nil {
			p.observer(attempt, result, err)
		}
		if err != nil {
			p.logger.Error("probe failed",
				zap.Int(logger.FieldAttempt, attempt),
				zap.Error(err),
			)
			return fmt.Errorf("probe attempt %d: %w", attempt, err)
		}

		p.logger.Debug("probe completed",
			zap.Int(logger.FieldAttempt, attempt),
			zap.Int(logger.FieldMaxAttempts, cfg.MaxAttempts),
			zap.Stringer(logger.FieldOutcome, result.Outcome),
		)

		switch result.Outcome {
		case Success:
			p.logger.Info("poll succeeded", zap.Int(logger.FieldAttempt, attempt))
			return nil
		case Failed:
			p.logger.Info("poll aborted",
				zap.Int(logger.FieldAttempt, attempt),
				zap.String("reason", result.Reason),
			)
			return &AbortedError{Reason: result.Reason, Attempt: attempt}
		case Pending:
			last = result
		default:
			return fmt.Errorf("probe attempt %d: unknown outcome %d", attempt, int(result.Outcome))
		}
	}

	p.logger.Info("poll attempts exhausted", zap.Int(logger.FieldMaxAttempts, cfg.MaxAttempts))
	return &TimeoutExceededError{Attempts: cfg.MaxAttempts, Last: last}
}

// sleepContext waits on a timer that is always stopped on return.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
