package emitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/vietddude/partsync/internal/core/domain"
)

// RetryStrategy defines how retries should be handled.
type RetryStrategy interface {
	// GetDelay returns the delay for the given attempt (0-indexed).
	GetDelay(attempt int) time.Duration

	// ShouldRetry checks if we should retry based on the error and attempt count.
	ShouldRetry(err error, attempt int) bool
}

// Classifier reports whether a publish error is worth retrying.
type Classifier func(err error) bool

// ExponentialBackoff implements a standard backoff strategy.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
	Transient    Classifier
}

// DefaultBackoff returns defaults suited to publishing under the manager
// lock: 200ms, 400ms, 800ms (max 2s).
func DefaultBackoff(transient Classifier) *ExponentialBackoff {
	if transient == nil {
		transient = func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}
	}
	return &ExponentialBackoff{
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		MaxAttempts:  3,
		Transient:    transient,
	}
}

// GetDelay calculates delay: InitialDelay * 2^attempt
func (s *ExponentialBackoff) GetDelay(attempt int) time.Duration {
	delay := float64(s.InitialDelay) * math.Pow(2, float64(attempt))
	if delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	return time.Duration(delay)
}

// ShouldRetry checks if error is transient and max attempts not exceeded.
func (s *ExponentialBackoff) ShouldRetry(err error, attempt int) bool {
	if attempt >= s.MaxAttempts {
		return false
	}
	return s.Transient(err)
}

// Retrying republishes a snapshot while the strategy allows it.
type Retrying struct {
	next     Emitter
	strategy RetryStrategy
	log      *slog.Logger
}

// NewRetrying wraps next. A nil strategy uses DefaultBackoff.
func NewRetrying(next Emitter, strategy RetryStrategy, logger *slog.Logger) *Retrying {
	if strategy == nil {
		strategy = DefaultBackoff(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrying{next: next, strategy: strategy, log: logger.With("component", "emitter")}
}

func (r *Retrying) Publish(
	ctx context.Context,
	streamName, namespace string,
	state domain.ManagerState,
) error {
	for attempt := 0; ; attempt++ {
		err := r.next.Publish(ctx, streamName, namespace, state)
		if err == nil {
			return nil
		}
		if !r.strategy.ShouldRetry(err, attempt) {
			return fmt.Errorf("publish failed after %d attempts: %w", attempt+1, err)
		}

		delay := r.strategy.GetDelay(attempt)
		r.log.Warn("Publish failed, retrying",
			"stream", streamName,
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(delay):
		}
	}
}

func (r *Retrying) Close() error {
	return r.next.Close()
}
