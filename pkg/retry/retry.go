// Package retry provides retry with exponential backoff for transient
// failures against external APIs.
package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Retrier handles retry logic
type Retrier struct {
	policy  Policy
	backoff *Backoff
	logger  *zap.Logger
}

// NewRetrier creates a new retrier
func NewRetrier(policy Policy, logger *zap.Logger) *Retrier {
	if err := policy.Validate(); err != nil {
		panic(fmt.Sprintf("invalid retry policy: %v", err))
	}

	return &Retrier{
		policy:  policy,
		backoff: NewBackoff(policy),
		logger:  logger,
	}
}

// Do executes a function with retry logic
func (r *Retrier) Do(ctx context.Context, operation func() error) error {
	_, err := r.DoWithResult(ctx, func() (interface{}, error) {
		return nil, operation()
	})
	return err
}

// DoWithResult executes a function with retry logic and returns the result
func (r *Retrier) DoWithResult(ctx context.Context, operation func() (interface{}, error)) (interface{}, error) {
	var lastErr error
	var result interface{}

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		result, lastErr = operation()

		if lastErr == nil {
			if attempt > 0 {
				r.logger.Info("Operation succeeded after retries",
					zap.Int("attempt", attempt),
					zap.Int("max_retries", r.policy.MaxRetries))
			}
			return result, nil
		}

		if !r.policy.isRetryable(lastErr) {
			r.logger.Debug("Error is not retryable",
				zap.Error(lastErr),
				zap.Int("attempt", attempt))
			return nil, lastErr
		}

		if attempt >= r.policy.MaxRetries {
			r.logger.Warn("Max retries exceeded",
				zap.Error(lastErr),
				zap.Int("attempts", attempt+1),
				zap.Int("max_retries", r.policy.MaxRetries))
			return nil, fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
		}

		backoffDuration := r.backoff.Calculate(attempt + 1)

		r.logger.Debug("Retrying operation",
			zap.Error(lastErr),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", r.policy.MaxRetries),
			zap.Duration("backoff", backoffDuration))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoffDuration):
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

// Do is a package-level helper for one-off retries
func Do(ctx context.Context, policy Policy, logger *zap.Logger, operation func() error) error {
	retrier := NewRetrier(policy, logger)
	return retrier.Do(ctx, operation)
}

// DoWithResult is a package-level helper for one-off retries with results
func DoWithResult(ctx context.Context, policy Policy, logger *zap.Logger, operation func() (interface{}, error)) (interface{}, error) {
	retrier := NewRetrier(policy, logger)
	return retrier.DoWithResult(ctx, operation)
}
