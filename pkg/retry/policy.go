package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// ErrMaxRetriesExceeded wraps the last error once the retry budget is spent
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Policy defines retry behavior
type Policy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	Jitter        bool
	RetryableFunc func(error) bool
}

// DefaultPolicy returns a policy suitable for transient API failures
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Validate checks policy parameters
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative, got %d", p.MaxRetries)
	}
	if p.InitialDelay <= 0 {
		return fmt.Errorf("initial delay must be positive, got %v", p.InitialDelay)
	}
	if p.MaxDelay < p.InitialDelay {
		return fmt.Errorf("max delay %v is below initial delay %v", p.MaxDelay, p.InitialDelay)
	}
	if p.Multiplier < 1.0 {
		return fmt.Errorf("multiplier must be >= 1.0, got %f", p.Multiplier)
	}
	return nil
}

// isRetryable applies the policy's classifier. Context errors never retry.
func (p Policy) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.RetryableFunc != nil {
		return p.RetryableFunc(err)
	}
	return true
}

// Backoff calculates delays between retry attempts
type Backoff struct {
	policy Policy
}

// NewBackoff creates a backoff calculator for a policy
func NewBackoff(policy Policy) *Backoff {
	return &Backoff{policy: policy}
}

// Calculate returns the delay before the given 1-based attempt
func (b *Backoff) Calculate(attempt int) time.Duration {
	if attempt <= 0 {
		return b.policy.InitialDelay
	}

	delay := float64(b.policy.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= b.policy.Multiplier
		if delay >= float64(b.policy.MaxDelay) {
			delay = float64(b.policy.MaxDelay)
			break
		}
	}

	if b.policy.Jitter {
		// Up to 25% jitter to avoid thundering herds
		delay += delay * 0.25 * rand.Float64()
	}

	if delay > float64(b.policy.MaxDelay) {
		delay = float64(b.policy.MaxDelay)
	}

	return time.Duration(delay)
}
