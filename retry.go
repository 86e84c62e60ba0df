package duro

import "time"

// RetryBuilder provides a fluent way to construct RetryPolicy values for
// CallActivityWithRetry and CallSubOrchestratorWithRetry.
type RetryBuilder struct {
	policy RetryPolicy
}

// Retry creates a RetryBuilder with the given maxAttempts.
//
// maxAttempts <= 0 is treated as 1 (no retries).
func Retry(maxAttempts int) RetryBuilder {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return RetryBuilder{
		policy: RetryPolicy{
			MaxAttempts:        maxAttempts,
			FirstRetryInterval: time.Second,
		},
	}
}

// WithExponentialBackoff configures exponential backoff:
//
//   - first is the delay before the first retry.
//   - coefficient > 1 grows the delay each attempt (default 2.0 if <= 0).
//   - max caps the delay; if <= 0, there is no cap.
//
// Example:
//
//	duro.Retry(5).WithExponentialBackoff(time.Second, 2.0, time.Minute)
func (r RetryBuilder) WithExponentialBackoff(first time.Duration, coefficient float64, max time.Duration) RetryBuilder {
	p := r.policy
	p.FirstRetryInterval = first
	p.MaxRetryInterval = max
	if coefficient <= 0 {
		coefficient = 2.0
	}
	p.BackoffCoefficient = coefficient
	return RetryBuilder{policy: p}
}

// WithConstantBackoff configures the same delay between all retries.
func (r RetryBuilder) WithConstantBackoff(delay time.Duration) RetryBuilder {
	p := r.policy
	p.FirstRetryInterval = delay
	p.MaxRetryInterval = 0
	p.BackoffCoefficient = 1.0
	return RetryBuilder{policy: p}
}

// WithTimeout stops retrying once the given span of orchestration time has
// passed since the first attempt, even if attempts remain.
func (r RetryBuilder) WithTimeout(timeout time.Duration) RetryBuilder {
	p := r.policy
	p.RetryTimeout = timeout
	return RetryBuilder{policy: p}
}

// Policy returns the underlying RetryPolicy.
func (r RetryBuilder) Policy() RetryPolicy {
	return r.policy
}
