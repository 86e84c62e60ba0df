package api

import (
	"math"
	"time"
)

// RetryPolicy controls how a retryable task re-issues its underlying action
// after a failure. MaxAttempts includes the first attempt:
//
//	MaxAttempts = 1 => no retries (just the initial call)
//	MaxAttempts = 3 => initial call + up to 2 retries
//
// Backoff between attempt n and n+1 is
//
//	min(FirstRetryInterval * BackoffCoefficient^(n-1), MaxRetryInterval)
//
// RetryTimeout, when positive, bounds the total retry window measured in
// orchestration time (durable timers), so it stays replay-safe. Zero means
// no timeout.
type RetryPolicy struct {
	MaxAttempts        int
	FirstRetryInterval time.Duration
	BackoffCoefficient float64
	MaxRetryInterval   time.Duration
	RetryTimeout       time.Duration
}

// NextRetryInterval returns the backoff before the retry that follows
// failed attempt number 'attempt' (1-based).
func (p RetryPolicy) NextRetryInterval(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	coeff := p.BackoffCoefficient
	if coeff <= 0 {
		coeff = 2.0
	}
	d := time.Duration(float64(p.FirstRetryInterval) * math.Pow(coeff, float64(attempt-1)))
	if p.MaxRetryInterval > 0 && d > p.MaxRetryInterval {
		return p.MaxRetryInterval
	}
	return d
}
