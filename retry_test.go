package duro

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryBuilder_Defaults(t *testing.T) {
	p := Retry(3).Policy()

	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Second, p.FirstRetryInterval)
}

func TestRetryBuilder_ClampsAttempts(t *testing.T) {
	assert.Equal(t, 1, Retry(0).Policy().MaxAttempts)
	assert.Equal(t, 1, Retry(-5).Policy().MaxAttempts)
}

func TestRetryBuilder_ExponentialBackoff(t *testing.T) {
	p := Retry(5).WithExponentialBackoff(100*time.Millisecond, 3.0, 2*time.Second).Policy()

	assert.Equal(t, 100*time.Millisecond, p.NextRetryInterval(1))
	assert.Equal(t, 300*time.Millisecond, p.NextRetryInterval(2))
	assert.Equal(t, 900*time.Millisecond, p.NextRetryInterval(3))
	// Capped by max.
	assert.Equal(t, 2*time.Second, p.NextRetryInterval(4))
}

func TestRetryBuilder_ExponentialBackoffDefaultCoefficient(t *testing.T) {
	p := Retry(3).WithExponentialBackoff(time.Second, 0, 0).Policy()

	assert.Equal(t, 2.0, p.BackoffCoefficient)
}

func TestRetryBuilder_ConstantBackoff(t *testing.T) {
	p := Retry(4).WithConstantBackoff(250 * time.Millisecond).Policy()

	for attempt := 1; attempt <= 3; attempt++ {
		assert.Equal(t, 250*time.Millisecond, p.NextRetryInterval(attempt))
	}
}

func TestRetryBuilder_Timeout(t *testing.T) {
	p := Retry(10).WithConstantBackoff(time.Second).WithTimeout(30 * time.Second).Policy()

	assert.Equal(t, 30*time.Second, p.RetryTimeout)
}
