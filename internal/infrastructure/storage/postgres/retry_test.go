package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay_StrictlyIncreasing(t *testing.T) {
	base := 10 * time.Millisecond

	prev := time.Duration(0)
	for attempt := 1; attempt <= 6; attempt++ {
		d := backoffDelay(base, attempt)
		assert.Greater(t, d, prev, "attempt %d", attempt)
		prev = d
	}
}

func TestBackoffDelay_Bounds(t *testing.T) {
	base := 10 * time.Millisecond

	for attempt := 1; attempt <= 6; attempt++ {
		floor := base << (attempt - 1)
		for i := 0; i < 100; i++ {
			d := backoffDelay(base, attempt)
			assert.GreaterOrEqual(t, d, floor)
			assert.LessOrEqual(t, d, floor+floor/2)
		}
	}
}

func TestSetDefaultRetryPolicy_MergesNonZeroFields(t *testing.T) {
	prev := DefaultRetryPolicy()
	t.Cleanup(func() { SetDefaultRetryPolicy(prev) })

	SetDefaultRetryPolicy(RetryPolicy{MaxAttempts: 7, BaseDelay: 123 * time.Millisecond})
	assert.Equal(t, RetryPolicy{MaxAttempts: 7, BaseDelay: 123 * time.Millisecond}, DefaultRetryPolicy())

	// Zero fields leave the current value in place.
	SetDefaultRetryPolicy(RetryPolicy{MaxAttempts: 9})
	got := DefaultRetryPolicy()
	assert.Equal(t, 9, got.MaxAttempts)
	assert.Equal(t, 123*time.Millisecond, got.BaseDelay)

	SetDefaultRetryPolicy(RetryPolicy{BaseDelay: time.Second})
	got = DefaultRetryPolicy()
	assert.Equal(t, 9, got.MaxAttempts)
	assert.Equal(t, time.Second, got.BaseDelay)
}
