package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// outcome is one observed upstream result: true for success.
type outcome bool

const (
	ok   outcome = true
	fail outcome = false
)

func replay(b *Breaker, outcomes ...outcome) {
	for _, o := range outcomes {
		if o {
			b.RecordSuccess()
		} else {
			b.RecordFailure()
		}
	}
}

func TestBreakerSequences(t *testing.T) {
	tests := []struct {
		name     string
		opts     []Option
		outcomes []outcome
		wantOpen bool
	}{
		{"fresh breaker is closed", nil, nil, false},
		{"below failure threshold", []Option{WithFailureThreshold(3)}, []outcome{fail, fail}, false},
		{"reaches failure threshold", []Option{WithFailureThreshold(3)}, []outcome{fail, fail, fail}, true},
		{"success interrupts a failure streak", []Option{WithFailureThreshold(3)}, []outcome{fail, fail, ok, fail, fail}, false},
		{"open until enough successes", []Option{WithFailureThreshold(1), WithSuccessThreshold(2)}, []outcome{fail, ok}, true},
		{"closes after success threshold", []Option{WithFailureThreshold(1), WithSuccessThreshold(2)}, []outcome{fail, ok, ok}, false},
		{"failure while open restarts recovery", []Option{WithFailureThreshold(1), WithSuccessThreshold(3)}, []outcome{fail, ok, ok, fail, ok, ok}, true},
		{"ignores non-positive thresholds", []Option{WithFailureThreshold(0), WithSuccessThreshold(-1)}, []outcome{fail, fail, fail, fail}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("nsapi", tt.opts...)
			replay(b, tt.outcomes...)
			assert.Equal(t, tt.wantOpen, b.IsOpen())
		})
	}
}

func TestBreakerReportsTransitionsOnce(t *testing.T) {
	b := New("nsapi", WithFailureThreshold(2), WithSuccessThreshold(1))
	assert.Equal(t, "nsapi", b.Name())

	useFallback, change := b.RecordFailure()
	assert.False(t, useFallback)
	assert.Equal(t, StateChange{}, change)

	useFallback, change = b.RecordFailure()
	assert.True(t, useFallback)
	assert.True(t, change.Opened)
	assert.Equal(t, "open", b.State().String())

	useFallback, change = b.RecordFailure()
	assert.True(t, useFallback)
	assert.False(t, change.Opened, "already open")

	usePrimary, change := b.RecordSuccess()
	assert.True(t, usePrimary)
	assert.True(t, change.Closed)
	assert.Equal(t, "closed", b.State().String())
}

func TestBreakerAllowWaitsForOpenTimeout(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	b := New("nsapi",
		WithFailureThreshold(1),
		WithOpenTimeout(time.Minute),
		WithClock(func() time.Time { return now }),
	)
	require.True(t, b.Allow())

	b.RecordFailure()
	assert.False(t, b.Allow())

	now = now.Add(59 * time.Second)
	assert.False(t, b.Allow())

	now = now.Add(time.Second)
	assert.True(t, b.Allow(), "trial request allowed once the timeout has elapsed")

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}
