package app

import "time"

const (
	defaultBackoffFloor   = time.Second
	defaultBackoffCeiling = 300 * time.Second
)

// calculateBackoff returns floor * 2^failures, capped at ceiling.
func calculateBackoff(failures int, floor, ceiling time.Duration) time.Duration {
	if floor <= 0 {
		floor = defaultBackoffFloor
	}
	if ceiling < floor {
		ceiling = floor
	}
	if failures < 0 {
		failures = 0
	}
	d := floor
	for i := 0; i < failures; i++ {
		if d > ceiling/2 {
			return ceiling
		}
		d *= 2
	}
	return min(d, ceiling)
}

// Backoff tracks consecutive failures of the update poll. It is not safe for
// concurrent use; the syncer loop owns it.
type Backoff struct {
	floor    time.Duration
	ceiling  time.Duration
	failures int
}

// NewBackoff returns a Backoff between floor and ceiling. Zero values pick
// the defaults of 1s and 300s.
func NewBackoff(floor, ceiling time.Duration) *Backoff {
	if floor <= 0 {
		floor = defaultBackoffFloor
	}
	if ceiling <= 0 {
		ceiling = defaultBackoffCeiling
	}
	return &Backoff{floor: floor, ceiling: ceiling}
}

// Interval is the wait before the next retry.
func (b *Backoff) Interval() time.Duration {
	return calculateBackoff(b.failures, b.floor, b.ceiling)
}

// Fail records a failure and returns the delay to wait before retrying.
func (b *Backoff) Fail() time.Duration {
	d := b.Interval()
	b.failures++
	return d
}

// Reset returns the backoff to its floor.
func (b *Backoff) Reset() {
	b.failures = 0
}

// Failures is the number of consecutive failures recorded.
func (b *Backoff) Failures() int {
	return b.failures
}
