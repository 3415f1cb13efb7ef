package shared

import (
	"time"

	"github.com/fato-hub/comportamento-hub/pkg/timeutil"
)

// Clock abstracts wall-clock access so lifecycle timestamps and cache expiry
// can be controlled in tests.
type Clock interface {
	// Now returns the current instant.
	Now() time.Time

	// Today returns the current calendar date at midnight, school-local.
	Today() time.Time
}

// SystemClock is the production Clock backed by the school timezone.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return timeutil.Now()
}

// Today implements Clock.
func (SystemClock) Today() time.Time {
	return timeutil.Today()
}

// FixedClock is a Clock pinned to a single instant, for tests.
type FixedClock struct {
	Instant time.Time
}

// Now implements Clock.
func (c FixedClock) Now() time.Time {
	return c.Instant
}

// Today implements Clock.
func (c FixedClock) Today() time.Time {
	return timeutil.StartOfDay(c.Instant)
}
