package timing

import "time"

// Clock supplies monotonic timestamps for interval math and wall time for
// human-readable names.
type Clock interface {
	// Now returns the monotonic time elapsed since the clock was created.
	Now() Timespec
	// Wall returns the local wall-clock time.
	Wall() time.Time
}

type monotonicClock struct {
	base time.Time
}

// NewMonotonicClock returns a Clock backed by the runtime monotonic reading.
func NewMonotonicClock() Clock {
	return &monotonicClock{base: time.Now()}
}

func (c *monotonicClock) Now() Timespec {
	return FromDuration(time.Since(c.base))
}

func (c *monotonicClock) Wall() time.Time {
	return time.Now()
}
