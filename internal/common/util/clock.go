package util

import "time"

// Clock is the time source used wherever ordering or sampling decisions
// depend on the current time, so tests can pin it.
type Clock interface {
	Now() time.Time
}

// DefaultClock reads the wall clock.
type DefaultClock struct{}

func (c *DefaultClock) Now() time.Time { return time.Now() }

// DummyClock always reports T.
type DummyClock struct {
	T time.Time
}

func (c *DummyClock) Now() time.Time {
	return c.T
}
