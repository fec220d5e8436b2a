package util

import "time"

// Clock abstracts the current time as unix seconds so host handlers and the
// funding/liquidation math they drive stay deterministic under test.
type Clock interface {
	Now() int64
}

// RealClock is the Clock backed by the system wall clock.
type RealClock struct{}

func (RealClock) Now() int64 { return time.Now().Unix() }
