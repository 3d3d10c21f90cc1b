package lease

import "time"

// Clock abstracts the wall-clock source so coordinators can be tested
// against a fake time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the real clock.
type SystemClock struct{}

// Now implements Clock.Now.
func (SystemClock) Now() time.Time {
	return time.Now()
}
