// Package clock abstracts time so session timers can be driven
// deterministically in tests.
package clock

import "time"

// Clock is the subset of the time package the session layer depends on.
// Production code injects Real(); tests inject Fake().
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc waits for d, then calls f. The returned Timer cancels
	// the pending call.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer represents a pending AfterFunc call.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the Timer from firing. Returns false if the timer has
// already fired or been stopped.
func (t *Timer) Stop() bool {
	if t == nil || t.stopFunc == nil {
		return false
	}
	return t.stopFunc()
}
