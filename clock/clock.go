// Package clock lets timer-driven code run against either wall time or a
// manually advanced fake.
//
// Components that schedule work (heartbeats, reconnect retries) take a
// Clock instead of calling time.Now or time.AfterFunc. Production wiring
// passes Real(); tests pass Fake(start) and call Advance.
package clock

import "time"

// Clock is the subset of the time package used for scheduling.
type Clock interface {
	Now() time.Time

	// AfterFunc calls f once d has elapsed. The returned Timer can
	// cancel the call.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stop func() bool
}

// Stop cancels the call. It reports whether the call was still pending.
func (t *Timer) Stop() bool {
	if t == nil || t.stop == nil {
		return false
	}
	return t.stop()
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stop: t.Stop}
}
