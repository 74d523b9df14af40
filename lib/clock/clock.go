// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the subset of the time package the bridge schedules work
// with.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives once d has elapsed. If
	// d <= 0 the channel is ready immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc calls f once d has elapsed. The returned Timer can
	// cancel the call. For d <= 0, f runs immediately: in a new
	// goroutine on the real clock, synchronously on the fake.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a cancellable scheduled call returned by AfterFunc.
type Timer struct {
	stop func() bool
}

// Stop cancels the pending call. It reports whether the call was
// still pending; false means it already ran or was stopped earlier.
func (t *Timer) Stop() bool { return t.stop() }
