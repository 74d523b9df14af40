// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock lets the bridge's timeouts run against an injected
// time source.
//
// Components that schedule expiry (the permission mediator, shutdown
// grace handling) hold a Clock instead of calling the time package
// directly. Production wiring passes Real(); tests pass Fake() and
// move time with Advance:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	mediator := permission.New(transport, permission.Options{Clock: fake})
//	go mediator.RequestApproval(ctx, request)
//	fake.WaitForTimers(1)
//	fake.Advance(300 * time.Second)
//
// WaitForTimers closes the race between a goroutine arming its timer
// and the test advancing past it.
package clock
