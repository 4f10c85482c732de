// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the time source for bounded waits and idle-session
// reaping. Production code takes a [Clock] and receives [Real]; tests
// pass a [FakeClock] and move time explicitly with Advance.
//
// The interface is deliberately narrow. It covers only what the bridge
// and responder use: the current time, one-shot waits (round-trip
// timeouts) and tickers (the reaper loop).
//
// A goroutine that calls After or NewTicker on a FakeClock registers a
// pending waiter. Tests call WaitForTimers before Advance so the
// goroutine's registration cannot race with the advance:
//
//	fake := clock.Fake(epoch)
//	go reaper.Run(ctx)
//	fake.WaitForTimers(1)
//	fake.Advance(time.Minute)
package clock
