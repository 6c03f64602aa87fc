// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability. Production code
// injects Real(); tests inject a Fake with deterministic control.
// Chunk creation timestamps are stamped through a Clock so tests can
// assert exact on-disk timestamp contents.
package clock

import (
	"sync"
	"time"
)

// Clock provides the current time and timed waits.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time after
	// duration d elapses. If d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Fake is a Clock whose time only moves when Advance is called.
// Safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	waiters []fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	channel  chan time.Time
}

// NewFake returns a Fake clock starting at the given time.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After returns a channel that receives when the fake time passes
// now+d. A non-positive d delivers immediately.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- f.now
		return channel
	}
	f.waiters = append(f.waiters, fakeWaiter{deadline: f.now.Add(d), channel: channel})
	return channel
}

// Advance moves the fake time forward and fires any waiters whose
// deadline has passed.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.now = f.now.Add(d)

	remaining := f.waiters[:0]
	for _, waiter := range f.waiters {
		if !waiter.deadline.After(f.now) {
			waiter.channel <- f.now
		} else {
			remaining = append(remaining, waiter)
		}
	}
	f.waiters = remaining
}
