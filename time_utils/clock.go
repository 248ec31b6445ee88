package timeutils

import (
	"sync"
	"time"
)

// Clock gives the current time and blocks for durations. It allows the pacing of test steps to be driven by
// virtual time in tests.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

func (SystemClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

// ManualClock is a Clock that only moves forward when slept on or advanced.
type ManualClock struct {
	lock sync.Mutex
	now  time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

// Sleep advances the clock by `d`, ignoring negative durations.
func (c *ManualClock) Sleep(d time.Duration) {
	c.Advance(d)
}

// Advance moves the clock forward by `d`, ignoring negative durations.
func (c *ManualClock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = c.now.Add(d)
}

// SleepUntil blocks on `clock` until time `t`, returning immediately if `t` has already passed.
// It returns the amount of time that was slept.
func SleepUntil(clock Clock, t time.Time) time.Duration {
	wait := t.Sub(clock.Now())
	if wait <= 0 {
		return 0
	}
	clock.Sleep(wait)
	return wait
}
