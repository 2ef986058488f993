// Package timer implements the turn clock and the match clock. Both count
// down in one-second ticks on an injected clock.Clock.
package timer

import (
	"sync"
	"time"

	"fookiki/internal/clock"
)

// Tick is the countdown resolution.
const Tick = time.Second

// Countdown counts a duration down in ticks and calls a callback when it
// reaches zero. Starting a running countdown replaces the pending tick, so
// at most one tick is ever scheduled. Callbacks run without the lock held.
type Countdown struct {
	clock clock.Clock

	mu        sync.Mutex
	remaining time.Duration
	running   bool
	paused    bool
	gen       uint64
	pending   clock.Timer
	onExpire  func()
	onTick    func(time.Duration)
}

// NewCountdown returns a stopped countdown.
func NewCountdown(c clock.Clock) *Countdown {
	return &Countdown{clock: c}
}

// OnTick sets a hook called with the remaining time after every tick that
// does not expire the countdown.
func (c *Countdown) OnTick(fn func(remaining time.Duration)) {
	c.mu.Lock()
	c.onTick = fn
	c.mu.Unlock()
}

// Start begins counting d down and calls onExpire once when it runs out.
// Any earlier run is cancelled first.
func (c *Countdown) Start(d time.Duration, onExpire func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
	c.remaining = d
	c.onExpire = onExpire
	c.running = true
	c.paused = false
	c.scheduleLocked()
}

// Stop cancels the countdown. Stopping a stopped countdown is a no-op.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
	c.running = false
	c.paused = false
}

// Pause suspends a running countdown, keeping the whole seconds left.
func (c *Countdown) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.paused {
		return
	}
	c.cancelLocked()
	c.paused = true
}

// Resume continues a paused countdown.
func (c *Countdown) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || !c.paused {
		return
	}
	c.paused = false
	c.scheduleLocked()
}

// Remaining returns the time left as of the last tick.
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Running reports whether the countdown is started and not yet expired.
// A paused countdown is still running.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Paused reports whether a running countdown is suspended.
func (c *Countdown) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Countdown) cancelLocked() {
	c.gen++
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
}

func (c *Countdown) scheduleLocked() {
	step := min(Tick, c.remaining)
	gen := c.gen
	c.pending = c.clock.AfterFunc(step, func() { c.tick(gen, step) })
}

func (c *Countdown) tick(gen uint64, step time.Duration) {
	c.mu.Lock()
	if gen != c.gen || !c.running || c.paused {
		c.mu.Unlock()
		return
	}
	c.pending = nil
	c.remaining -= step
	if c.remaining <= 0 {
		c.remaining = 0
		c.running = false
		c.gen++
		fn := c.onExpire
		c.mu.Unlock()
		if fn != nil {
			fn()
		}
		return
	}
	c.scheduleLocked()
	fn, left := c.onTick, c.remaining
	c.mu.Unlock()
	if fn != nil {
		fn(left)
	}
}
