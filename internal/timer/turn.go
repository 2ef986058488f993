package timer

import (
	"sync"
	"time"

	"fookiki/internal/clock"
)

// Turn is the per-move clock. Every turn change restarts it; once the match
// enters extra time it counts the extra-time move duration instead.
type Turn struct {
	cd *Countdown

	mu      sync.Mutex
	normal  time.Duration
	extra   time.Duration
	inExtra bool
}

func NewTurn(c clock.Clock, normal, extra time.Duration) *Turn {
	return &Turn{cd: NewCountdown(c), normal: normal, extra: extra}
}

// Restart begins a new move countdown that calls onExpire when it runs out.
func (t *Turn) Restart(onExpire func()) {
	t.cd.Start(t.Duration(), onExpire)
}

// UseExtraTime switches later restarts to the extra-time duration.
func (t *Turn) UseExtraTime() {
	t.mu.Lock()
	t.inExtra = true
	t.mu.Unlock()
}

// Duration is the length of the next countdown.
func (t *Turn) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inExtra && t.extra > 0 {
		return t.extra
	}
	return t.normal
}

func (t *Turn) OnTick(fn func(time.Duration)) { t.cd.OnTick(fn) }

func (t *Turn) Stop()   { t.cd.Stop() }
func (t *Turn) Pause()  { t.cd.Pause() }
func (t *Turn) Resume() { t.cd.Resume() }

func (t *Turn) Remaining() time.Duration { return t.cd.Remaining() }
func (t *Turn) Running() bool            { return t.cd.Running() }
