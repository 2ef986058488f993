package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fookiki/internal/clock"
)

func newFake() *clock.Fake {
	return clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
}

func TestCountdownExpiresOnce(t *testing.T) {
	c := newFake()
	cd := NewCountdown(c)
	var ticks []time.Duration
	cd.OnTick(func(left time.Duration) { ticks = append(ticks, left) })
	expired := 0
	cd.Start(3*time.Second, func() { expired++ })

	c.Advance(2 * time.Second)
	assert.Equal(t, 0, expired)
	assert.Equal(t, time.Second, cd.Remaining())
	assert.Equal(t, []time.Duration{2 * time.Second, time.Second}, ticks)

	c.Advance(time.Minute)
	assert.Equal(t, 1, expired)
	assert.False(t, cd.Running())
	assert.Zero(t, c.Pending())
}

func TestCountdownRestartDoesNotDoubleSchedule(t *testing.T) {
	c := newFake()
	cd := NewCountdown(c)
	first, second := 0, 0
	cd.Start(2*time.Second, func() { first++ })
	c.Advance(time.Second)
	cd.Start(2*time.Second, func() { second++ })
	cd.Start(2*time.Second, func() { second++ })
	assert.Equal(t, 1, c.Pending())

	c.Advance(10 * time.Second)
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
}

func TestCountdownStopIsIdempotent(t *testing.T) {
	c := newFake()
	cd := NewCountdown(c)
	cd.Stop()
	fired := false
	cd.Start(time.Second, func() { fired = true })
	cd.Stop()
	cd.Stop()
	c.Advance(time.Minute)
	assert.False(t, fired)
	assert.False(t, cd.Running())
}

func TestCountdownPauseResume(t *testing.T) {
	c := newFake()
	cd := NewCountdown(c)
	fired := false
	cd.Start(3*time.Second, func() { fired = true })
	c.Advance(time.Second)
	cd.Pause()
	assert.True(t, cd.Paused())
	c.Advance(time.Hour)
	assert.False(t, fired)
	assert.Equal(t, 2*time.Second, cd.Remaining())

	cd.Resume()
	c.Advance(2 * time.Second)
	assert.True(t, fired)
}

func TestCountdownStopInsideCallback(t *testing.T) {
	c := newFake()
	cd := NewCountdown(c)
	cd.Start(time.Second, func() { cd.Stop() })
	require.NotPanics(t, func() { c.Advance(2 * time.Second) })
}

func TestMatchExtraTimeOnlyOnce(t *testing.T) {
	c := newFake()
	extra, finished := 0, 0
	m := NewMatch(c, MatchConfig{
		Duration:    300 * time.Second,
		ExtraTime:   60 * time.Second,
		Tied:        func() bool { return true },
		OnExtraTime: func() { extra++ },
		OnFinish:    func() { finished++ },
	})
	m.Start()

	c.Advance(300 * time.Second)
	assert.Equal(t, 1, extra)
	assert.Equal(t, 0, finished)
	assert.True(t, m.IsExtraTime())
	assert.Equal(t, 60*time.Second, m.Remaining())

	c.Advance(60 * time.Second)
	assert.Equal(t, 1, extra, "a tie after extra time must not restart again")
	assert.Equal(t, 1, finished)

	c.Advance(time.Hour)
	assert.Equal(t, 1, finished)
}

func TestMatchFinishesWhenNotTied(t *testing.T) {
	c := newFake()
	extra, finished := 0, 0
	m := NewMatch(c, MatchConfig{
		Duration:    5 * time.Second,
		ExtraTime:   5 * time.Second,
		Tied:        func() bool { return false },
		OnExtraTime: func() { extra++ },
		OnFinish:    func() { finished++ },
	})
	m.Start()
	c.Advance(5 * time.Second)
	assert.Equal(t, 0, extra)
	assert.Equal(t, 1, finished)
	assert.False(t, m.IsExtraTime())
}

func TestMatchPauseStopsTheClock(t *testing.T) {
	c := newFake()
	finished := false
	m := NewMatch(c, MatchConfig{Duration: 3 * time.Second, OnFinish: func() { finished = true }})
	m.Start()
	m.Pause()
	c.Advance(time.Minute)
	assert.False(t, finished)
	m.Resume()
	c.Advance(3 * time.Second)
	assert.True(t, finished)
	m.Stop()
	m.Stop()
}

func TestTurnSwitchesToExtraDuration(t *testing.T) {
	c := newFake()
	tt := NewTurn(c, 10*time.Second, 5*time.Second)
	expired := 0
	tt.Restart(func() { expired++ })
	assert.Equal(t, 10*time.Second, tt.Remaining())

	tt.UseExtraTime()
	tt.Restart(func() { expired++ })
	assert.Equal(t, 5*time.Second, tt.Remaining())
	c.Advance(5 * time.Second)
	assert.Equal(t, 1, expired)
}
