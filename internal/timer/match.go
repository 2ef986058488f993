package timer

import (
	"sync"
	"time"

	"fookiki/internal/clock"
)

// MatchConfig configures a match clock.
type MatchConfig struct {
	Duration  time.Duration
	ExtraTime time.Duration

	// Tied is asked when time runs out.
	Tied func() bool
	// OnExtraTime is called when a tie sends the match into extra time.
	OnExtraTime func()
	// OnFinish is called when the match is over on time.
	OnFinish func()
}

// Match is the whole-match clock. A tie at the end of normal time restarts
// it once with the extra-time duration; the next expiry finishes the match
// whatever the score.
type Match struct {
	cfg MatchConfig
	cd  *Countdown

	mu        sync.Mutex
	extraTime bool
}

func NewMatch(c clock.Clock, cfg MatchConfig) *Match {
	return &Match{cfg: cfg, cd: NewCountdown(c)}
}

// Start runs normal time from the beginning.
func (m *Match) Start() {
	m.mu.Lock()
	m.extraTime = false
	m.mu.Unlock()
	m.cd.Start(m.cfg.Duration, m.expire)
}

// StartAt resumes a clock restored from storage.
func (m *Match) StartAt(remaining time.Duration, extraTime bool) {
	m.mu.Lock()
	m.extraTime = extraTime
	m.mu.Unlock()
	m.cd.Start(remaining, m.expire)
}

func (m *Match) expire() {
	tied := m.cfg.Tied != nil && m.cfg.Tied()
	m.mu.Lock()
	restart := !m.extraTime && tied && m.cfg.ExtraTime > 0
	if restart {
		m.extraTime = true
	}
	m.mu.Unlock()

	if restart {
		m.cd.Start(m.cfg.ExtraTime, m.expire)
		if m.cfg.OnExtraTime != nil {
			m.cfg.OnExtraTime()
		}
		return
	}
	if m.cfg.OnFinish != nil {
		m.cfg.OnFinish()
	}
}

func (m *Match) Stop()   { m.cd.Stop() }
func (m *Match) Pause()  { m.cd.Pause() }
func (m *Match) Resume() { m.cd.Resume() }

func (m *Match) Remaining() time.Duration { return m.cd.Remaining() }
func (m *Match) Running() bool            { return m.cd.Running() }

func (m *Match) IsExtraTime() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.extraTime
}
