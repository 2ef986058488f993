// Package room hosts matches: it seats two members, runs the rule engine on
// their behalf, drives the clocks and persists every accepted change.
package room

import (
	"fmt"
	"time"

	"fookiki/internal/apperr"
	"fookiki/internal/board"
	"fookiki/internal/engine"
)

// Status represents the room lifecycle. It only moves forward.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusFinished   Status = "finished"
)

// Mode selects how a match ends.
type Mode string

const (
	ModeTimed    Mode = "timed"
	ModeRace     Mode = "race"
	ModeGap      Mode = "gap"
	ModeInfinite Mode = "infinite"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeTimed, ModeRace, ModeGap, ModeInfinite:
		return true
	}
	return false
}

// Settings configures one match. Durations are in seconds.
type Settings struct {
	Mode                 Mode   `json:"mode"`
	Duration             int    `json:"duration,omitempty"`
	GoalTarget           int    `json:"goalTarget,omitempty"`
	GoalGap              int    `json:"goalGap,omitempty"`
	Formation            string `json:"formation"`
	WinningScore         int    `json:"winningScore,omitempty"`
	TurnSeconds          int    `json:"turnSeconds,omitempty"`
	ExtraTimeSeconds     int    `json:"extraTimeSeconds,omitempty"`
	ExtraTimeTurnSeconds int    `json:"extraTimeTurnSeconds,omitempty"`
	CelebrationSeconds   int    `json:"celebrationSeconds,omitempty"`
}

// WithDefaults fills every unset field from d.
func (s Settings) WithDefaults(d Settings) Settings {
	if s.Mode == "" {
		s.Mode = d.Mode
	}
	fill := func(v *int, def int) {
		if *v == 0 {
			*v = def
		}
	}
	fill(&s.Duration, d.Duration)
	fill(&s.GoalTarget, d.GoalTarget)
	fill(&s.GoalGap, d.GoalGap)
	fill(&s.WinningScore, d.WinningScore)
	fill(&s.TurnSeconds, d.TurnSeconds)
	fill(&s.ExtraTimeSeconds, d.ExtraTimeSeconds)
	fill(&s.ExtraTimeTurnSeconds, d.ExtraTimeTurnSeconds)
	fill(&s.CelebrationSeconds, d.CelebrationSeconds)
	if s.Formation == "" {
		s.Formation = d.Formation
	}
	return s
}

// Validate rejects settings a match cannot start with.
func (s Settings) Validate() error {
	if !s.Mode.Valid() {
		return apperr.Validationf("unknown mode %q", s.Mode)
	}
	switch {
	case s.Mode == ModeTimed && s.Duration <= 0:
		return apperr.Validation("timed mode needs a positive duration")
	case s.Mode == ModeRace && s.GoalTarget <= 0:
		return apperr.Validation("race mode needs a positive goal target")
	case s.Mode == ModeGap && s.GoalGap <= 0:
		return apperr.Validation("gap mode needs a positive goal gap")
	case s.Duration < 0 || s.GoalTarget < 0 || s.GoalGap < 0 || s.WinningScore < 0:
		return apperr.Validation("negative setting")
	case s.TurnSeconds < 0 || s.ExtraTimeSeconds < 0 || s.ExtraTimeTurnSeconds < 0 || s.CelebrationSeconds < 0:
		return apperr.Validation("negative duration")
	}
	return nil
}

// Rules derives the engine's score rules for the mode.
func (s Settings) Rules() engine.Rules {
	switch s.Mode {
	case ModeTimed:
		return engine.Rules{WinningScore: s.WinningScore}
	case ModeRace:
		return engine.Rules{WinningScore: s.GoalTarget}
	case ModeGap:
		return engine.Rules{GoalGap: s.GoalGap}
	}
	return engine.Rules{}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// Member is one of the two people seated in a room.
type Member struct {
	UID    string     `json:"uid"`
	Handle string     `json:"handle"`
	Team   board.Team `json:"team"`
	Ready  bool       `json:"ready"`
	Score  int        `json:"score"`
}

// Clocks is the persisted reading of the room's timers.
type Clocks struct {
	MatchRemaining int  `json:"matchRemaining,omitempty"`
	TurnRemaining  int  `json:"turnRemaining,omitempty"`
	ExtraTime      bool `json:"extraTime"`
}

// Room is the shared document both members observe.
type Room struct {
	ID          string             `json:"id"`
	Status      Status             `json:"status"`
	Members     map[string]*Member `json:"members"`
	Settings    Settings           `json:"settings"`
	Game        *engine.State      `json:"game"`
	CurrentTurn string             `json:"currentTurn"`
	Clocks      Clocks             `json:"clocks"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// Seed builds a waiting room from settings. The first member plays blue
// and has the first turn; a second member plays red.
func Seed(settings Settings, formations *board.Registry, members ...Member) (*Room, error) {
	if len(members) == 0 || len(members) > 2 {
		return nil, apperr.Validationf("a room seats one or two members, got %d", len(members))
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	f, ok := formations.Get(settings.Formation)
	if !ok {
		return nil, apperr.Validationf("unknown formation %q", settings.Formation)
	}
	r := &Room{
		Status:   StatusWaiting,
		Members:  make(map[string]*Member, 2),
		Settings: settings,
		Game:     engine.New(f, settings.Rules()),
	}
	teams := []board.Team{board.Blue, board.Red}
	for i, m := range members {
		if m.UID == "" {
			return nil, apperr.Validation("member without uid")
		}
		if _, dup := r.Members[m.UID]; dup {
			return nil, apperr.Validationf("member %s seated twice", m.UID)
		}
		m.Team = teams[i]
		m.Ready = false
		m.Score = 0
		r.Members[m.UID] = &m
	}
	r.CurrentTurn = members[0].UID
	return r, nil
}

// Clone returns a deep copy of r.
func (r *Room) Clone() *Room {
	c := *r
	c.Members = make(map[string]*Member, len(r.Members))
	for uid, m := range r.Members {
		mm := *m
		c.Members[uid] = &mm
	}
	if r.Game != nil {
		c.Game = r.Game.Clone()
	}
	return &c
}

// MemberOf returns the member playing team t.
func (r *Room) MemberOf(t board.Team) (*Member, bool) {
	for _, m := range r.Members {
		if m.Team == t {
			return m, true
		}
	}
	return nil, false
}

// freeTeam returns the team nobody plays yet.
func (r *Room) freeTeam() (board.Team, error) {
	for _, t := range []board.Team{board.Blue, board.Red} {
		if _, taken := r.MemberOf(t); !taken {
			return t, nil
		}
	}
	return "", apperr.Conflictf("room %s is full", r.ID)
}

// sync derives the turn holder and member scores from the game.
func (r *Room) sync() {
	if m, ok := r.MemberOf(r.Game.CurrentTeam); ok {
		r.CurrentTurn = m.UID
	} else {
		r.CurrentTurn = ""
	}
	for _, m := range r.Members {
		m.Score = r.Game.Score.Of(m.Team)
	}
	if _, over := r.Game.Result(); over {
		r.Status = StatusFinished
	}
}

func (r *Room) String() string {
	return fmt.Sprintf("room %s (%s)", r.ID, r.Status)
}
