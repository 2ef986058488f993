// Package engine implements the rules of a match: selection, piece and
// ball moves, goals, the captain's second touch, win and draw detection
// and single-step undo.
//
// The engine owns no state. Every operation mutates the *State it is given;
// callers that must keep the original on failure work on a Clone.
package engine

import (
	"fookiki/internal/board"
)

// Phase is the step of the current turn.
type Phase string

const (
	PlayerSelection Phase = "PLAYER_SELECTION"
	PlayerMovement  Phase = "PLAYER_MOVEMENT"
	BallMovement    Phase = "BALL_MOVEMENT"
	GameOver        Phase = "GAME_OVER"
)

// EndReason records why a match reached GAME_OVER.
type EndReason string

const (
	EndScore   EndReason = "score"
	EndClock   EndReason = "clock"
	EndForfeit EndReason = "forfeit"
)

// Rules holds the score-based end conditions. Zero disables a condition.
type Rules struct {
	WinningScore int `json:"winningScore,omitempty"`
	GoalGap      int `json:"goalGap,omitempty"`
}

func (r Rules) decided(s Score) bool {
	if r.WinningScore > 0 && (s.Blue >= r.WinningScore || s.Red >= r.WinningScore) {
		return true
	}
	if r.GoalGap > 0 {
		d := s.Blue - s.Red
		if d >= r.GoalGap || -d >= r.GoalGap {
			return true
		}
	}
	return false
}

type Score struct {
	Blue int `json:"blue"`
	Red  int `json:"red"`
}

// Of returns the goals of team t.
func (s Score) Of(t board.Team) int {
	if t == board.Red {
		return s.Red
	}
	return s.Blue
}

func (s *Score) add(t board.Team, n int) {
	if t == board.Red {
		s.Red += n
	} else {
		s.Blue += n
	}
}

// Leader returns the team ahead, or "" when level.
func (s Score) Leader() board.Team {
	switch {
	case s.Blue > s.Red:
		return board.Blue
	case s.Red > s.Blue:
		return board.Red
	}
	return ""
}

type TeamStats struct {
	Moves  int `json:"moves"`
	Passes int `json:"passes"`
	Goals  int `json:"goals"`
}

type Stats struct {
	Blue TeamStats `json:"blue"`
	Red  TeamStats `json:"red"`
}

func (s *Stats) of(t board.Team) *TeamStats {
	if t == board.Red {
		return &s.Red
	}
	return &s.Blue
}

// Action is the kind of history entry.
type Action string

const (
	ActionMove     Action = "move"
	ActionBallMove Action = "ballMove"
)

// HistoryEntry records one applied move and what is needed to reverse it.
type HistoryEntry struct {
	Turn       int            `json:"turn"`
	Action     Action         `json:"action"`
	Team       board.Team     `json:"team"`
	PlayerID   string         `json:"playerId"`
	From       board.Position `json:"from"`
	To         board.Position `json:"to"`
	GoalScored bool           `json:"goalScored,omitempty"`
	Scorer     board.Team     `json:"scorer,omitempty"`

	FirstMove          bool                      `json:"firstMove,omitempty"`
	CaptainBonusUsed   bool                      `json:"captainBonusUsed,omitempty"`
	CaptainBonusActive bool                      `json:"captainBonusActive,omitempty"`
	Positions          map[string]board.Position `json:"positions,omitempty"` // before a goal reset
}

// State is the whole game board of one match.
type State struct {
	Players     []board.Player   `json:"players"`
	Ball        board.Position   `json:"ball"`
	Kickoff     board.Position   `json:"kickoff"`
	CurrentTeam board.Team       `json:"currentTeam"`
	Phase       Phase            `json:"phase"`
	Selected    string           `json:"selectedPlayerId,omitempty"`
	BallChosen  bool             `json:"ballSelected"`
	ValidMoves  []board.Position `json:"validMoves"`
	Score       Score            `json:"score"`
	Winner      board.Team       `json:"winner,omitempty"`
	EndReason   EndReason        `json:"endReason,omitempty"`
	Turn        int              `json:"turn"`
	Stats       Stats            `json:"stats"`
	Rules       Rules            `json:"rules"`
	History     []HistoryEntry   `json:"history"`

	// FirstMove is set at kickoff: the ball has to move before any piece.
	FirstMove bool `json:"firstMove"`
	// CaptainBonusUsed is set once the captain's second touch fired this turn.
	CaptainBonusUsed bool `json:"captainBonusUsed"`
	// CaptainBonusActive is set while that extra ball move is pending.
	CaptainBonusActive bool `json:"captainBonusActive"`
}

// New creates the kickoff state for formation f. Blue plays first.
func New(f board.Formation, rules Rules) *State {
	s := &State{
		Players:     f.Players(),
		Ball:        f.Kickoff,
		Kickoff:     f.Kickoff,
		CurrentTeam: board.Blue,
		Turn:        1,
		Rules:       rules,
		FirstMove:   true,
	}
	s.chooseBall()
	return s
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	c := *s
	c.Players = append([]board.Player(nil), s.Players...)
	c.ValidMoves = append([]board.Position(nil), s.ValidMoves...)
	c.History = nil
	for _, e := range s.History {
		if e.Positions != nil {
			pos := make(map[string]board.Position, len(e.Positions))
			for k, v := range e.Positions {
				pos[k] = v
			}
			e.Positions = pos
		}
		c.History = append(c.History, e)
	}
	return &c
}

// Result reports the winner once the match is over. An empty team with
// over set means a draw.
func (s *State) Result() (winner board.Team, over bool) {
	return s.Winner, s.Phase == GameOver
}

// Tied reports whether the score is level.
func (s *State) Tied() bool {
	return s.Score.Blue == s.Score.Red
}

// Player returns the piece with the given id.
func (s *State) Player(id string) (*board.Player, bool) {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i], true
		}
	}
	return nil, false
}

func (s *State) playerAt(p board.Position) (*board.Player, bool) {
	for i := range s.Players {
		if s.Players[i].Position == p {
			return &s.Players[i], true
		}
	}
	return nil, false
}

// teammatesAt returns the pieces of team touching cell p.
func (s *State) teammatesAt(team board.Team, p board.Position) []*board.Player {
	var out []*board.Player
	for i := range s.Players {
		pl := &s.Players[i]
		if pl.Team == team && board.Adjacent(pl.Position, p) {
			out = append(out, pl)
		}
	}
	return out
}
