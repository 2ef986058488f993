package engine

import (
	"fookiki/internal/apperr"
	"fookiki/internal/board"
	"fookiki/internal/movement"
)

// Rejection reasons. All are validation errors; a rejected operation leaves
// the state as it was unless noted.
var (
	ErrGameOver      = apperr.Validation("match is over")
	ErrWrongPhase    = apperr.Validation("not allowed in this phase")
	ErrBallMustMove  = apperr.Validation("the ball must move")
	ErrBallHeld      = apperr.Validation("the ball is selected")
	ErrUnknownPlayer = apperr.Validation("unknown player")
	ErrNotYourPlayer = apperr.Validation("not your player")
	ErrNoTeammate    = apperr.Validation("no teammate next to the ball")
	ErrIllegalMove   = apperr.Validation("not a legal destination")
	ErrOccupied      = apperr.Validation("cell occupied")
	ErrBlocked       = apperr.Validation("path blocked by an opponent")
	ErrNothingToUndo = apperr.Validation("nothing to undo")
)

// Outcome describes what a ball move caused.
type Outcome struct {
	Goal         bool       `json:"goal"`
	Scorer       board.Team `json:"scorer,omitempty"`
	CaptainBonus bool       `json:"captainBonus"`
	TurnEnded    bool       `json:"turnEnded"`
	GameOver     bool       `json:"gameOver"`
}

// mustMoveBall reports whether the team on turn is only allowed to play the
// ball: at kickoff and during the captain's extra touch.
func (s *State) mustMoveBall() bool {
	return s.FirstMove || s.CaptainBonusActive
}

// SelectPlayer picks a piece of the team on turn and computes where it may go.
func (s *State) SelectPlayer(id string) error {
	switch {
	case s.Phase == GameOver:
		return ErrGameOver
	case s.mustMoveBall():
		return ErrBallMustMove
	case s.BallChosen:
		return ErrBallHeld
	}
	p, ok := s.Player(id)
	if !ok {
		return ErrUnknownPlayer
	}
	if p.Team != s.CurrentTeam {
		return ErrNotYourPlayer
	}
	s.Selected = id
	s.BallChosen = false
	s.Phase = PlayerMovement
	s.ValidMoves = s.LegalPlayerMoves(id)
	return nil
}

// SelectBall switches to ball movement with the union of the kicks of every
// teammate touching the ball.
func (s *State) SelectBall() error {
	if s.Phase == GameOver {
		return ErrGameOver
	}
	if len(s.teammatesAt(s.CurrentTeam, s.Ball)) == 0 {
		return ErrNoTeammate
	}
	s.chooseBall()
	return nil
}

func (s *State) chooseBall() {
	s.Selected = ""
	s.BallChosen = true
	s.Phase = BallMovement
	s.ValidMoves = s.LegalBallMoves()
}

// Deselect drops the current selection without changing the turn.
func (s *State) Deselect() error {
	switch {
	case s.Phase == GameOver:
		return ErrGameOver
	case s.mustMoveBall():
		return ErrBallMustMove
	}
	s.clearSelection()
	return nil
}

func (s *State) clearSelection() {
	s.Selected = ""
	s.BallChosen = false
	s.ValidMoves = nil
	s.Phase = PlayerSelection
}

// LegalPlayerMoves lists the free field cells the piece may step to.
func (s *State) LegalPlayerMoves(id string) []board.Position {
	p, ok := s.Player(id)
	if !ok {
		return nil
	}
	var out []board.Position
	for _, c := range movement.PieceMoves(p.Role, p.Position) {
		if !c.OnField() || c == s.Ball {
			continue
		}
		if _, taken := s.playerAt(c); taken {
			continue
		}
		out = append(out, c)
	}
	return out
}

// LegalBallMoves lists every cell the team on turn can send the ball to.
func (s *State) LegalBallMoves() []board.Position {
	seen := map[board.Position]bool{}
	var out []board.Position
	for _, p := range s.teammatesAt(s.CurrentTeam, s.Ball) {
		for _, c := range s.kicks(p) {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

func (s *State) kicks(p *board.Player) []board.Position {
	opp := s.opponentAt(p.Team)
	var out []board.Position
	for _, c := range movement.BallMoves(p.Role, s.Ball) {
		if !c.InBounds() {
			continue
		}
		if _, taken := s.playerAt(c); taken {
			continue
		}
		if movement.PathBlocked(p.Role, s.Ball, c, opp) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (s *State) opponentAt(team board.Team) movement.OpponentAt {
	return func(c board.Position) (board.Role, bool) {
		p, ok := s.playerAt(c)
		if !ok || p.Team == team {
			return "", false
		}
		return p.Role, true
	}
}

func contains(cells []board.Position, c board.Position) bool {
	for _, x := range cells {
		if x == c {
			return true
		}
	}
	return false
}

// MovePlayer moves the selected piece and ends the turn.
func (s *State) MovePlayer(to board.Position) error {
	if s.Phase == GameOver {
		return ErrGameOver
	}
	if s.Phase != PlayerMovement {
		return ErrWrongPhase
	}
	if !contains(s.ValidMoves, to) {
		return ErrIllegalMove
	}
	if _, taken := s.playerAt(to); taken || to == s.Ball {
		return ErrOccupied
	}
	p, _ := s.Player(s.Selected)
	s.History = append(s.History, s.entry(ActionMove, p.ID, p.Position, to))
	p.Position = to
	s.Stats.of(s.CurrentTeam).Moves++
	s.endTurn()
	return nil
}

// MoveBall kicks the ball to a legal cell. A goal resets the board, or ends
// the match if a score rule is met; a pass from the captain may grant one
// extra ball move; otherwise the turn ends.
func (s *State) MoveBall(to board.Position) (Outcome, error) {
	if s.Phase == GameOver {
		return Outcome{}, ErrGameOver
	}
	if s.Phase != BallMovement {
		return Outcome{}, ErrWrongPhase
	}
	if !contains(s.ValidMoves, to) {
		if s.kickBlocked(to) {
			s.dropSelection()
			return Outcome{}, ErrBlocked
		}
		return Outcome{}, ErrIllegalMove
	}
	kicker := s.kicker(to)
	if kicker == nil {
		return Outcome{}, ErrIllegalMove
	}

	e := s.entry(ActionBallMove, kicker.ID, s.Ball, to)
	from := s.Ball
	kickoff := s.FirstMove
	s.Ball = to
	s.FirstMove = false
	s.Stats.of(s.CurrentTeam).Passes++

	if scorer, ok := board.ScoringTeam(to); ok {
		e.GoalScored = true
		e.Scorer = scorer
		e.Positions = s.positions()
		s.History = append(s.History, e)
		return s.goal(scorer), nil
	}
	s.History = append(s.History, e)

	if !kickoff && s.captainTouch(from, to) {
		s.CaptainBonusUsed = true
		s.CaptainBonusActive = true
		s.chooseBall()
		return Outcome{CaptainBonus: true}, nil
	}
	s.endTurn()
	return Outcome{TurnEnded: true}, nil
}

// kicker returns the teammate touching the ball that can legally reach to.
func (s *State) kicker(to board.Position) *board.Player {
	for _, p := range s.teammatesAt(s.CurrentTeam, s.Ball) {
		if contains(s.kicks(p), to) {
			return p
		}
	}
	return nil
}

// kickBlocked reports whether to is within a kicker's range but every
// kicker in range is stopped by an opponent it cannot pass, on the way or
// on to itself.
func (s *State) kickBlocked(to board.Position) bool {
	if !to.InBounds() {
		return false
	}
	blocked := false
	for _, p := range s.teammatesAt(s.CurrentTeam, s.Ball) {
		if !contains(movement.BallMoves(p.Role, s.Ball), to) {
			continue
		}
		if !movement.PathBlocked(p.Role, s.Ball, to, s.opponentAt(p.Team)) {
			return false
		}
		blocked = true
	}
	return blocked
}

// dropSelection clears the selection after a refused kick. When the ball
// has to move the ball stays selected.
func (s *State) dropSelection() {
	if s.mustMoveBall() {
		s.chooseBall()
		return
	}
	s.clearSelection()
}

// captainTouch reports whether a pass from from to to earns the captain's
// extra touch this turn.
func (s *State) captainTouch(from, to board.Position) bool {
	if s.CaptainBonusUsed {
		return false
	}
	fromCaptain := false
	for _, p := range s.teammatesAt(s.CurrentTeam, from) {
		if p.IsCaptain {
			fromCaptain = true
		}
	}
	if !fromCaptain {
		return false
	}
	receivers := s.teammatesAt(s.CurrentTeam, to)
	if len(receivers) == 0 {
		return false
	}
	for _, p := range receivers {
		if p.IsCaptain {
			return false
		}
	}
	return true
}

func (s *State) goal(scorer board.Team) Outcome {
	s.Score.add(scorer, 1)
	s.Stats.of(scorer).Goals++
	out := Outcome{Goal: true, Scorer: scorer, TurnEnded: true}
	if s.Rules.decided(s.Score) {
		s.finish(scorer, EndScore)
		out.GameOver = true
		return out
	}
	for i := range s.Players {
		s.Players[i].Position = s.Players[i].InitialPosition
	}
	s.Ball = s.Kickoff
	s.CurrentTeam = scorer.Opponent()
	s.FirstMove = true
	s.CaptainBonusUsed = false
	s.CaptainBonusActive = false
	s.Turn++
	s.chooseBall()
	return out
}

func (s *State) positions() map[string]board.Position {
	out := make(map[string]board.Position, len(s.Players))
	for _, p := range s.Players {
		out[p.ID] = p.Position
	}
	return out
}

func (s *State) entry(a Action, playerID string, from, to board.Position) HistoryEntry {
	return HistoryEntry{
		Turn:               s.Turn,
		Action:             a,
		Team:               s.CurrentTeam,
		PlayerID:           playerID,
		From:               from,
		To:                 to,
		FirstMove:          s.FirstMove,
		CaptainBonusUsed:   s.CaptainBonusUsed,
		CaptainBonusActive: s.CaptainBonusActive,
	}
}

func (s *State) endTurn() {
	s.CurrentTeam = s.CurrentTeam.Opponent()
	s.CaptainBonusUsed = false
	s.CaptainBonusActive = false
	s.Turn++
	s.clearSelection()
}

// EndTurn passes the turn to the other team, as a pass or a turn timer
// expiry does. A pending kickoff goes to the other team with it.
func (s *State) EndTurn() error {
	if s.Phase == GameOver {
		return ErrGameOver
	}
	if s.FirstMove {
		s.CurrentTeam = s.CurrentTeam.Opponent()
		s.Turn++
		s.chooseBall()
		return nil
	}
	s.endTurn()
	return nil
}

// Undo reverses the last recorded move, including any goal it scored, and
// gives the turn back to the team that made it. Matches ended by the clock
// or by forfeit cannot be undone.
func (s *State) Undo() error {
	if s.Phase == GameOver && s.EndReason != EndScore {
		return ErrGameOver
	}
	if len(s.History) == 0 {
		return ErrNothingToUndo
	}
	e := s.History[len(s.History)-1]
	s.History = s.History[:len(s.History)-1]

	stats := s.Stats.of(e.Team)
	switch e.Action {
	case ActionMove:
		if p, ok := s.Player(e.PlayerID); ok {
			p.Position = e.From
		}
		stats.Moves--
	case ActionBallMove:
		if e.GoalScored {
			s.Score.add(e.Scorer, -1)
			s.Stats.of(e.Scorer).Goals--
			for i := range s.Players {
				if pos, ok := e.Positions[s.Players[i].ID]; ok {
					s.Players[i].Position = pos
				}
			}
			s.Winner = ""
			s.EndReason = ""
		}
		s.Ball = e.From
		stats.Passes--
	}

	s.CurrentTeam = e.Team
	s.Turn = e.Turn
	s.FirstMove = e.FirstMove
	s.CaptainBonusUsed = e.CaptainBonusUsed
	s.CaptainBonusActive = e.CaptainBonusActive
	if s.mustMoveBall() {
		s.chooseBall()
	} else {
		s.clearSelection()
	}
	return nil
}

// LastMover returns the team that made the move Undo would reverse.
func (s *State) LastMover() (board.Team, bool) {
	if len(s.History) == 0 {
		return "", false
	}
	return s.History[len(s.History)-1].Team, true
}

// Finish ends the match when the clock runs out: the higher score wins and
// a level score is a draw. Finishing a finished match does nothing.
func (s *State) Finish() {
	if s.Phase == GameOver {
		return
	}
	s.finish(s.Score.Leader(), EndClock)
}

// Forfeit ends the match in favour of loser's opponent.
func (s *State) Forfeit(loser board.Team) {
	if s.Phase == GameOver {
		return
	}
	s.finish(loser.Opponent(), EndForfeit)
}

func (s *State) finish(winner board.Team, reason EndReason) {
	s.Winner = winner
	s.EndReason = reason
	s.CaptainBonusActive = false
	s.clearSelection()
	s.Phase = GameOver
}
