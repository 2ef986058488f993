// Package board defines the pitch, the pieces and the starting formations.
//
// The playing field is 16 rows by 10 columns. Row -1 and row 16 are goal
// rows that only exist for columns 3..6. Blue defends the goal at row -1
// and red defends the goal at row 16.
package board

const (
	Rows = 16
	Cols = 10

	GoalColMin = 3
	GoalColMax = 6

	// BlueGoalRow is the goal blue defends; a ball entering it scores for red.
	BlueGoalRow = -1
	// RedGoalRow is the goal red defends; a ball entering it scores for blue.
	RedGoalRow = Rows
)

// Position is a cell on the board.
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// OnField reports whether p is a regular playing cell.
func (p Position) OnField() bool {
	return p.Row >= 0 && p.Row < Rows && p.Col >= 0 && p.Col < Cols
}

// IsGoal reports whether p is a goal cell.
func (p Position) IsGoal() bool {
	return (p.Row == BlueGoalRow || p.Row == RedGoalRow) && p.Col >= GoalColMin && p.Col <= GoalColMax
}

// InBounds reports whether the ball may occupy p.
func (p Position) InBounds() bool {
	return p.OnField() || p.IsGoal()
}

// Adjacent reports whether a and b touch, diagonals included.
func Adjacent(a, b Position) bool {
	dr, dc := a.Row-b.Row, a.Col-b.Col
	return a != b && dr >= -1 && dr <= 1 && dc >= -1 && dc <= 1
}

// ScoringTeam returns the team credited when the ball enters goal cell p.
func ScoringTeam(p Position) (Team, bool) {
	if !p.IsGoal() {
		return "", false
	}
	if p.Row == BlueGoalRow {
		return Red, true
	}
	return Blue, true
}

// Team is one of the two sides.
type Team string

const (
	Blue Team = "blue"
	Red  Team = "red"
)

// Opponent returns the other team.
func (t Team) Opponent() Team {
	if t == Blue {
		return Red
	}
	return Blue
}

func (t Team) Valid() bool { return t == Blue || t == Red }

// Role decides how a piece and the ball it touches may move.
type Role string

const (
	Goalkeeper Role = "G"
	Defender   Role = "D"
	Midfielder Role = "M"
	Forward    Role = "F"
)

// Roles lists every role in board order.
var Roles = []Role{Goalkeeper, Defender, Midfielder, Forward}

func (r Role) Valid() bool {
	switch r {
	case Goalkeeper, Defender, Midfielder, Forward:
		return true
	}
	return false
}

// Player is one piece on the board. Position changes as the match is
// played; InitialPosition is where the piece returns after a goal.
type Player struct {
	ID              string   `json:"id"`
	Team            Team     `json:"team"`
	Role            Role     `json:"role"`
	Position        Position `json:"position"`
	InitialPosition Position `json:"initialPosition"`
	IsCaptain       bool     `json:"isCaptain"`
}
