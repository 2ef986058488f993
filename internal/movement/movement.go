// Package movement holds the per-role geometry for pieces and for the ball
// and the matrix deciding which opponents a role may play past.
//
// Candidates are raw: bounds, occupancy and blocking are filtered by the
// engine, which knows the board.
package movement

import (
	"fookiki/internal/board"
)

// Rule is the reach of a role along each kind of straight line.
// A zero reach disables that line.
type Rule struct {
	Horizontal int `json:"horizontal"`
	Vertical   int `json:"vertical"`
	Diagonal   int `json:"diagonal"`
}

// Table maps each role to its rule.
type Table map[board.Role]Rule

// Ball is how far each role can kick the ball.
var Ball = Table{
	board.Goalkeeper: {Horizontal: 3, Vertical: 3},
	board.Defender:   {Horizontal: 2, Vertical: 2},
	board.Midfielder: {Diagonal: 2},
	board.Forward:    {Horizontal: 2, Vertical: 4},
}

// Piece is how far each role can step. It starts out equal to Ball and can
// be tuned on its own.
var Piece = Table{
	board.Goalkeeper: {Horizontal: 3, Vertical: 3},
	board.Defender:   {Horizontal: 2, Vertical: 2},
	board.Midfielder: {Diagonal: 2},
	board.Forward:    {Horizontal: 2, Vertical: 4},
}

type step struct{ dr, dc int }

var (
	vertical   = []step{{-1, 0}, {1, 0}}
	horizontal = []step{{0, -1}, {0, 1}}
	diagonal   = []step{{-1, -1}, {-1, 1}, {1, -1}, {1, 1}}
)

// Moves lists the raw candidate cells for role starting at from, nearest
// ring first. Unknown roles have no moves.
func (t Table) Moves(role board.Role, from board.Position) []board.Position {
	r, ok := t[role]
	if !ok {
		return nil
	}
	reach := max(r.Horizontal, r.Vertical, r.Diagonal)
	out := make([]board.Position, 0, 2*r.Horizontal+2*r.Vertical+4*r.Diagonal)
	for i := 1; i <= reach; i++ {
		if i <= r.Vertical {
			out = appendRing(out, from, vertical, i)
		}
		if i <= r.Horizontal {
			out = appendRing(out, from, horizontal, i)
		}
		if i <= r.Diagonal {
			out = appendRing(out, from, diagonal, i)
		}
	}
	return out
}

func appendRing(out []board.Position, from board.Position, steps []step, n int) []board.Position {
	for _, s := range steps {
		out = append(out, board.Position{Row: from.Row + s.dr*n, Col: from.Col + s.dc*n})
	}
	return out
}

// PieceMoves returns the raw step candidates for role.
func PieceMoves(role board.Role, from board.Position) []board.Position {
	return Piece.Moves(role, from)
}

// BallMoves returns the raw kick candidates for a role next to the ball at from.
func BallMoves(role board.Role, from board.Position) []board.Position {
	return Ball.Moves(role, from)
}

// passable[mover][blocker] reports whether the ball kicked by mover may
// travel through a cell held by an opposing blocker.
var passable = map[board.Role]map[board.Role]bool{
	board.Goalkeeper: {},
	board.Defender:   {board.Defender: true, board.Midfielder: true},
	board.Midfielder: {board.Goalkeeper: true, board.Defender: true, board.Midfielder: true, board.Forward: true},
	board.Forward:    {board.Midfielder: true},
}

// CanPass reports whether mover can play the ball past an opposing blocker.
func CanPass(mover, blocker board.Role) bool {
	return passable[mover][blocker]
}

// OpponentAt reports the role of the opponent standing on a cell, if any.
type OpponentAt func(board.Position) (board.Role, bool)

// PathBlocked walks the straight line from from to to, excluding from and
// including to, and reports whether an opponent on it cannot be passed.
// A to that is not on a straight line through from counts as blocked.
func PathBlocked(mover board.Role, from, to board.Position, opponentAt OpponentAt) bool {
	if !straight(from, to) {
		return true
	}
	dr, dc := sign(to.Row-from.Row), sign(to.Col-from.Col)
	cur := from
	for cur != to {
		cur = board.Position{Row: cur.Row + dr, Col: cur.Col + dc}
		if role, ok := opponentAt(cur); ok && !CanPass(mover, role) {
			return true
		}
	}
	return false
}

func straight(a, b board.Position) bool {
	dr, dc := abs(b.Row-a.Row), abs(b.Col-a.Col)
	return dr == 0 || dc == 0 || dr == dc
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}
