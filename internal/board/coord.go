package board

import (
	"fmt"
	"strconv"
)

// ParsePosition converts board notation to a Position. The number is the
// 1-based row and the letter the column, so "3B" is row 2, column 1.
// Goal cells are written with row 0 and row 17, e.g. "0D" or "17G".
func ParsePosition(coord string) (Position, error) {
	if len(coord) < 2 {
		return Position{}, fmt.Errorf("coordinate %q too short", coord)
	}
	letter := coord[len(coord)-1]
	if letter < 'A' || letter >= 'A'+Cols {
		return Position{}, fmt.Errorf("coordinate %q: column %q out of range", coord, letter)
	}
	n, err := strconv.Atoi(coord[:len(coord)-1])
	if err != nil {
		return Position{}, fmt.Errorf("coordinate %q: invalid row: %w", coord, err)
	}
	p := Position{Row: n - 1, Col: int(letter - 'A')}
	if !p.InBounds() {
		return Position{}, fmt.Errorf("coordinate %q is off the board", coord)
	}
	return p, nil
}

// MustParse is ParsePosition for static tables.
func MustParse(coord string) Position {
	p, err := ParsePosition(coord)
	if err != nil {
		panic(err)
	}
	return p
}

// String renders p in board notation.
func (p Position) String() string {
	return strconv.Itoa(p.Row+1) + string(rune('A'+p.Col))
}
