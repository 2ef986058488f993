package room

import (
	"fookiki/internal/apperr"
	"fookiki/internal/board"
	"fookiki/internal/engine"
)

// ActionType names a move a member can send.
type ActionType string

const (
	ActSelectPlayer ActionType = "select_player"
	ActSelectBall   ActionType = "select_ball"
	ActDeselect     ActionType = "deselect"
	ActMovePlayer   ActionType = "move_player"
	ActMoveBall     ActionType = "move_ball"
	ActPass         ActionType = "pass"
	ActUndo         ActionType = "undo"
)

// Action is one request to change the game.
type Action struct {
	Type     ActionType      `json:"type"`
	PlayerID string          `json:"playerId,omitempty"`
	To       *board.Position `json:"to,omitempty"`
}

func (a Action) apply(g *engine.State) (engine.Outcome, error) {
	switch a.Type {
	case ActSelectPlayer:
		if a.PlayerID == "" {
			return engine.Outcome{}, apperr.Validation("select_player needs a playerId")
		}
		return engine.Outcome{}, g.SelectPlayer(a.PlayerID)
	case ActSelectBall:
		return engine.Outcome{}, g.SelectBall()
	case ActDeselect:
		return engine.Outcome{}, g.Deselect()
	case ActMovePlayer:
		if a.To == nil {
			return engine.Outcome{}, apperr.Validation("move_player needs a destination")
		}
		if err := g.MovePlayer(*a.To); err != nil {
			return engine.Outcome{}, err
		}
		return engine.Outcome{TurnEnded: true}, nil
	case ActMoveBall:
		if a.To == nil {
			return engine.Outcome{}, apperr.Validation("move_ball needs a destination")
		}
		return g.MoveBall(*a.To)
	case ActPass:
		if err := g.EndTurn(); err != nil {
			return engine.Outcome{}, err
		}
		return engine.Outcome{TurnEnded: true}, nil
	case ActUndo:
		return engine.Outcome{}, g.Undo()
	}
	return engine.Outcome{}, apperr.Validationf("unknown action %q", a.Type)
}
