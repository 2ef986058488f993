package board

import (
	"errors"
	"fmt"
)

// Spot places one piece of a formation.
type Spot struct {
	Team      Team     `json:"team"`
	Role      Role     `json:"role"`
	Position  Position `json:"position"`
	Label     string   `json:"label"`
	IsCaptain bool     `json:"isCaptain"`
}

// Formation is a named starting layout for both teams plus the kickoff cell.
type Formation struct {
	Name    string   `json:"name"`
	Spots   []Spot   `json:"spots"`
	Kickoff Position `json:"kickoff"`
	Default bool     `json:"default,omitempty"`
}

// Validate checks that the layout can start a match.
func (f Formation) Validate() error {
	if f.Name == "" {
		return errors.New("formation has no name")
	}
	if !f.Kickoff.OnField() {
		return fmt.Errorf("formation %s: kickoff %s is off the field", f.Name, f.Kickoff)
	}
	taken := make(map[Position]bool, len(f.Spots))
	captains := map[Team]int{}
	kickers := map[Team]bool{}
	roles := map[Team]map[Role]bool{Blue: {}, Red: {}}
	for _, s := range f.Spots {
		if !s.Team.Valid() {
			return fmt.Errorf("formation %s: unknown team %q", f.Name, s.Team)
		}
		if !s.Role.Valid() {
			return fmt.Errorf("formation %s: unknown role %q", f.Name, s.Role)
		}
		if !s.Position.OnField() {
			return fmt.Errorf("formation %s: %s is off the field", f.Name, s.Position)
		}
		if s.Position == f.Kickoff {
			return fmt.Errorf("formation %s: %s holds the ball", f.Name, s.Position)
		}
		if taken[s.Position] {
			return fmt.Errorf("formation %s: %s used twice", f.Name, s.Position)
		}
		taken[s.Position] = true
		roles[s.Team][s.Role] = true
		if Adjacent(s.Position, f.Kickoff) {
			kickers[s.Team] = true
		}
		if s.IsCaptain {
			captains[s.Team]++
		}
	}
	for _, t := range []Team{Blue, Red} {
		if captains[t] != 1 {
			return fmt.Errorf("formation %s: team %s needs exactly one captain, has %d", f.Name, t, captains[t])
		}
		if !kickers[t] {
			return fmt.Errorf("formation %s: team %s has no piece next to the kickoff", f.Name, t)
		}
		for _, r := range Roles {
			if !roles[t][r] {
				return fmt.Errorf("formation %s: team %s has no %s", f.Name, t, r)
			}
		}
	}
	return nil
}

// Players creates the pieces of the formation in their starting cells.
func (f Formation) Players() []Player {
	players := make([]Player, 0, len(f.Spots))
	for _, s := range f.Spots {
		players = append(players, Player{
			ID:              fmt.Sprintf("%s-%s-%s", s.Team, s.Role, s.Position),
			Team:            s.Team,
			Role:            s.Role,
			Position:        s.Position,
			InitialPosition: s.Position,
			IsCaptain:       s.IsCaptain,
		})
	}
	return players
}

func spot(team Team, role Role, coord, label string) Spot {
	return Spot{Team: team, Role: role, Position: MustParse(coord), Label: label}
}

func captain(team Team, role Role, coord string) Spot {
	s := spot(team, role, coord, "Captain")
	s.IsCaptain = true
	return s
}

// Classic is the standard eleven-a-side layout.
var Classic = Formation{
	Name:    "classic",
	Default: true,
	Kickoff: MustParse("9E"),
	Spots: []Spot{
		spot(Blue, Goalkeeper, "1E", "Goalkeeper"),
		captain(Blue, Defender, "3B"),
		spot(Blue, Defender, "4I", "Right back"),
		spot(Blue, Defender, "5D", "Left center back"),
		spot(Blue, Defender, "6G", "Right center back"),
		spot(Blue, Midfielder, "6B", "Left mid"),
		spot(Blue, Midfielder, "6E", "Center mid"),
		spot(Blue, Midfielder, "7D", "Right mid"),
		spot(Blue, Midfielder, "8J", "Attacking mid"),
		spot(Blue, Forward, "8E", "Forward"),
		spot(Blue, Forward, "13E", "Second forward"),

		spot(Red, Goalkeeper, "16F", "Goalkeeper"),
		captain(Red, Defender, "13I"),
		spot(Red, Defender, "13B", "Right back"),
		spot(Red, Defender, "12G", "Left center back"),
		spot(Red, Defender, "11D", "Right center back"),
		spot(Red, Midfielder, "11F", "Left mid"),
		spot(Red, Midfielder, "11I", "Center mid"),
		spot(Red, Midfielder, "10G", "Right mid"),
		spot(Red, Midfielder, "9A", "Attacking mid"),
		spot(Red, Forward, "9F", "Forward"),
		spot(Red, Forward, "4F", "Second forward"),
	},
}
