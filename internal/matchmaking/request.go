// Package matchmaking pairs queued match requests into rooms, oldest first,
// among requests whose preferences agree.
package matchmaking

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"fookiki/internal/apperr"
	"fookiki/internal/room"
)

// Preferences is what a requester asks of a match. Each mode is its own
// variant; a zero field is unset.
type Preferences interface {
	Mode() room.Mode
	// Accepts reports whether a candidate's preferences satisfy these.
	// Unset fields here accept any value; unset fields on the candidate
	// only match unset fields here.
	Accepts(candidate Preferences) bool
	// apply copies the set fields into s without overwriting set ones.
	apply(s *room.Settings)
	validate() error
}

// Timed asks for a clocked match of Duration seconds.
type Timed struct {
	Duration int `json:"duration,omitempty"`
}

// Race asks for a first-to-GoalTarget match.
type Race struct {
	GoalTarget int `json:"goalTarget,omitempty"`
}

// Gap asks for a match won by a lead of GoalGap goals.
type Gap struct {
	GoalGap int `json:"goalGap,omitempty"`
}

// Infinite asks for a match with no clock and no score limit.
type Infinite struct{}

func (Timed) Mode() room.Mode    { return room.ModeTimed }
func (Race) Mode() room.Mode     { return room.ModeRace }
func (Gap) Mode() room.Mode      { return room.ModeGap }
func (Infinite) Mode() room.Mode { return room.ModeInfinite }

func (p Timed) Accepts(c Preferences) bool {
	o, ok := c.(Timed)
	return ok && (p.Duration == 0 || p.Duration == o.Duration)
}

func (p Race) Accepts(c Preferences) bool {
	o, ok := c.(Race)
	return ok && (p.GoalTarget == 0 || p.GoalTarget == o.GoalTarget)
}

func (p Gap) Accepts(c Preferences) bool {
	o, ok := c.(Gap)
	return ok && (p.GoalGap == 0 || p.GoalGap == o.GoalGap)
}

func (Infinite) Accepts(c Preferences) bool {
	_, ok := c.(Infinite)
	return ok
}

func fill(v *int, n int) {
	if *v == 0 {
		*v = n
	}
}

func (p Timed) apply(s *room.Settings) {
	s.Mode = room.ModeTimed
	fill(&s.Duration, p.Duration)
}

func (p Race) apply(s *room.Settings) {
	s.Mode = room.ModeRace
	fill(&s.GoalTarget, p.GoalTarget)
}

func (p Gap) apply(s *room.Settings) {
	s.Mode = room.ModeGap
	fill(&s.GoalGap, p.GoalGap)
}

func (Infinite) apply(s *room.Settings) { s.Mode = room.ModeInfinite }

func (p Timed) validate() error {
	if p.Duration < 0 {
		return apperr.Validation("duration must not be negative")
	}
	return nil
}

func (p Race) validate() error {
	if p.GoalTarget < 0 {
		return apperr.Validation("goalTarget must not be negative")
	}
	return nil
}

func (p Gap) validate() error {
	if p.GoalGap < 0 {
		return apperr.Validation("goalGap must not be negative")
	}
	return nil
}

func (Infinite) validate() error { return nil }

// Request is a queued ask for a match. Timestamp is in unix milliseconds;
// Matched latches once the request is claimed for a room.
type Request struct {
	ID          string
	UID         string
	Handle      string
	Preferences Preferences
	Timestamp   int64
	Matched     bool
}

// Validate rejects requests without a uid or a mode.
func (r Request) Validate() error {
	if r.UID == "" {
		return apperr.Validation("uid is required")
	}
	if r.Preferences == nil {
		return apperr.Validation("preferences.mode is required")
	}
	return r.Preferences.validate()
}

// RoomSettings derives room settings: r's preferences first, then the
// candidate's for fields r left unset, then defaults.
func RoomSettings(r, candidate Request, defaults room.Settings) room.Settings {
	var s room.Settings
	r.Preferences.apply(&s)
	if candidate.Preferences != nil && candidate.Preferences.Mode() == s.Mode {
		candidate.Preferences.apply(&s)
	}
	return s.WithDefaults(defaults)
}

// wirePreferences is the flat JSON form {"mode":"timed","duration":300}.
type wirePreferences struct {
	Mode       room.Mode `json:"mode"`
	Duration   int       `json:"duration,omitempty"`
	GoalTarget int       `json:"goalTarget,omitempty"`
	GoalGap    int       `json:"goalGap,omitempty"`
}

// EncodePreferences flattens p for the wire.
func EncodePreferences(p Preferences) ([]byte, error) {
	var w wirePreferences
	switch v := p.(type) {
	case Timed:
		w = wirePreferences{Mode: room.ModeTimed, Duration: v.Duration}
	case Race:
		w = wirePreferences{Mode: room.ModeRace, GoalTarget: v.GoalTarget}
	case Gap:
		w = wirePreferences{Mode: room.ModeGap, GoalGap: v.GoalGap}
	case Infinite:
		w = wirePreferences{Mode: room.ModeInfinite}
	case nil:
		return []byte("null"), nil
	default:
		return nil, eris.Errorf("unknown preferences %T", p)
	}
	return json.Marshal(w)
}

// DecodePreferences parses the wire form. A missing mode yields nil, which
// Validate rejects; an unknown mode is a validation error.
func DecodePreferences(data []byte) (Preferences, error) {
	var w wirePreferences
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, apperr.Validationf("preferences: %v", err)
	}
	switch w.Mode {
	case "":
		return nil, nil
	case room.ModeTimed:
		return Timed{Duration: w.Duration}, nil
	case room.ModeRace:
		return Race{GoalTarget: w.GoalTarget}, nil
	case room.ModeGap:
		return Gap{GoalGap: w.GoalGap}, nil
	case room.ModeInfinite:
		return Infinite{}, nil
	}
	return nil, apperr.Validationf("unknown mode %q", w.Mode)
}

type wireRequest struct {
	ID          string          `json:"id"`
	UID         string          `json:"uid"`
	Handle      string          `json:"handle,omitempty"`
	Preferences json.RawMessage `json:"preferences"`
	Timestamp   int64           `json:"timestamp"`
	Matched     bool            `json:"matched"`
}

func (r Request) MarshalJSON() ([]byte, error) {
	prefs, err := EncodePreferences(r.Preferences)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireRequest{
		ID: r.ID, UID: r.UID, Handle: r.Handle, Preferences: prefs,
		Timestamp: r.Timestamp, Matched: r.Matched,
	})
}

func (r *Request) UnmarshalJSON(data []byte) error {
	var w wireRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = Request{ID: w.ID, UID: w.UID, Handle: w.Handle, Timestamp: w.Timestamp, Matched: w.Matched}
	if len(w.Preferences) == 0 || string(w.Preferences) == "null" {
		return nil
	}
	prefs, err := DecodePreferences(w.Preferences)
	if err != nil {
		return err
	}
	r.Preferences = prefs
	return nil
}
