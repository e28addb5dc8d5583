package openf1

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Session is one timed on-track segment of a meeting, as listed by /sessions
type Session struct {
	SessionKey  int       `json:"session_key"`
	SessionName string    `json:"session_name"`
	SessionType string    `json:"session_type"`
	MeetingKey  int       `json:"meeting_key"`
	Location    string    `json:"location"`
	CountryName string    `json:"country_name"`
	Year        int       `json:"year"`
	DateStart   time.Time `json:"date_start"`
}

func (s Session) validate() error {
	if s.SessionKey == 0 {
		return errors.New("missing session_key")
	}
	return nil
}

// Driver is one entry of a session roster, as listed by /drivers
type Driver struct {
	SessionKey   int    `json:"session_key"`
	DriverNumber int    `json:"driver_number"`
	NameAcronym  string `json:"name_acronym"`
	FullName     string `json:"full_name"`
	TeamColour   string `json:"team_colour"`
	TeamName     string `json:"team_name"`
}

func (d Driver) validate() error {
	switch {
	case d.SessionKey == 0:
		return errors.New("missing session_key")
	case d.DriverNumber == 0:
		return errors.New("missing driver_number")
	case d.NameAcronym == "":
		return fmt.Errorf("driver %d: missing name_acronym", d.DriverNumber)
	}
	return nil
}

// Meeting is a race weekend, as listed by /meetings
type Meeting struct {
	MeetingKey       int       `json:"meeting_key"`
	MeetingName      string    `json:"meeting_name"`
	DateStart        time.Time `json:"date_start"`
	Location         string    `json:"location"`
	CountryName      string    `json:"country_name"`
	CircuitShortName string    `json:"circuit_short_name"`
	Year             int       `json:"year"`
}

func (m Meeting) validate() error {
	switch {
	case m.MeetingKey == 0:
		return errors.New("missing meeting_key")
	case m.MeetingName == "":
		return fmt.Errorf("meeting %d: missing meeting_name", m.MeetingKey)
	}
	return nil
}

// IsGrandPrix reports whether the meeting is a championship round rather than a test
func (m Meeting) IsGrandPrix() bool {
	return strings.Contains(m.MeetingName, "Grand Prix") && !strings.Contains(m.MeetingName, "Testing")
}

// Position is a change of running order for one driver
type Position struct {
	SessionKey   int       `json:"session_key"`
	DriverNumber int       `json:"driver_number"`
	Position     int       `json:"position"`
	Date         time.Time `json:"date"`
}

func (p Position) validate() error {
	switch {
	case p.DriverNumber == 0:
		return errors.New("missing driver_number")
	case p.Position == 0:
		return fmt.Errorf("driver %d: missing position", p.DriverNumber)
	}
	return nil
}

// Gap is a time delta that upstream reports either in seconds, as a lapped
// marker such as "+1 LAP", or as null.
type Gap struct {
	Seconds *float64 `json:"-"`
	Text    string   `json:"-"`
}

// Valid reports whether the gap carries a number of seconds
func (g Gap) Valid() bool {
	return g.Seconds != nil
}

func (g Gap) String() string {
	switch {
	case g.Seconds != nil:
		return fmt.Sprintf("%.3f", *g.Seconds)
	case g.Text != "":
		return g.Text
	default:
		return ""
	}
}

func (g *Gap) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*g = Gap{}
		return nil
	case len(data) > 0 && data[0] == '"':
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*g = Gap{Text: text}
		return nil
	default:
		var seconds float64
		if err := json.Unmarshal(data, &seconds); err != nil {
			return fmt.Errorf("gap is neither a number nor a string: %w", err)
		}
		*g = Gap{Seconds: &seconds}
		return nil
	}
}

func (g Gap) MarshalJSON() ([]byte, error) {
	switch {
	case g.Seconds != nil:
		return json.Marshal(*g.Seconds)
	case g.Text != "":
		return json.Marshal(g.Text)
	default:
		return []byte("null"), nil
	}
}

// Interval carries a driver's gap to the car ahead and to the leader
type Interval struct {
	SessionKey   int       `json:"session_key"`
	DriverNumber int       `json:"driver_number"`
	Interval     Gap       `json:"interval"`
	GapToLeader  Gap       `json:"gap_to_leader"`
	Date         time.Time `json:"date"`
}

func (i Interval) validate() error {
	if i.DriverNumber == 0 {
		return errors.New("missing driver_number")
	}
	return nil
}

// PitStop is one visit to the pit lane
type PitStop struct {
	SessionKey   int       `json:"session_key"`
	DriverNumber int       `json:"driver_number"`
	LapNumber    int       `json:"lap_number"`
	PitDuration  *float64  `json:"pit_duration"`
	Date         time.Time `json:"date"`
}

func (p PitStop) validate() error {
	if p.DriverNumber == 0 {
		return errors.New("missing driver_number")
	}
	return nil
}

// Stint is a continuous run on one set of tyres. LapEnd is null while the stint is running.
type Stint struct {
	SessionKey     int    `json:"session_key"`
	DriverNumber   int    `json:"driver_number"`
	StintNumber    int    `json:"stint_number"`
	Compound       string `json:"compound"`
	LapStart       *int   `json:"lap_start"`
	LapEnd         *int   `json:"lap_end"`
	TyreAgeAtStart *int   `json:"tyre_age_at_start"`
}

func (s Stint) validate() error {
	switch {
	case s.DriverNumber == 0:
		return errors.New("missing driver_number")
	case s.LapStart == nil:
		return fmt.Errorf("driver %d stint %d: missing lap_start", s.DriverNumber, s.StintNumber)
	case s.TyreAgeAtStart == nil:
		return fmt.Errorf("driver %d stint %d: missing tyre_age_at_start", s.DriverNumber, s.StintNumber)
	}
	return nil
}

// TyreAge is the age of the set at the end of the stint, or at its start
// while the stint is still running.
func (s Stint) TyreAge() int {
	end := *s.LapStart
	if s.LapEnd != nil {
		end = *s.LapEnd
	}
	return *s.TyreAgeAtStart + end - *s.LapStart
}

// Lap is one completed or in-progress lap. Durations are null when not timed.
type Lap struct {
	SessionKey      int       `json:"session_key"`
	DriverNumber    int       `json:"driver_number"`
	LapNumber       int       `json:"lap_number"`
	LapDuration     *float64  `json:"lap_duration"`
	DurationSector1 *float64  `json:"duration_sector_1"`
	DurationSector2 *float64  `json:"duration_sector_2"`
	DurationSector3 *float64  `json:"duration_sector_3"`
	IsPitOutLap     bool      `json:"is_pit_out_lap"`
	DateStart       time.Time `json:"date_start"`
}

// Sectors returns the three sector durations in order
func (l Lap) Sectors() [3]*float64 {
	return [3]*float64{l.DurationSector1, l.DurationSector2, l.DurationSector3}
}

func (l Lap) validate() error {
	switch {
	case l.DriverNumber == 0:
		return errors.New("missing driver_number")
	case l.LapNumber == 0:
		return fmt.Errorf("driver %d: missing lap_number", l.DriverNumber)
	}
	return nil
}
