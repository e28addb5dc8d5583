package timing

import (
	"context"
	"fmt"
	"sort"

	"github.com/pitwall-bot/pitwall/internal/openf1"
)

// LiveTiming is a finished leaderboard snapshot. Only the maps of the
// steps that ran are non-nil.
type LiveTiming struct {
	DriverNumbers []int              `json:"driver_numbers"`
	DriverNames   map[int]string     `json:"driver_names"`
	DriverColors  map[int]string     `json:"driver_colors"`
	TeamNames     map[int]string     `json:"team_names"`
	Positions     map[int]int        `json:"positions,omitempty"`
	Intervals     map[int]openf1.Gap `json:"intervals,omitempty"`
	GapsToLeader  map[int]openf1.Gap `json:"gaps_to_leader,omitempty"`
	PitStops      map[int]int        `json:"pit_stops,omitempty"`
	TyreCompounds map[int]string     `json:"tyre_compounds,omitempty"`
	TyreAges      map[int]int        `json:"tyre_ages,omitempty"`
}

// Row is one driver's line of the leaderboard. Optional columns are nil
// when their step did not run or upstream had nothing for the driver.
type Row struct {
	Position     int         `json:"position,omitempty"`
	DriverNumber int         `json:"driver_number"`
	Name         string      `json:"name"`
	Color        string      `json:"color"`
	Team         string      `json:"team"`
	Interval     *openf1.Gap `json:"interval,omitempty"`
	GapToLeader  *openf1.Gap `json:"gap_to_leader,omitempty"`
	PitStops     *int        `json:"pit_stops,omitempty"`
	TyreCompound string      `json:"tyre_compound,omitempty"`
	TyreAge      *int        `json:"tyre_age,omitempty"`
}

// Rows returns one row per driver in running order. Drivers without a
// known position come last, by driver number.
func (lt LiveTiming) Rows() []Row {
	rows := make([]Row, 0, len(lt.DriverNumbers))
	for _, n := range lt.DriverNumbers {
		row := Row{
			Position:     lt.Positions[n],
			DriverNumber: n,
			Name:         lt.DriverNames[n],
			Color:        lt.DriverColors[n],
			Team:         lt.TeamNames[n],
			TyreCompound: lt.TyreCompounds[n],
		}
		if gap, ok := lt.Intervals[n]; ok {
			row.Interval = &gap
		}
		if gap, ok := lt.GapsToLeader[n]; ok {
			row.GapToLeader = &gap
		}
		if lt.PitStops != nil {
			stops := lt.PitStops[n]
			row.PitStops = &stops
		}
		if age, ok := lt.TyreAges[n]; ok {
			row.TyreAge = &age
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		switch {
		case a.Position == 0 && b.Position == 0:
			return a.DriverNumber < b.DriverNumber
		case a.Position == 0:
			return false
		case b.Position == 0:
			return true
		default:
			return a.Position < b.Position
		}
	})
	return rows
}

type liveDrivers struct {
	numbers []int
	names   map[int]string
	colors  map[int]string
	teams   map[int]string
}

// LiveTimingBuilder assembles a LiveTiming. Every add step is independent
// of the others; all but AddDrivers need the resolved session.
type LiveTimingBuilder struct {
	session

	drivers      *liveDrivers
	positions    map[int]int
	intervals    map[int]openf1.Gap
	gapsToLeader map[int]openf1.Gap
	pitStops     map[int]int
	compounds    map[int]string
	tyreAges     map[int]int
}

// NewLiveTiming returns a builder for one session
func NewLiveTiming(src Source, year int, location, sessionName string) *LiveTimingBuilder {
	return &LiveTimingBuilder{
		session: session{
			src:         src,
			year:        year,
			location:    location,
			sessionName: sessionName,
		},
	}
}

// AddDrivers fills the roster: numbers, names, colours and teams
func (b *LiveTimingBuilder) AddDrivers(ctx context.Context) error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	roster, err := b.src.Drivers(ctx, b.year, b.location, b.sessionName)
	if err != nil {
		return fmt.Errorf("loading drivers: %w", err)
	}

	d := liveDrivers{
		numbers: make([]int, 0, len(roster)),
		names:   make(map[int]string, len(roster)),
		colors:  make(map[int]string, len(roster)),
		teams:   make(map[int]string, len(roster)),
	}
	for _, driver := range roster {
		n := driver.DriverNumber
		if _, seen := d.names[n]; !seen {
			d.numbers = append(d.numbers, n)
		}
		d.names[n] = driver.NameAcronym
		d.colors[n] = teamColor(driver)
		d.teams[n] = driver.TeamName
	}
	b.drivers = &d
	return nil
}

// AddPositions keeps the latest position reported for each driver
func (b *LiveTimingBuilder) AddPositions(ctx context.Context) error {
	if err := b.checkResolved(); err != nil {
		return err
	}

	records, err := b.src.Positions(ctx, b.key)
	if err != nil {
		return fmt.Errorf("loading positions: %w", err)
	}

	positions := make(map[int]int)
	for _, p := range records {
		positions[p.DriverNumber] = p.Position
	}
	b.positions = positions
	return nil
}

// AddIntervals keeps the latest interval and gap to leader for each driver
func (b *LiveTimingBuilder) AddIntervals(ctx context.Context) error {
	if err := b.checkResolved(); err != nil {
		return err
	}

	records, err := b.src.Intervals(ctx, b.key, 0)
	if err != nil {
		return fmt.Errorf("loading intervals: %w", err)
	}

	intervals := make(map[int]openf1.Gap)
	gaps := make(map[int]openf1.Gap)
	for _, iv := range records {
		intervals[iv.DriverNumber] = iv.Interval
		gaps[iv.DriverNumber] = iv.GapToLeader
	}
	b.intervals, b.gapsToLeader = intervals, gaps
	return nil
}

// AddPitStops counts pit lane visits per driver
func (b *LiveTimingBuilder) AddPitStops(ctx context.Context) error {
	if err := b.checkResolved(); err != nil {
		return err
	}

	records, err := b.src.PitStops(ctx, b.key)
	if err != nil {
		return fmt.Errorf("loading pit stops: %w", err)
	}

	stops := make(map[int]int)
	for _, p := range records {
		stops[p.DriverNumber]++
	}
	b.pitStops = stops
	return nil
}

// AddTyres keeps the compound and age of each driver's most recent stint
func (b *LiveTimingBuilder) AddTyres(ctx context.Context) error {
	if err := b.checkResolved(); err != nil {
		return err
	}

	stints, err := b.src.Stints(ctx, b.key)
	if err != nil {
		return fmt.Errorf("loading stints: %w", err)
	}

	compounds := make(map[int]string)
	ages := make(map[int]int)
	for _, s := range stints {
		compounds[s.DriverNumber] = s.Compound
		ages[s.DriverNumber] = s.TyreAge()
	}
	b.compounds, b.tyreAges = compounds, ages
	return nil
}

// Build returns the finished snapshot. Only AddDrivers is required.
func (b *LiveTimingBuilder) Build() (LiveTiming, error) {
	if err := b.checkOpen(); err != nil {
		return LiveTiming{}, err
	}
	if b.drivers == nil {
		return LiveTiming{}, fmt.Errorf("%w: drivers not added", ErrIncomplete)
	}
	if err := b.finish(); err != nil {
		return LiveTiming{}, err
	}

	return LiveTiming{
		DriverNumbers: b.drivers.numbers,
		DriverNames:   b.drivers.names,
		DriverColors:  b.drivers.colors,
		TeamNames:     b.drivers.teams,
		Positions:     b.positions,
		Intervals:     b.intervals,
		GapsToLeader:  b.gapsToLeader,
		PitStops:      b.pitStops,
		TyreCompounds: b.compounds,
		TyreAges:      b.tyreAges,
	}, nil
}
