package timing

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/pitwall-bot/pitwall/internal/openf1"
	"github.com/pitwall-bot/pitwall/internal/store"

	"github.com/sirupsen/logrus"
)

// MaxComparisonLaps bounds the lap window of a comparison
const MaxComparisonLaps = 5

// Comparison is a finished head-to-head snapshot of two drivers.
//
// Index 0 is driver 1. LapTimes[0] and SectorTimes[0] hold driver 1's
// absolute durations; LapTimes[1] and SectorTimes[1] hold driver 2 minus
// driver 1 for the same lap.
type Comparison struct {
	DriverNumbers   [2]int       `json:"driver_numbers"`
	DriverNames     [2]string    `json:"driver_names"`
	DriverColors    [2]string    `json:"driver_colors"`
	Laps            []int        `json:"laps"`
	LapTimes        [2][]Cell    `json:"lap_times"`
	SectorTimes     [2][][3]Cell `json:"sector_times"`
	CurrentInterval Cell         `json:"current_interval"`
}

// IntervalSummary phrases the current interval for humans.
// A positive interval means driver 2 is further from the leader, i.e. behind driver 1.
func (c Comparison) IntervalSummary() string {
	first, second := c.displayName(0), c.displayName(1)
	if !c.CurrentInterval.Valid {
		return fmt.Sprintf("Interval between %s and %s is not available", second, first)
	}

	gap := c.CurrentInterval.Value
	switch {
	case gap > 0:
		return fmt.Sprintf("%s is %.3f seconds behind %s", second, gap, first)
	case gap < 0:
		return fmt.Sprintf("%s is %.3f seconds ahead of %s", second, math.Abs(gap), first)
	default:
		return fmt.Sprintf("%s is level with %s", second, first)
	}
}

func (c Comparison) displayName(i int) string {
	if c.DriverNames[i] != "" {
		return c.DriverNames[i]
	}
	return fmt.Sprintf("#%d", c.DriverNumbers[i])
}

type comparisonDrivers struct {
	names  [2]string
	colors [2]string
}

type comparisonLaps struct {
	laps        []int
	lapTimes    [2][]Cell
	sectorTimes [2][][3]Cell
}

// ComparisonBuilder assembles a Comparison. AddDrivers, AddLaps and
// AddInterval are independent and may run concurrently once the session
// is resolved; each writes only its own part.
type ComparisonBuilder struct {
	session
	driver1 int
	driver2 int

	drivers  *comparisonDrivers
	laps     *comparisonLaps
	interval *Cell
}

// NewComparison returns a builder for two distinct drivers of one session
func NewComparison(src Source, year int, location, sessionName string, driver1, driver2 int) (*ComparisonBuilder, error) {
	if driver1 <= 0 {
		return nil, &ValidationError{Field: "driver1", Reason: "must be a positive driver number"}
	}
	if driver2 <= 0 {
		return nil, &ValidationError{Field: "driver2", Reason: "must be a positive driver number"}
	}
	if driver1 == driver2 {
		return nil, &ValidationError{Field: "driver2", Reason: "must differ from driver1"}
	}

	return &ComparisonBuilder{
		session: session{
			src:         src,
			year:        year,
			location:    location,
			sessionName: sessionName,
		},
		driver1: driver1,
		driver2: driver2,
	}, nil
}

// AddDrivers fills names and team colours from the session roster.
// A driver missing from the roster keeps an empty name and colour.
func (b *ComparisonBuilder) AddDrivers(ctx context.Context) error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	roster, err := b.src.Drivers(ctx, b.year, b.location, b.sessionName)
	if err != nil {
		return fmt.Errorf("loading drivers: %w", err)
	}

	var d comparisonDrivers
	for _, driver := range roster {
		switch driver.DriverNumber {
		case b.driver1:
			d.names[0], d.colors[0] = driver.NameAcronym, teamColor(driver)
		case b.driver2:
			d.names[1], d.colors[1] = driver.NameAcronym, teamColor(driver)
		}
	}
	b.drivers = &d
	return nil
}

// AddLaps compares the most recent numLaps laps both drivers have completed.
//
// Laps are paired by lap number; a lap recorded for only one driver is
// skipped. The trailing numLaps pairs are kept.
func (b *ComparisonBuilder) AddLaps(ctx context.Context, numLaps int) error {
	if numLaps <= 0 {
		return &ValidationError{Field: "num_laps", Reason: "must be positive"}
	}
	if err := b.checkResolved(); err != nil {
		return err
	}

	all, err := b.src.Laps(ctx, b.key)
	if err != nil {
		return fmt.Errorf("loading laps: %w", err)
	}

	var first, second []openf1.Lap
	for _, lap := range all {
		switch lap.DriverNumber {
		case b.driver1:
			first = append(first, lap)
		case b.driver2:
			second = append(second, lap)
		}
	}
	sortLaps(first)
	sortLaps(second)
	first, second = lapWindow(first, second, numLaps)

	l := comparisonLaps{
		laps:        make([]int, 0, len(first)),
		lapTimes:    [2][]Cell{{}, {}},
		sectorTimes: [2][][3]Cell{{}, {}},
	}
	for i := range first {
		a, z := first[i], second[i]
		l.laps = append(l.laps, a.LapNumber)

		l.lapTimes[0] = append(l.lapTimes[0], cellOf(a.LapDuration))
		l.lapTimes[1] = append(l.lapTimes[1], delta(z.LapDuration, a.LapDuration))

		as, zs := a.Sectors(), z.Sectors()
		l.sectorTimes[0] = append(l.sectorTimes[0], [3]Cell{cellOf(as[0]), cellOf(as[1]), cellOf(as[2])})
		l.sectorTimes[1] = append(l.sectorTimes[1], sectorDeltas(zs, as))
	}

	logrus.Debugf("Compared %d laps of drivers %d and %d in session %d", len(l.laps), b.driver1, b.driver2, b.key)
	b.laps = &l
	return nil
}

// AddInterval computes driver 2's gap to leader minus driver 1's, from the
// latest interval record of each. A driver without any record counts as 0.
func (b *ComparisonBuilder) AddInterval(ctx context.Context) error {
	if err := b.checkResolved(); err != nil {
		return err
	}

	intervals, err := b.src.Intervals(ctx, b.key, 0)
	if err != nil {
		return fmt.Errorf("loading intervals: %w", err)
	}

	zero := 0.0
	gaps := [2]*float64{&zero, &zero}
	for _, iv := range intervals {
		switch iv.DriverNumber {
		case b.driver1:
			gaps[0] = iv.GapToLeader.Seconds
		case b.driver2:
			gaps[1] = iv.GapToLeader.Seconds
		}
	}

	interval := delta(gaps[1], gaps[0])
	b.interval = &interval
	return nil
}

// Build returns the finished snapshot. All three add steps must have completed.
func (b *ComparisonBuilder) Build() (Comparison, error) {
	if err := b.checkOpen(); err != nil {
		return Comparison{}, err
	}
	switch {
	case b.drivers == nil:
		return Comparison{}, fmt.Errorf("%w: drivers not added", ErrIncomplete)
	case b.laps == nil:
		return Comparison{}, fmt.Errorf("%w: laps not added", ErrIncomplete)
	case b.interval == nil:
		return Comparison{}, fmt.Errorf("%w: interval not added", ErrIncomplete)
	}
	if err := b.finish(); err != nil {
		return Comparison{}, err
	}

	return Comparison{
		DriverNumbers:   [2]int{b.driver1, b.driver2},
		DriverNames:     b.drivers.names,
		DriverColors:    b.drivers.colors,
		Laps:            b.laps.laps,
		LapTimes:        b.laps.lapTimes,
		SectorTimes:     b.laps.sectorTimes,
		CurrentInterval: *b.interval,
	}, nil
}

// lapWindow pairs the laps both drivers completed, by lap number, and keeps
// the trailing n pairs. Both inputs must be sorted by lap number.
func lapWindow(first, second []openf1.Lap, n int) ([]openf1.Lap, []openf1.Lap) {
	byNumber := make(map[int]openf1.Lap, len(second))
	for _, lap := range second {
		if _, seen := byNumber[lap.LapNumber]; !seen {
			byNumber[lap.LapNumber] = lap
		}
	}

	var a, z []openf1.Lap
	for i, lap := range first {
		if i > 0 && first[i-1].LapNumber == lap.LapNumber {
			continue
		}
		if other, ok := byNumber[lap.LapNumber]; ok {
			a = append(a, lap)
			z = append(z, other)
		}
	}

	start := max(0, len(a)-n)
	return a[start:], z[start:]
}

func sortLaps(laps []openf1.Lap) {
	sort.SliceStable(laps, func(i, j int) bool {
		return laps[i].LapNumber < laps[j].LapNumber
	})
}

// sectorDeltas is all-or-nothing: one untimed sector voids the whole lap
func sectorDeltas(later, earlier [3]*float64) [3]Cell {
	var out [3]Cell
	for i := range out {
		out[i] = delta(later[i], earlier[i])
		if !out[i].Valid {
			return [3]Cell{NotAvailable, NotAvailable, NotAvailable}
		}
	}
	return out
}

func teamColor(d store.Driver) string {
	if d.TeamColour == "" {
		return ""
	}
	return "#" + d.TeamColour
}
