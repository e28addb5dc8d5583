package timing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultSessionName is used when a request leaves the session name empty
const DefaultSessionName = "Race"

// Extra names an optional live-timing column group
type Extra string

const (
	ExtraIntervals Extra = "intervals"
	ExtraPitStops  Extra = "pit_stops"
	ExtraTyres     Extra = "tyres"
)

// Extras lists every known extra in display order
var Extras = []Extra{ExtraIntervals, ExtraPitStops, ExtraTyres}

// ParseExtras accepts extra names, ignoring blanks and duplicates
func ParseExtras(names []string) ([]Extra, error) {
	var out []Extra
	seen := make(map[Extra]bool)
	for _, name := range names {
		e := Extra(strings.TrimSpace(strings.ToLower(name)))
		if e == "" || seen[e] {
			continue
		}
		switch e {
		case ExtraIntervals, ExtraPitStops, ExtraTyres:
		default:
			return nil, &ValidationError{Field: "extras", Reason: fmt.Sprintf("unknown extra %q", name)}
		}
		seen[e] = true
		out = append(out, e)
	}
	return out, nil
}

func validateSession(year int, location string) error {
	if year <= 0 {
		return &ValidationError{Field: "year", Reason: "must be positive"}
	}
	if strings.TrimSpace(location) == "" {
		return &ValidationError{Field: "location", Reason: "must not be empty"}
	}
	return nil
}

// LiveTimingRequest selects a session and the extras to show
type LiveTimingRequest struct {
	Year        int
	Location    string
	SessionName string
	Extras      []Extra
}

// Validate applies defaults and rejects unusable requests
func (r *LiveTimingRequest) Validate() error {
	if r.SessionName == "" {
		r.SessionName = DefaultSessionName
	}
	if err := validateSession(r.Year, r.Location); err != nil {
		return err
	}
	extras, err := ParseExtras(extraNames(r.Extras))
	if err != nil {
		return err
	}
	r.Extras = extras
	return nil
}

func extraNames(extras []Extra) []string {
	names := make([]string, len(extras))
	for i, e := range extras {
		names[i] = string(e)
	}
	return names
}

// BuildLiveTiming runs the whole live-timing aggregation. found is false
// when the session does not exist yet.
func BuildLiveTiming(ctx context.Context, src Source, req LiveTimingRequest) (LiveTiming, bool, error) {
	if err := req.Validate(); err != nil {
		return LiveTiming{}, false, err
	}

	t0 := time.Now()
	b := NewLiveTiming(src, req.Year, req.Location, req.SessionName)
	found, err := b.ResolveSession(ctx)
	if err != nil || !found {
		return LiveTiming{}, false, err
	}

	steps := []Step{b.AddDrivers, b.AddPositions}
	for _, e := range req.Extras {
		switch e {
		case ExtraIntervals:
			steps = append(steps, b.AddIntervals)
		case ExtraPitStops:
			steps = append(steps, b.AddPitStops)
		case ExtraTyres:
			steps = append(steps, b.AddTyres)
		}
	}
	if err := Gather(ctx, steps...); err != nil {
		return LiveTiming{}, true, fmt.Errorf("building live timing: %w", err)
	}

	lt, err := b.Build()
	if err != nil {
		return LiveTiming{}, true, err
	}
	logrus.WithFields(logrus.Fields{
		"session": b.SessionKey(),
		"drivers": len(lt.DriverNumbers),
		"elapsed": time.Since(t0),
	}).Info("Built live timing")
	return lt, true, nil
}

// ComparisonRequest selects a session, two drivers and a lap window
type ComparisonRequest struct {
	Year        int
	Location    string
	SessionName string
	Driver1     int
	Driver2     int
	NumLaps     int
}

// Validate applies defaults and rejects unusable requests
func (r *ComparisonRequest) Validate() error {
	if r.SessionName == "" {
		r.SessionName = DefaultSessionName
	}
	if err := validateSession(r.Year, r.Location); err != nil {
		return err
	}
	if r.NumLaps <= 0 || r.NumLaps > MaxComparisonLaps {
		return &ValidationError{Field: "num_laps", Reason: fmt.Sprintf("must be between 1 and %d", MaxComparisonLaps)}
	}
	return nil
}

// BuildComparison runs the whole head-to-head aggregation. Arguments are
// checked before anything is fetched. found is false when the session
// does not exist yet.
func BuildComparison(ctx context.Context, src Source, req ComparisonRequest) (Comparison, bool, error) {
	if err := req.Validate(); err != nil {
		return Comparison{}, false, err
	}
	b, err := NewComparison(src, req.Year, req.Location, req.SessionName, req.Driver1, req.Driver2)
	if err != nil {
		return Comparison{}, false, err
	}

	t0 := time.Now()
	found, err := b.ResolveSession(ctx)
	if err != nil || !found {
		return Comparison{}, false, err
	}

	err = Gather(ctx,
		b.AddDrivers,
		func(ctx context.Context) error { return b.AddLaps(ctx, req.NumLaps) },
		b.AddInterval,
	)
	if err != nil {
		return Comparison{}, true, fmt.Errorf("building comparison: %w", err)
	}

	c, err := b.Build()
	if err != nil {
		return Comparison{}, true, err
	}
	logrus.WithFields(logrus.Fields{
		"session": b.SessionKey(),
		"drivers": c.DriverNumbers,
		"laps":    len(c.Laps),
		"elapsed": time.Since(t0),
	}).Info("Built comparison")
	return c, true, nil
}
