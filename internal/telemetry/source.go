// Package telemetry serves OpenF1 data through the cache, falling back to
// the persistent store for rosters and event listings.
package telemetry

import (
	"context"
	"errors"
	"slices"

	"github.com/pitwall-bot/pitwall/internal/cache"
	"github.com/pitwall-bot/pitwall/internal/openf1"
	"github.com/pitwall-bot/pitwall/internal/store"

	"github.com/sirupsen/logrus"
)

// Upstream is the subset of the OpenF1 client the source needs
type Upstream interface {
	ResolveSession(ctx context.Context, year int, location, sessionName string) (int, bool, error)
	Drivers(ctx context.Context, sessionKey int) ([]openf1.Driver, error)
	GrandPrix(ctx context.Context, year int) ([]openf1.Meeting, error)
	Positions(ctx context.Context, sessionKey int) ([]openf1.Position, error)
	Intervals(ctx context.Context, sessionKey, driverNumber int) ([]openf1.Interval, error)
	PitStops(ctx context.Context, sessionKey int) ([]openf1.PitStop, error)
	Stints(ctx context.Context, sessionKey int) ([]openf1.Stint, error)
	Laps(ctx context.Context, sessionKey int) ([]openf1.Lap, error)
}

// results that must not be memoized: the data may exist on the next call
var (
	errSessionNotFound = errors.New("session not found")
	errNothingYet      = errors.New("no data yet")
)

// Source is the cached, persisted view of the upstream API
type Source struct {
	upstream  Upstream
	cache     *cache.Cache
	drivers   *store.DriverRepository
	locations *store.LocationRepository
	policies  Policies
}

func New(upstream Upstream, c *cache.Cache, drivers *store.DriverRepository, locations *store.LocationRepository, policies Policies) *Source {
	return &Source{
		upstream:  upstream,
		cache:     c,
		drivers:   drivers,
		locations: locations,
		policies:  policies,
	}
}

// ResolveSession maps (year, location, session name) to a session key.
// found is false while upstream does not know the session; that outcome is
// re-checked on every call.
func (s *Source) ResolveSession(ctx context.Context, year int, location, sessionName string) (int, bool, error) {
	key, err := cache.Fetch(ctx, s.cache, s.policies.Sessions, func(ctx context.Context) (int, error) {
		key, found, err := s.upstream.ResolveSession(ctx, year, location, sessionName)
		if err != nil {
			return 0, err
		}
		if !found {
			return 0, errSessionNotFound
		}
		return key, nil
	}, year, location, sessionName)

	if errors.Is(err, errSessionNotFound) {
		logrus.Infof("No session %d %s %s yet", year, location, sessionName)
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return key, true, nil
}

// Drivers returns the roster of a session, from the store when it was seen
// before, otherwise from upstream, persisting each driver.
// An unknown session or an empty roster yields an empty slice.
func (s *Source) Drivers(ctx context.Context, year int, location, sessionName string) ([]store.Driver, error) {
	drivers, err := cache.Fetch(ctx, s.cache, s.policies.Drivers, func(ctx context.Context) ([]store.Driver, error) {
		return s.loadDrivers(ctx, year, location, sessionName)
	}, year, location, sessionName)

	if errors.Is(err, errSessionNotFound) || errors.Is(err, errNothingYet) {
		return []store.Driver{}, nil
	}
	return drivers, err
}

func (s *Source) loadDrivers(ctx context.Context, year int, location, sessionName string) ([]store.Driver, error) {
	stored, err := s.drivers.Find(ctx, store.DriverFilter{Year: year, Location: location, SessionName: sessionName})
	if err != nil {
		return nil, err
	}
	if len(stored) > 0 {
		logrus.Infof("Found %d drivers in the database", len(stored))
		return stored, nil
	}

	sessionKey, found, err := s.ResolveSession(ctx, year, location, sessionName)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errSessionNotFound
	}

	roster, err := s.upstream.Drivers(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	if len(roster) == 0 {
		return nil, errNothingYet
	}

	drivers := make([]store.Driver, 0, len(roster))
	for _, d := range roster {
		drivers = append(drivers, store.Driver{
			SessionKey:   d.SessionKey,
			Year:         year,
			Location:     location,
			SessionName:  sessionName,
			DriverNumber: d.DriverNumber,
			NameAcronym:  d.NameAcronym,
			TeamColour:   d.TeamColour,
			TeamName:     d.TeamName,
		})
	}
	// a partial roster would be served from the store forever
	if err := s.drivers.InsertAll(ctx, drivers); err != nil {
		return nil, err
	}
	logrus.Infof("Persisted %d drivers for %d %s %s", len(drivers), year, location, sessionName)

	return drivers, nil
}

// Events returns the Grand Prix events of a year ordered by start date
func (s *Source) Events(ctx context.Context, year int) ([]store.Location, error) {
	events, err := cache.Fetch(ctx, s.cache, s.policies.Events, func(ctx context.Context) ([]store.Location, error) {
		return s.loadEvents(ctx, year)
	}, year)

	if errors.Is(err, errNothingYet) {
		return []store.Location{}, nil
	}
	return events, err
}

func (s *Source) loadEvents(ctx context.Context, year int) ([]store.Location, error) {
	stored, err := s.locations.Find(ctx, store.LocationFilter{Year: year})
	if err != nil {
		return nil, err
	}
	if len(stored) > 0 {
		return stored, nil
	}

	meetings, err := s.upstream.GrandPrix(ctx, year)
	if err != nil {
		return nil, err
	}
	if len(meetings) == 0 {
		return nil, errNothingYet
	}

	events := make([]store.Location, 0, len(meetings))
	for _, m := range meetings {
		events = append(events, locationOf(year, m))
	}
	// upsert, since the refresher may be writing the same meetings
	if err := s.locations.UpsertAll(ctx, events); err != nil {
		return nil, err
	}
	slices.SortStableFunc(events, func(a, b store.Location) int {
		return a.DateStart.Compare(b.DateStart)
	})

	return events, nil
}

// RefreshEvents upserts the year's Grand Prix events from upstream and drops
// the cached listing so the next read sees them.
func (s *Source) RefreshEvents(ctx context.Context, year int) (int, error) {
	meetings, err := s.upstream.GrandPrix(ctx, year)
	if err != nil {
		return 0, err
	}

	events := make([]store.Location, 0, len(meetings))
	for _, m := range meetings {
		events = append(events, locationOf(year, m))
	}
	if err := s.locations.UpsertAll(ctx, events); err != nil {
		return 0, err
	}
	s.cache.Invalidate(s.policies.Events, year)

	return len(meetings), nil
}

func locationOf(year int, m openf1.Meeting) store.Location {
	return store.Location{
		Year:        year,
		MeetingKey:  m.MeetingKey,
		MeetingName: m.MeetingName,
		Location:    m.Location,
		DateStart:   m.DateStart,
	}
}

// Positions lists running-order changes of a session
func (s *Source) Positions(ctx context.Context, sessionKey int) ([]openf1.Position, error) {
	return cache.Fetch(ctx, s.cache, s.policies.Positions, func(ctx context.Context) ([]openf1.Position, error) {
		return s.upstream.Positions(ctx, sessionKey)
	}, sessionKey)
}

// Intervals lists interval updates of a session, for one driver when driverNumber is non-zero
func (s *Source) Intervals(ctx context.Context, sessionKey, driverNumber int) ([]openf1.Interval, error) {
	return cache.Fetch(ctx, s.cache, s.policies.Intervals, func(ctx context.Context) ([]openf1.Interval, error) {
		return s.upstream.Intervals(ctx, sessionKey, driverNumber)
	}, sessionKey, driverNumber)
}

// PitStops lists pit lane visits of a session
func (s *Source) PitStops(ctx context.Context, sessionKey int) ([]openf1.PitStop, error) {
	return cache.Fetch(ctx, s.cache, s.policies.PitStops, func(ctx context.Context) ([]openf1.PitStop, error) {
		return s.upstream.PitStops(ctx, sessionKey)
	}, sessionKey)
}

// Stints lists tyre stints of a session
func (s *Source) Stints(ctx context.Context, sessionKey int) ([]openf1.Stint, error) {
	return cache.Fetch(ctx, s.cache, s.policies.Stints, func(ctx context.Context) ([]openf1.Stint, error) {
		return s.upstream.Stints(ctx, sessionKey)
	}, sessionKey)
}

// Laps lists laps of a session
func (s *Source) Laps(ctx context.Context, sessionKey int) ([]openf1.Lap, error) {
	return cache.Fetch(ctx, s.cache, s.policies.Laps, func(ctx context.Context) ([]openf1.Lap, error) {
		return s.upstream.Laps(ctx, sessionKey)
	}, sessionKey)
}
