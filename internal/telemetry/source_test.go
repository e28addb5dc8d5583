package telemetry

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pitwall-bot/pitwall/internal/cache"
	"github.com/pitwall-bot/pitwall/internal/config"
	"github.com/pitwall-bot/pitwall/internal/openf1"
	"github.com/pitwall-bot/pitwall/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeUpstream counts calls per endpoint and serves canned data
type fakeUpstream struct {
	mu       sync.Mutex
	calls    map[string]int
	sessions map[string]int
	roster   []openf1.Driver
	meetings []openf1.Meeting
	laps     []openf1.Lap
	err      error
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		calls:    map[string]int{},
		sessions: map[string]int{cache.Key(2025, "Suzuka", "Race"): 9693},
		roster: []openf1.Driver{
			{SessionKey: 9693, DriverNumber: 1, NameAcronym: "VER", TeamColour: "3671C6", TeamName: "Red Bull Racing"},
			{SessionKey: 9693, DriverNumber: 4, NameAcronym: "NOR", TeamColour: "FF8000", TeamName: "McLaren"},
		},
	}
}

func (f *fakeUpstream) hit(endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[endpoint]++
	return f.err
}

func (f *fakeUpstream) count(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[endpoint]
}

func (f *fakeUpstream) ResolveSession(_ context.Context, year int, location, sessionName string) (int, bool, error) {
	if err := f.hit("sessions"); err != nil {
		return 0, false, err
	}
	key, ok := f.sessions[cache.Key(year, location, sessionName)]
	return key, ok, nil
}

func (f *fakeUpstream) Drivers(context.Context, int) ([]openf1.Driver, error) {
	return f.roster, f.hit("drivers")
}

func (f *fakeUpstream) GrandPrix(context.Context, int) ([]openf1.Meeting, error) {
	return f.meetings, f.hit("meetings")
}

func (f *fakeUpstream) Positions(context.Context, int) ([]openf1.Position, error) {
	return nil, f.hit("position")
}

func (f *fakeUpstream) Intervals(context.Context, int, int) ([]openf1.Interval, error) {
	return nil, f.hit("intervals")
}

func (f *fakeUpstream) PitStops(context.Context, int) ([]openf1.PitStop, error) {
	return nil, f.hit("pit")
}

func (f *fakeUpstream) Stints(context.Context, int) ([]openf1.Stint, error) {
	return nil, f.hit("stints")
}

func (f *fakeUpstream) Laps(context.Context, int) ([]openf1.Lap, error) {
	return f.laps, f.hit("laps")
}

type fixture struct {
	db        *gorm.DB
	upstream  *fakeUpstream
	source    *Source
	drivers   *store.DriverRepository
	locations *store.LocationRepository
}

func fixture_source(t *testing.T, policies Policies) fixture {
	t.Helper()
	db, err := store.Open(config.StorageConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "pitwall.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(db) })

	upstream := newFakeUpstream()
	drivers := store.NewDriverRepository(db)
	locations := store.NewLocationRepository(db)
	return fixture{
		db:        db,
		upstream:  upstream,
		source:    New(upstream, cache.New(0), drivers, locations, policies),
		drivers:   drivers,
		locations: locations,
	}
}

func TestResolveSessionIsCached(t *testing.T) {
	f := fixture_source(t, DefaultPolicies())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		key, found, err := f.source.ResolveSession(ctx, 2025, "Suzuka", "Race")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, 9693, key)
	}
	assert.Equal(t, 1, f.upstream.count("sessions"))
}

func TestResolveSessionNotFoundIsRechecked(t *testing.T) {
	f := fixture_source(t, DefaultPolicies())
	ctx := context.Background()

	_, found, err := f.source.ResolveSession(ctx, 2025, "Las Vegas", "Race")
	require.NoError(t, err)
	assert.False(t, found)

	// the session starts later on
	f.upstream.mu.Lock()
	f.upstream.sessions[cache.Key(2025, "Las Vegas", "Race")] = 9999
	f.upstream.mu.Unlock()

	key, found, err := f.source.ResolveSession(ctx, 2025, "Las Vegas", "Race")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 9999, key)
	assert.Equal(t, 2, f.upstream.count("sessions"))
}

func TestDriversFromStoreSkipUpstream(t *testing.T) {
	f := fixture_source(t, DefaultPolicies())
	ctx := context.Background()

	stored := store.Driver{SessionKey: 9693, Year: 2025, Location: "Suzuka", SessionName: "Race", DriverNumber: 81, NameAcronym: "PIA", TeamColour: "FF8000", TeamName: "McLaren"}
	require.NoError(t, f.drivers.Insert(ctx, &stored))

	drivers, err := f.source.Drivers(ctx, 2025, "Suzuka", "Race")
	require.NoError(t, err)
	require.Len(t, drivers, 1)
	assert.Equal(t, "PIA", drivers[0].NameAcronym)

	assert.Zero(t, f.upstream.count("sessions"))
	assert.Zero(t, f.upstream.count("drivers"))
}

func TestDriversFetchedOnceAndPersisted(t *testing.T) {
	f := fixture_source(t, DefaultPolicies())
	ctx := context.Background()

	drivers, err := f.source.Drivers(ctx, 2025, "Suzuka", "Race")
	require.NoError(t, err)
	require.Len(t, drivers, 2)
	assert.Equal(t, 2025, drivers[0].Year)
	assert.Equal(t, "Suzuka", drivers[0].Location)
	assert.Equal(t, "Race", drivers[0].SessionName)

	persisted, err := f.drivers.Find(ctx, store.DriverFilter{Year: 2025, Location: "Suzuka", SessionName: "Race"})
	require.NoError(t, err)
	assert.Len(t, persisted, 2)

	_, err = f.source.Drivers(ctx, 2025, "Suzuka", "Race")
	require.NoError(t, err)
	assert.Equal(t, 1, f.upstream.count("drivers"))
}

func TestFailedRosterWriteIsNotServedLater(t *testing.T) {
	f := fixture_source(t, DefaultPolicies())
	ctx := context.Background()

	require.NoError(t, f.db.Exec(`CREATE TRIGGER reject_nor BEFORE INSERT ON drivers
		WHEN NEW.driver_number = 4 BEGIN SELECT RAISE(ABORT, 'disk hiccup'); END`).Error)

	_, err := f.source.Drivers(ctx, 2025, "Suzuka", "Race")
	var storeErr *store.Error
	require.True(t, errors.As(err, &storeErr), "got %v", err)

	require.NoError(t, f.db.Exec("DROP TRIGGER reject_nor").Error)

	drivers, err := f.source.Drivers(ctx, 2025, "Suzuka", "Race")
	require.NoError(t, err)
	assert.Len(t, drivers, 2)
	assert.Equal(t, 2, f.upstream.count("drivers"))
}

func TestEventsLoadToleratesConcurrentRefresh(t *testing.T) {
	f := fixture_source(t, DefaultPolicies())
	ctx := context.Background()

	f.upstream.meetings = []openf1.Meeting{
		{MeetingKey: 1254, MeetingName: "Australian Grand Prix", Location: "Melbourne", DateStart: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)},
	}
	// same meeting key, invisible to the lookup, as when a refresh lands between lookup and write
	require.NoError(t, f.locations.Upsert(ctx, &store.Location{Year: 2024, MeetingKey: 1254, MeetingName: "Australian Grand Prix", Location: "Melbourne"}))

	events, err := f.source.Events(ctx, 2025)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 2025, events[0].Year)
}

func TestDriversForUnknownSessionAreEmptyAndUncached(t *testing.T) {
	f := fixture_source(t, DefaultPolicies())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		drivers, err := f.source.Drivers(ctx, 2026, "Madrid", "Race")
		require.NoError(t, err)
		assert.Empty(t, drivers)
	}
	assert.Equal(t, 2, f.upstream.count("sessions"))
	assert.Zero(t, f.upstream.count("drivers"))
}

func TestUpstreamErrorIsNotCached(t *testing.T) {
	f := fixture_source(t, DefaultPolicies())
	ctx := context.Background()

	boom := &openf1.UpstreamError{Endpoint: "laps", StatusCode: 502, Body: "bad gateway"}
	f.upstream.err = boom

	_, err := f.source.Laps(ctx, 9693)
	require.ErrorIs(t, err, boom)

	f.upstream.err = nil
	_, err = f.source.Laps(ctx, 9693)
	require.NoError(t, err)
	assert.Equal(t, 2, f.upstream.count("laps"))
}

func TestFastTelemetryExpires(t *testing.T) {
	policies := DefaultPolicies()
	policies.Laps.TTL = 100 * time.Millisecond
	f := fixture_source(t, policies)
	ctx := context.Background()

	_, err := f.source.Laps(ctx, 9693)
	require.NoError(t, err)
	_, err = f.source.Laps(ctx, 9693)
	require.NoError(t, err)
	assert.Equal(t, 1, f.upstream.count("laps"))

	time.Sleep(200 * time.Millisecond)

	_, err = f.source.Laps(ctx, 9693)
	require.NoError(t, err)
	assert.Equal(t, 2, f.upstream.count("laps"))
}

func TestIntervalsKeyedByDriver(t *testing.T) {
	f := fixture_source(t, DefaultPolicies())
	ctx := context.Background()

	_, err := f.source.Intervals(ctx, 9693, 0)
	require.NoError(t, err)
	_, err = f.source.Intervals(ctx, 9693, 44)
	require.NoError(t, err)
	_, err = f.source.Intervals(ctx, 9693, 44)
	require.NoError(t, err)

	assert.Equal(t, 2, f.upstream.count("intervals"))
}

func TestEventsPersistedAndSorted(t *testing.T) {
	f := fixture_source(t, DefaultPolicies())
	ctx := context.Background()

	f.upstream.meetings = []openf1.Meeting{
		{MeetingKey: 1256, MeetingName: "Japanese Grand Prix", Location: "Suzuka", DateStart: time.Date(2025, 4, 4, 0, 0, 0, 0, time.UTC)},
		{MeetingKey: 1254, MeetingName: "Australian Grand Prix", Location: "Melbourne", DateStart: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)},
	}

	events, err := f.source.Events(ctx, 2025)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Melbourne", events[0].Location)
	assert.Equal(t, "Suzuka", events[1].Location)

	persisted, err := f.locations.Find(ctx, store.LocationFilter{Year: 2025})
	require.NoError(t, err)
	assert.Len(t, persisted, 2)

	// a fresh source over the same store needs no upstream call
	again := New(f.upstream, cache.New(0), f.drivers, f.locations, DefaultPolicies())
	_, err = again.Events(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, 1, f.upstream.count("meetings"))
}

func TestRefreshEventsUpsertsAndInvalidates(t *testing.T) {
	f := fixture_source(t, DefaultPolicies())
	ctx := context.Background()

	f.upstream.meetings = []openf1.Meeting{
		{MeetingKey: 1254, MeetingName: "Australian Grand Prix", Location: "Melbourne", DateStart: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)},
	}
	events, err := f.source.Events(ctx, 2025)
	require.NoError(t, err)
	require.Len(t, events, 1)

	f.upstream.meetings = append(f.upstream.meetings, openf1.Meeting{
		MeetingKey: 1255, MeetingName: "Chinese Grand Prix", Location: "Shanghai", DateStart: time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC),
	})

	n, err := f.source.RefreshEvents(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	events, err = f.source.Events(ctx, 2025)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Shanghai", events[1].Location)
}

func TestStorageErrorPropagates(t *testing.T) {
	f := fixture_source(t, DefaultPolicies())

	db, err := store.Open(config.StorageConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "closed.db")})
	require.NoError(t, err)
	require.NoError(t, store.Close(db))

	broken := New(f.upstream, cache.New(0), store.NewDriverRepository(db), store.NewLocationRepository(db), DefaultPolicies())

	_, err = broken.Drivers(context.Background(), 2025, "Suzuka", "Race")
	var storeErr *store.Error
	require.True(t, errors.As(err, &storeErr), "got %v", err)
	assert.Zero(t, f.upstream.count("drivers"))
}

func TestPoliciesFromConfig(t *testing.T) {
	cfg := config.Default().Cache
	cfg.Positions = "3s"

	policies, err := PoliciesFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, policies.Positions.TTL)
	assert.Equal(t, time.Hour, policies.Sessions.TTL)
	assert.Equal(t, 30*time.Second, policies.PitStops.TTL)

	cfg.Laps = "whenever"
	_, err = PoliciesFromConfig(cfg)
	require.Error(t, err)
}
