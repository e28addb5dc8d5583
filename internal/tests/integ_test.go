package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/pitwall-bot/pitwall/internal/store"
	"github.com/pitwall-bot/pitwall/internal/timing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type head2HeadBody struct {
	Summary    string            `json:"summary"`
	Comparison timing.Comparison `json:"comparison"`
}

type liveTimingBody struct {
	Session string       `json:"session"`
	Rows    []timing.Row `json:"rows"`
}

type eventsBody struct {
	Events []store.Location `json:"events"`
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHead2HeadIntegration(t *testing.T) {
	upstream := fixture_openf1(t)
	s := fixture_stack(t, upstream.URL, tempDB(t))

	t.Run("lap window and deltas", func(t *testing.T) {
		var body head2HeadBody
		status := getJSON(t, s.server.URL+"/head2head?year=2025&location=Suzuka&driver1=81&driver2=4&laps=2", &body)
		require.Equal(t, http.StatusOK, status)

		c := body.Comparison
		assert.Equal(t, []int{11, 12}, c.Laps)
		assert.Equal(t, []timing.Cell{timing.Num(91.2), timing.Num(92.0)}, c.LapTimes[0])
		assert.Equal(t, []timing.Cell{timing.Num(-0.3), timing.Num(0.3)}, c.LapTimes[1])
		assert.Equal(t, [3]timing.Cell{timing.Num(-0.1), timing.Num(-0.1), timing.Num(-0.1)}, c.SectorTimes[1][0])
		assert.Equal(t, [3]timing.Cell{timing.NotAvailable, timing.NotAvailable, timing.NotAvailable}, c.SectorTimes[1][1])
		assert.Equal(t, [2]string{"PIA", "NOR"}, c.DriverNames)
		assert.Equal(t, "NOR is 5.900 seconds ahead of PIA", body.Summary)
	})

	t.Run("interval sign", func(t *testing.T) {
		var body head2HeadBody
		status := getJSON(t, s.server.URL+"/head2head?year=2025&location=Suzuka&driver1=1&driver2=81&laps=1", &body)
		require.Equal(t, http.StatusOK, status)

		assert.Equal(t, timing.Num(0.666), body.Comparison.CurrentInterval)
		assert.Equal(t, "PIA is 0.666 seconds behind VER", body.Summary)
		assert.Empty(t, body.Comparison.Laps)
	})

	t.Run("same driver is rejected without upstream calls", func(t *testing.T) {
		before := upstream.total()
		status := getJSON(t, s.server.URL+"/head2head?year=2025&location=Suzuka&driver1=4&driver2=4&laps=2", nil)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, before, upstream.total())
	})

	t.Run("repeated requests are served from cache", func(t *testing.T) {
		assert.Equal(t, 1, upstream.count("sessions"))
		assert.Equal(t, 1, upstream.count("laps"))
		assert.Equal(t, 1, upstream.count("intervals"))
		assert.Equal(t, 1, upstream.count("drivers"))
	})
}

func TestLiveTimingIntegration(t *testing.T) {
	upstream := fixture_openf1(t)
	s := fixture_stack(t, upstream.URL, tempDB(t))

	var body liveTimingBody
	status := getJSON(t, s.server.URL+"/live-timing?year=2025&location=Suzuka&extras=intervals,pit_stops&extras=tyres", &body)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body.Rows, 3)

	leader, second, third := body.Rows[0], body.Rows[1], body.Rows[2]
	assert.Equal(t, []int{4, 1, 81}, []int{leader.DriverNumber, second.DriverNumber, third.DriverNumber})
	assert.Equal(t, "#FF8000", leader.Color)

	assert.Equal(t, 1, *leader.PitStops)
	assert.Equal(t, 2, *third.PitStops)
	assert.Equal(t, "HARD", second.TyreCompound)
	assert.Equal(t, 31, *second.TyreAge)
	assert.Equal(t, 0, *leader.TyreAge)
	assert.Nil(t, third.TyreAge)
	assert.Equal(t, "5.900", third.GapToLeader.String())
	// a null interval decodes to a nil pointer
	assert.True(t, leader.Interval == nil || !leader.Interval.Valid())

	before := upstream.total()
	require.Equal(t, http.StatusOK, getJSON(t, s.server.URL+"/live-timing?year=2025&location=Suzuka&extras=intervals,pit_stops,tyres", nil))
	assert.Equal(t, before, upstream.total(), "second request within TTL must not reach upstream")
}

func TestSessionNotAvailableIsRechecked(t *testing.T) {
	upstream := fixture_openf1(t)
	s := fixture_stack(t, upstream.URL, tempDB(t))

	for i := 0; i < 2; i++ {
		status := getJSON(t, s.server.URL+"/live-timing?year=2026&location=Madrid", nil)
		assert.Equal(t, http.StatusNotFound, status)
	}
	assert.Equal(t, 2, upstream.count("sessions"))
	assert.Zero(t, upstream.count("position"))
}

func TestDriversInStoreSkipUpstream(t *testing.T) {
	dbPath := tempDB(t)

	first := fixture_openf1(t)
	warm := fixture_stack(t, first.URL, dbPath)
	drivers, err := warm.source.Drivers(context.Background(), 2025, "Suzuka", "Race")
	require.NoError(t, err)
	require.Len(t, drivers, 3)
	require.NoError(t, store.Close(warm.db))

	// fresh process: empty cache, same database
	second := fixture_openf1(t)
	cold := fixture_stack(t, second.URL, dbPath)
	drivers, err = cold.source.Drivers(context.Background(), 2025, "Suzuka", "Race")
	require.NoError(t, err)
	assert.Len(t, drivers, 3)
	assert.Zero(t, second.total(), "drivers already stored must not reach upstream")
}

func TestEventsIntegration(t *testing.T) {
	upstream := fixture_openf1(t)
	s := fixture_stack(t, upstream.URL, tempDB(t))

	var body eventsBody
	require.Equal(t, http.StatusOK, getJSON(t, s.server.URL+"/events?year=2025", &body))
	require.Len(t, body.Events, 2)
	assert.Equal(t, "Melbourne", body.Events[0].Location)
	assert.Equal(t, "Suzuka", body.Events[1].Location)

	n, err := s.source.RefreshEvents(context.Background(), 2025)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Equal(t, http.StatusOK, getJSON(t, s.server.URL+"/events?year=2025", &body))
	assert.Len(t, body.Events, 2, "upsert must not duplicate events")
}

func TestUpstreamFailureIsNotCached(t *testing.T) {
	upstream := fixture_openf1(t)
	s := fixture_stack(t, upstream.URL, tempDB(t))
	url := s.server.URL + "/live-timing?year=2025&location=Suzuka&extras=pit_stops"

	upstream.set("pit", `[{"lap_number": 3}]`)
	assert.Equal(t, http.StatusBadGateway, getJSON(t, url, nil))

	upstream.set("pit", defaultPayloads["pit"])
	assert.Equal(t, http.StatusOK, getJSON(t, url, nil))
	assert.Equal(t, 2, upstream.count("pit"))
}
