package tests

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pitwall-bot/pitwall/internal/cache"
	"github.com/pitwall-bot/pitwall/internal/config"
	"github.com/pitwall-bot/pitwall/internal/openf1"
	"github.com/pitwall-bot/pitwall/internal/server"
	"github.com/pitwall-bot/pitwall/internal/store"
	"github.com/pitwall-bot/pitwall/internal/telemetry"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeOpenF1 serves canned OpenF1 payloads and counts requests per endpoint
type fakeOpenF1 struct {
	*httptest.Server

	mu       sync.Mutex
	hits     map[string]int
	payloads map[string]string
}

var defaultPayloads = map[string]string{
	"drivers": `[
		{"session_key": 9693, "driver_number": 1, "name_acronym": "VER", "team_colour": "3671C6", "team_name": "Red Bull Racing"},
		{"session_key": 9693, "driver_number": 4, "name_acronym": "NOR", "team_colour": "FF8000", "team_name": "McLaren"},
		{"session_key": 9693, "driver_number": 81, "name_acronym": "PIA", "team_colour": "FF8000", "team_name": "McLaren"}
	]`,
	"position": `[
		{"driver_number": 1, "position": 1, "date": "2025-04-06T05:03:00Z"},
		{"driver_number": 4, "position": 2, "date": "2025-04-06T05:03:00Z"},
		{"driver_number": 81, "position": 3, "date": "2025-04-06T05:03:00Z"},
		{"driver_number": 4, "position": 1, "date": "2025-04-06T06:10:00Z"},
		{"driver_number": 1, "position": 2, "date": "2025-04-06T06:10:00Z"}
	]`,
	"intervals": `[
		{"driver_number": 4, "interval": null, "gap_to_leader": 0},
		{"driver_number": 1, "interval": 5.234, "gap_to_leader": 5.234},
		{"driver_number": 81, "interval": 0.666, "gap_to_leader": 5.9}
	]`,
	"pit": `[
		{"driver_number": 1, "lap_number": 21, "pit_duration": 22.1},
		{"driver_number": 4, "lap_number": 22, "pit_duration": 21.8},
		{"driver_number": 81, "lap_number": 20, "pit_duration": 23.0},
		{"driver_number": 81, "lap_number": 41, "pit_duration": 22.5}
	]`,
	"stints": `[
		{"driver_number": 1, "stint_number": 1, "compound": "MEDIUM", "lap_start": 1, "lap_end": 21, "tyre_age_at_start": 0},
		{"driver_number": 1, "stint_number": 2, "compound": "HARD", "lap_start": 22, "lap_end": 53, "tyre_age_at_start": 0},
		{"driver_number": 4, "stint_number": 1, "compound": "MEDIUM", "lap_start": 1, "lap_end": 22, "tyre_age_at_start": 3},
		{"driver_number": 4, "stint_number": 2, "compound": "HARD", "lap_start": 23, "lap_end": null, "tyre_age_at_start": 0}
	]`,
	"laps": `[
		{"driver_number": 81, "lap_number": 10, "lap_duration": 90.1, "duration_sector_1": 33.1, "duration_sector_2": 38.2, "duration_sector_3": 18.8},
		{"driver_number": 81, "lap_number": 11, "lap_duration": 91.2, "duration_sector_1": 33.5, "duration_sector_2": 38.6, "duration_sector_3": 19.1},
		{"driver_number": 81, "lap_number": 12, "lap_duration": 92.0, "duration_sector_1": 33.9, "duration_sector_2": 38.9, "duration_sector_3": 19.2},
		{"driver_number": 4, "lap_number": 10, "lap_duration": 90.5, "duration_sector_1": 33.2, "duration_sector_2": 38.4, "duration_sector_3": 18.9},
		{"driver_number": 4, "lap_number": 11, "lap_duration": 90.9, "duration_sector_1": 33.4, "duration_sector_2": 38.5, "duration_sector_3": 19.0},
		{"driver_number": 4, "lap_number": 12, "lap_duration": 92.3, "duration_sector_1": null, "duration_sector_2": 39.0, "duration_sector_3": 19.4}
	]`,
	"meetings": `[
		{"meeting_key": 1256, "meeting_name": "Japanese Grand Prix", "location": "Suzuka", "year": 2025, "date_start": "2025-04-04T02:30:00+00:00"},
		{"meeting_key": 1253, "meeting_name": "Pre-Season Testing", "location": "Sakhir", "year": 2025, "date_start": "2025-02-26T07:00:00+00:00"},
		{"meeting_key": 1254, "meeting_name": "Australian Grand Prix", "location": "Melbourne", "year": 2025, "date_start": "2025-03-14T01:30:00+00:00"}
	]`,
}

// fixture_openf1 starts a fake upstream that only knows the 2025 Suzuka race, session 9693
func fixture_openf1(t *testing.T) *fakeOpenF1 {
	t.Helper()
	f := &fakeOpenF1{hits: map[string]int{}, payloads: map[string]string{}}
	for k, v := range defaultPayloads {
		f.payloads[k] = v
	}

	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, requ *http.Request) {
		endpoint := strings.TrimPrefix(requ.URL.Path, "/")

		f.mu.Lock()
		f.hits[endpoint]++
		body, ok := f.payloads[endpoint]
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if endpoint == "sessions" {
			q := requ.URL.Query()
			if q.Get("year") != "2025" || q.Get("location") != "Suzuka" || q.Get("session_name") != "Race" {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"detail": "No results found."}`))
				return
			}
			body, ok = `[{"session_key": 9693, "session_name": "Race", "location": "Suzuka", "year": 2025}]`, true
		}
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail": "No results found."}`))
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeOpenF1) count(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[endpoint]
}

func (f *fakeOpenF1) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.hits {
		n += c
	}
	return n
}

func (f *fakeOpenF1) set(endpoint, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads[endpoint] = body
}

type stack struct {
	cfg    *config.Config
	db     *gorm.DB
	source *telemetry.Source
	server *httptest.Server
}

// fixture_stack wires the real client, cache, sqlite store and HTTP front-end against upstreamURL
func fixture_stack(t *testing.T, upstreamURL string, dbPath string) *stack {
	t.Helper()
	cfg := config.Default()
	cfg.OpenF1.URL = upstreamURL
	cfg.OpenF1.MaxRetries = 0
	cfg.Storage.Path = dbPath

	db, err := store.Open(cfg.Storage)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(db) })

	policies, err := telemetry.PoliciesFromConfig(cfg.Cache)
	require.NoError(t, err)

	timeout, err := cfg.GetTimeout()
	require.NoError(t, err)
	client := openf1.New(upstreamURL, openf1.WithHTTPClient(openf1.NewHTTPClient(timeout, 0)))
	source := telemetry.New(client, cache.New(0), store.NewDriverRepository(db), store.NewLocationRepository(db), policies)

	srv := httptest.NewServer(server.New(&cfg, source).Handler())
	t.Cleanup(srv.Close)

	return &stack{cfg: &cfg, db: db, source: source, server: srv}
}

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "pitwall.db")
}
