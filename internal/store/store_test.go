package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pitwall-bot/pitwall/internal/config"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func fixture_db(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(config.StorageConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "nested", "pitwall.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	return db
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(config.StorageConfig{Driver: "mongodb"})

	var storeErr *Error
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "open", storeErr.Op)
}

func TestPostgresDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.StorageConfig
		want string
	}{
		{
			name: "anonymous",
			cfg:  config.StorageConfig{Host: "localhost", Port: 5432, Database: "f1"},
			want: "postgres://localhost:5432/f1",
		},
		{
			name: "with credentials and sslmode",
			cfg: config.StorageConfig{
				Host: "db", Port: 5433, Database: "f1",
				Username: "bot", Password: "p@ss", SSLMode: "disable",
			},
			want: "postgres://bot:p%40ss@db:5433/f1?sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := postgresDSN(tt.cfg); got != tt.want {
				t.Errorf("postgresDSN() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDriverRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewDriverRepository(fixture_db(t))

	none, err := repo.Find(ctx, DriverFilter{Year: 2025, Location: "Suzuka", SessionName: "Race"})
	require.NoError(t, err)
	assert.Empty(t, none)

	for _, d := range []Driver{
		{SessionKey: 9693, Year: 2025, Location: "Suzuka", SessionName: "Race", DriverNumber: 1, NameAcronym: "VER", TeamColour: "3671C6", TeamName: "Red Bull Racing"},
		{SessionKey: 9693, Year: 2025, Location: "Suzuka", SessionName: "Race", DriverNumber: 4, NameAcronym: "NOR", TeamColour: "FF8000", TeamName: "McLaren"},
		{SessionKey: 9690, Year: 2025, Location: "Suzuka", SessionName: "Qualifying", DriverNumber: 1, NameAcronym: "VER", TeamColour: "3671C6", TeamName: "Red Bull Racing"},
	} {
		d := d
		require.NoError(t, repo.Insert(ctx, &d))
	}

	race, err := repo.Find(ctx, DriverFilter{Year: 2025, Location: "Suzuka", SessionName: "Race"})
	require.NoError(t, err)
	require.Len(t, race, 2)
	assert.Equal(t, "VER", race[0].NameAcronym)
	assert.Equal(t, "NOR", race[1].NameAcronym)

	single, err := repo.Find(ctx, DriverFilter{Year: 2025, Location: "Suzuka", SessionName: "Race", DriverNumber: 4})
	require.NoError(t, err)
	require.Len(t, single, 1)
	assert.Equal(t, "McLaren", single[0].TeamName)
}

func TestDriverInsertIsNotIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewDriverRepository(fixture_db(t))

	for i := 0; i < 2; i++ {
		d := Driver{SessionKey: 1, Year: 2024, Location: "Monza", SessionName: "Race", DriverNumber: 16, NameAcronym: "LEC"}
		require.NoError(t, repo.Insert(ctx, &d))
	}

	drivers, err := repo.Find(ctx, DriverFilter{Year: 2024, Location: "Monza"})
	require.NoError(t, err)
	assert.Len(t, drivers, 2)
}

func TestDriverInsertAllIsAtomic(t *testing.T) {
	ctx := context.Background()
	db := fixture_db(t)
	repo := NewDriverRepository(db)

	require.NoError(t, db.Exec(`CREATE TRIGGER reject_lec BEFORE INSERT ON drivers
		WHEN NEW.driver_number = 16 BEGIN SELECT RAISE(ABORT, 'disk hiccup'); END`).Error)

	roster := []Driver{
		{SessionKey: 9693, Year: 2025, Location: "Suzuka", SessionName: "Race", DriverNumber: 1, NameAcronym: "VER"},
		{SessionKey: 9693, Year: 2025, Location: "Suzuka", SessionName: "Race", DriverNumber: 16, NameAcronym: "LEC"},
	}
	err := repo.InsertAll(ctx, roster)
	var storeErr *Error
	require.True(t, errors.As(err, &storeErr), "got %v", err)
	assert.Equal(t, "insert drivers", storeErr.Op)

	drivers, err := repo.Find(ctx, DriverFilter{Year: 2025, Location: "Suzuka", SessionName: "Race"})
	require.NoError(t, err)
	assert.Empty(t, drivers, "a failed roster insert must leave no rows behind")

	require.NoError(t, db.Exec("DROP TRIGGER reject_lec").Error)
	require.NoError(t, repo.InsertAll(ctx, roster))
	drivers, err = repo.Find(ctx, DriverFilter{Year: 2025, Location: "Suzuka", SessionName: "Race"})
	require.NoError(t, err)
	assert.Len(t, drivers, 2)
}

func TestFailedStatementIsLoggedAsWarning(t *testing.T) {
	hook := logtest.NewGlobal()
	t.Cleanup(func() { logrus.StandardLogger().ReplaceHooks(make(logrus.LevelHooks)) })

	db := fixture_db(t)
	require.NoError(t, db.Exec(`CREATE TRIGGER reject_all BEFORE INSERT ON drivers
		BEGIN SELECT RAISE(ABORT, 'disk hiccup'); END`).Error)
	hook.Reset()

	err := NewDriverRepository(db).InsertAll(context.Background(), []Driver{{SessionKey: 1, Year: 2025, Location: "Suzuka", SessionName: "Race", DriverNumber: 1}})
	require.Error(t, err)

	var found bool
	for _, entry := range hook.AllEntries() {
		if entry.Data["subsystem"] == "gorm" {
			found = true
			assert.Equal(t, logrus.WarnLevel, entry.Level)
			assert.Contains(t, entry.Message, "disk hiccup")
		}
	}
	assert.True(t, found, "expected gorm to log the failed insert")
}

func TestLocationUpsertAllToleratesExistingRows(t *testing.T) {
	ctx := context.Background()
	repo := NewLocationRepository(fixture_db(t))

	existing := Location{Year: 2025, MeetingKey: 1254, MeetingName: "Australian Grand Prix", Location: "Melbourne", DateStart: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, repo.Insert(ctx, &existing))

	require.NoError(t, repo.UpsertAll(ctx, []Location{
		{Year: 2025, MeetingKey: 1254, MeetingName: "Australian Grand Prix", Location: "Melbourne", DateStart: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)},
		{Year: 2025, MeetingKey: 1255, MeetingName: "Chinese Grand Prix", Location: "Shanghai", DateStart: time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC)},
	}))

	locations, err := repo.Find(ctx, LocationFilter{Year: 2025})
	require.NoError(t, err)
	require.Len(t, locations, 2)
	assert.Equal(t, "Shanghai", locations[1].Location)
}

func TestLocationRepositorySortsByStartDate(t *testing.T) {
	ctx := context.Background()
	repo := NewLocationRepository(fixture_db(t))

	suzuka := Location{Year: 2025, MeetingKey: 1256, MeetingName: "Japanese Grand Prix", Location: "Suzuka", DateStart: time.Date(2025, 4, 4, 2, 30, 0, 0, time.UTC)}
	melbourne := Location{Year: 2025, MeetingKey: 1254, MeetingName: "Australian Grand Prix", Location: "Melbourne", DateStart: time.Date(2025, 3, 14, 1, 30, 0, 0, time.UTC)}
	monza := Location{Year: 2024, MeetingKey: 1245, MeetingName: "Italian Grand Prix", Location: "Monza", DateStart: time.Date(2024, 8, 30, 11, 30, 0, 0, time.UTC)}

	require.NoError(t, repo.Insert(ctx, &suzuka))
	require.NoError(t, repo.Insert(ctx, &melbourne))
	require.NoError(t, repo.Insert(ctx, &monza))

	season, err := repo.Find(ctx, LocationFilter{Year: 2025})
	require.NoError(t, err)
	require.Len(t, season, 2)
	assert.Equal(t, "Melbourne", season[0].Location)
	assert.Equal(t, "Suzuka", season[1].Location)
}

func TestLocationDuplicateInsertFails(t *testing.T) {
	ctx := context.Background()
	repo := NewLocationRepository(fixture_db(t))

	first := Location{Year: 2025, MeetingKey: 1256, MeetingName: "Japanese Grand Prix", Location: "Suzuka"}
	require.NoError(t, repo.Insert(ctx, &first))

	dup := Location{Year: 2025, MeetingKey: 1256, MeetingName: "Japanese Grand Prix", Location: "Suzuka"}
	err := repo.Insert(ctx, &dup)

	var storeErr *Error
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "insert location", storeErr.Op)
}

func TestLocationUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	repo := NewLocationRepository(fixture_db(t))

	original := Location{Year: 2025, MeetingKey: 1260, MeetingName: "Emilia Romagna Grand Prix", Location: "Imola", DateStart: time.Date(2025, 5, 16, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, repo.Upsert(ctx, &original))

	moved := Location{Year: 2025, MeetingKey: 1260, MeetingName: "Emilia Romagna Grand Prix", Location: "Imola", DateStart: time.Date(2025, 5, 17, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, repo.Upsert(ctx, &moved))

	locations, err := repo.Find(ctx, LocationFilter{MeetingKey: 1260})
	require.NoError(t, err)
	require.Len(t, locations, 1)
	assert.True(t, locations[0].DateStart.Equal(moved.DateStart), "got %s", locations[0].DateStart)
}

func TestClosedStoreSurfacesError(t *testing.T) {
	db, err := Open(config.StorageConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "closed.db")})
	require.NoError(t, err)
	require.NoError(t, Close(db))

	_, err = NewDriverRepository(db).Find(context.Background(), DriverFilter{Year: 2025})

	var storeErr *Error
	require.True(t, errors.As(err, &storeErr), "connection failures must not look like an empty result")
	assert.Equal(t, "find drivers", storeErr.Op)
}
