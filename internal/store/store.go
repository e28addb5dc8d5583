// Package store persists resolved driver rosters and event listings so historical data
// is fetched from upstream only once.
package store

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pitwall-bot/pitwall/internal/config"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const insertBatchSize = 100

// Error reports a failure reading or writing the persistent store
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// gormWriter sends gorm's messages to logrus. gorm only prints slow queries
// and failed statements at the configured level, so they are warnings.
type gormWriter struct {
	entry *logrus.Entry
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.entry.Warnf(format, args...)
}

// Open connects to the configured database and migrates the schema
func Open(cfg config.StorageConfig) (*gorm.DB, error) {
	var dial gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
				return nil, &Error{Op: "open", Err: fmt.Errorf("creating database directory: %w", err)}
			}
		}
		dial = sqlite.Open(cfg.Path)
	case "postgres":
		dial = postgres.Open(postgresDSN(cfg))
	default:
		return nil, &Error{Op: "open", Err: fmt.Errorf("unsupported storage driver: %s", cfg.Driver)}
	}

	db, err := gorm.Open(dial, &gorm.Config{
		Logger: logger.New(gormWriter{entry: logrus.WithField("subsystem", "gorm")}, logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}

	if cfg.Driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, &Error{Op: "open", Err: err}
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&Driver{}, &Location{}); err != nil {
		return nil, &Error{Op: "migrate", Err: err}
	}

	logrus.Infof("Persistent store initialized (%s)", cfg.Driver)
	return db, nil
}

func postgresDSN(cfg config.StorageConfig) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Database,
	}
	if cfg.Username != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.Username, cfg.Password)
		} else {
			u.User = url.User(cfg.Username)
		}
	}
	if cfg.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {cfg.SSLMode}}.Encode()
	}
	return u.String()
}

// Close releases the underlying connection pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return &Error{Op: "close", Err: err}
	}
	return sqlDB.Close()
}
