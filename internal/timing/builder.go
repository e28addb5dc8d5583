// Package timing assembles comparison and live-timing snapshots from
// several concurrent fetches.
//
// A builder is used in three phases: ResolveSession, then any set of add
// steps run concurrently (see Gather), then Build. Each step writes only
// its own part of the snapshot, so steps need no locking between them.
// Build must not be called while steps are still running.
package timing

import (
	"context"
	"sync/atomic"

	"github.com/pitwall-bot/pitwall/internal/openf1"
	"github.com/pitwall-bot/pitwall/internal/store"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Source is the cached data access the builders fetch through
type Source interface {
	ResolveSession(ctx context.Context, year int, location, sessionName string) (int, bool, error)
	Drivers(ctx context.Context, year int, location, sessionName string) ([]store.Driver, error)
	Positions(ctx context.Context, sessionKey int) ([]openf1.Position, error)
	Intervals(ctx context.Context, sessionKey, driverNumber int) ([]openf1.Interval, error)
	PitStops(ctx context.Context, sessionKey int) ([]openf1.PitStop, error)
	Stints(ctx context.Context, sessionKey int) ([]openf1.Stint, error)
	Laps(ctx context.Context, sessionKey int) ([]openf1.Lap, error)
}

// Step is one add step of a builder
type Step func(ctx context.Context) error

// Gather runs steps concurrently and waits for all of them. The first
// failure cancels the others and is returned.
func Gather(ctx context.Context, steps ...Step) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, step := range steps {
		g.Go(func() error {
			return step(ctx)
		})
	}
	return g.Wait()
}

// session is the state shared by both builders
type session struct {
	src         Source
	year        int
	location    string
	sessionName string

	key      int
	resolved bool
	built    atomic.Bool
}

// ResolveSession looks up the session key. It must complete before any
// step other than the roster step runs. found is false when the session
// does not exist yet.
func (s *session) ResolveSession(ctx context.Context) (bool, error) {
	if s.built.Load() {
		return false, ErrAlreadyBuilt
	}

	logrus.Debugf("Getting session key for %d %s %s", s.year, s.location, s.sessionName)
	key, found, err := s.src.ResolveSession(ctx, s.year, s.location, s.sessionName)
	if err != nil {
		return false, err
	}
	s.key, s.resolved = key, found
	return found, nil
}

// SessionKey returns the resolved key, zero before resolution
func (s *session) SessionKey() int {
	return s.key
}

func (s *session) checkOpen() error {
	if s.built.Load() {
		return ErrAlreadyBuilt
	}
	return nil
}

func (s *session) checkResolved() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if !s.resolved {
		return ErrSessionNotResolved
	}
	return nil
}

// finish marks the builder built; only the first call succeeds
func (s *session) finish() error {
	if !s.built.CompareAndSwap(false, true) {
		return ErrAlreadyBuilt
	}
	return nil
}
