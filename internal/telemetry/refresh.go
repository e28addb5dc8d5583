package telemetry

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type eventRefresher interface {
	RefreshEvents(ctx context.Context, year int) (int, error)
}

// Refresher keeps the current season's event listing up to date, since new
// events can be announced during a season.
type Refresher struct {
	source   eventRefresher
	interval time.Duration
	now      func() time.Time
}

func NewRefresher(source eventRefresher, interval time.Duration) *Refresher {
	return &Refresher{
		source:   source,
		interval: interval,
		now:      time.Now,
	}
}

// RefreshOnce upserts the events of the current year
func (r *Refresher) RefreshOnce(ctx context.Context) error {
	year := r.now().Year()
	n, err := r.source.RefreshEvents(ctx, year)
	if err != nil {
		return err
	}
	logrus.Infof("Upserted %d grand prix locations for %d", n, year)
	return nil
}

// Run refreshes immediately and then on every tick until ctx is done.
// Failures are logged and retried on the next tick.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.RefreshOnce(ctx); err != nil {
			logrus.Errorf("Error upserting grand prix locations: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
