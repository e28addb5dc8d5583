package cache

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Fetch returns the live entry for (policy, args) or runs fetch to produce it.
//
// Concurrent callers asking for the same key while no entry exists share a
// single fetch and all observe its result or its error. Errors are returned
// untouched and never stored, so the next call runs fetch again.
//
// The shared fetch is not cancelled with the caller that started it; each
// caller stops waiting when its own ctx is done. fetch must bound itself,
// as the OpenF1 client does with its request timeout.
func Fetch[T any](ctx context.Context, c *Cache, p Policy, fetch func(context.Context) (T, error), args ...any) (T, error) {
	var zero T

	key := Key(args...)
	b := c.bucket(p)

	if v, ok := b.Get(key); ok {
		hits.WithLabelValues(p.Namespace).Inc()
		value, _ := v.(T)
		return value, nil
	}
	misses.WithLabelValues(p.Namespace).Inc()

	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(p.Namespace+"/"+key, func() (any, error) {
		// a flight that finished between our lookup and joining the group
		if v, ok := b.Get(key); ok {
			return v, nil
		}

		logrus.Debugf("Cache miss for %s [%s], fetching", p.Namespace, key)
		v, err := fetch(flightCtx)
		if err != nil {
			return nil, err
		}
		b.Add(key, v)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			coalesced.WithLabelValues(p.Namespace).Inc()
		}
		if res.Err != nil {
			return zero, res.Err
		}
		value, _ := res.Val.(T)
		return value, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
