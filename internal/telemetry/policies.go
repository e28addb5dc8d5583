package telemetry

import (
	"fmt"
	"time"

	"github.com/pitwall-bot/pitwall/internal/cache"
	"github.com/pitwall-bot/pitwall/internal/config"
)

// Policies assigns a cache namespace and TTL to every upstream call kind
type Policies struct {
	Sessions  cache.Policy
	Drivers   cache.Policy
	Events    cache.Policy
	Positions cache.Policy
	Intervals cache.Policy
	PitStops  cache.Policy
	Stints    cache.Policy
	Laps      cache.Policy
}

// DefaultPolicies: immutable data lives an hour, fast telemetry ten seconds,
// pit and tyre data thirty seconds.
func DefaultPolicies() Policies {
	return Policies{
		Sessions:  cache.Policy{Namespace: "sessions", TTL: time.Hour},
		Drivers:   cache.Policy{Namespace: "drivers", TTL: time.Hour},
		Events:    cache.Policy{Namespace: "events", TTL: time.Hour},
		Positions: cache.Policy{Namespace: "positions", TTL: 10 * time.Second},
		Intervals: cache.Policy{Namespace: "intervals", TTL: 10 * time.Second},
		PitStops:  cache.Policy{Namespace: "pit_stops", TTL: 30 * time.Second},
		Stints:    cache.Policy{Namespace: "stints", TTL: 30 * time.Second},
		Laps:      cache.Policy{Namespace: "laps", TTL: 10 * time.Second},
	}
}

// PoliciesFromConfig applies configured TTLs to the default namespaces
func PoliciesFromConfig(cfg config.CacheConfig) (Policies, error) {
	p := DefaultPolicies()

	for _, o := range []struct {
		policy *cache.Policy
		raw    string
	}{
		{&p.Sessions, cfg.Sessions},
		{&p.Drivers, cfg.Drivers},
		{&p.Events, cfg.Events},
		{&p.Positions, cfg.Positions},
		{&p.Intervals, cfg.Intervals},
		{&p.PitStops, cfg.PitStops},
		{&p.Stints, cfg.Stints},
		{&p.Laps, cfg.Laps},
	} {
		if o.raw == "" {
			continue
		}
		ttl, err := time.ParseDuration(o.raw)
		if err != nil {
			return Policies{}, fmt.Errorf("invalid TTL for %s: %w", o.policy.Namespace, err)
		}
		o.policy.TTL = ttl
	}

	return p, nil
}
