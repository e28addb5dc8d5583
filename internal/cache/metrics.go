package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var hits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pitwall_cache_hits_total",
	Help: "Memoized calls answered from a live entry",
}, []string{"namespace"})

var misses = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pitwall_cache_misses_total",
	Help: "Memoized calls with no live entry",
}, []string{"namespace"})

var coalesced = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pitwall_cache_coalesced_total",
	Help: "Callers that shared an in-flight fetch",
}, []string{"namespace"})
