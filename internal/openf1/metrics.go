package openf1

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "pitwall_openf1_request_duration_seconds",
	Help:    "Time to complete an OpenF1 request, retries included",
	Buckets: prometheus.ExponentialBucketsRange(0.01, 30, 15),
}, []string{"endpoint", "status"})

func observe(endpoint, status string, start time.Time) {
	requestDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())
}
