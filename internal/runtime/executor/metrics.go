package executor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	retriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "antigravity_upstream_retries_total",
		Help: "Failed upstream attempts that caused rotation to another credential.",
	})
)

func registerMetrics() {
	metricsOnce.Do(func() {
		prometheus.MustRegister(retriesTotal)
	})
}

func recordRetry() {
	retriesTotal.Inc()
}
