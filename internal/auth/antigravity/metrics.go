package antigravity

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	eligibleGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "antigravity_credentials_eligible",
		Help: "Number of credentials currently enabled and not cooling down.",
	})
	cooldownsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "antigravity_credential_cooldowns_total",
		Help: "Cooldowns applied to credentials, by failure class.",
	}, []string{"class"})
	refreshesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "antigravity_token_refreshes_total",
		Help: "Token refresh attempts, by outcome.",
	}, []string{"outcome"})
)

func registerMetrics() {
	metricsOnce.Do(func() {
		prometheus.MustRegister(eligibleGauge, cooldownsTotal, refreshesTotal)
	})
}

func recordCooldown(class string) {
	cooldownsTotal.WithLabelValues(class).Inc()
}

func recordRefresh(outcome string) {
	refreshesTotal.WithLabelValues(outcome).Inc()
}
