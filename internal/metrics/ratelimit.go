package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_decisions_total",
			Help: "Rate limit decisions by dimension and decision",
		},
		[]string{"dimension", "decision"},
	)

	rateLimitFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_store_fallback_total",
			Help: "Rate limit store failures degraded to local window",
		},
		[]string{"dimension"},
	)
)

// RecordRateLimit 记录一次限流判定
func RecordRateLimit(dimension string, allowed bool) {
	decision := "allow"
	if !allowed { decision = "deny" }
	rateLimitDecisions.WithLabelValues(dimension, decision).Inc()
}

// RecordRateLimitFallback 记录一次存储异常降级
func RecordRateLimitFallback(dimension string) {
	rateLimitFallbacks.WithLabelValues(dimension).Inc()
}
