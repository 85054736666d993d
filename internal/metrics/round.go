package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	roundEventTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "round_event_total",
			Help: "Total round lifecycle events handled by result and event",
		},
		[]string{"result", "event"},
	)

	roundEventDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "round_event_duration_ms",
			Help:    "Round lifecycle event handling duration in milliseconds",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
		[]string{"result", "event"},
	)

	roundMultiplier = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "round_current_multiplier",
			Help: "Current multiplier of the running round per asset",
		},
		[]string{"asset"},
	)
)

// RecordRoundEvent 记录局生命周期事件的业务指标
// result: "success" | "success_idempotent" | "fail"
// event: open/launch/crash/settle/cancel
func RecordRoundEvent(result, event string, started time.Time) {
	res := result
	if res != "success" && res != "success_idempotent" { res = "fail" }
	ev := strings.ToLower(strings.TrimSpace(event))
	if ev == "" { ev = "unknown" }
	roundEventTotal.WithLabelValues(res, ev).Inc()
	durMs := float64(time.Since(started).Milliseconds())
	roundEventDuration.WithLabelValues(res, ev).Observe(durMs)
}

// SetRoundMultiplier 更新当前局倍数仪表
func SetRoundMultiplier(asset string, mult float64) {
	roundMultiplier.WithLabelValues(asset).Set(mult)
}
