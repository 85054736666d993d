package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	settlementTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recharge_settlement_total",
			Help: "Total recharge settlement callbacks by result",
		},
		[]string{"result"},
	)

	settlementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recharge_settlement_duration_ms",
			Help:    "Recharge settlement processing duration in milliseconds",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
		[]string{"result"},
	)
)

// RecordSettlement 记录充值入账的业务指标
// result: "success" | "replay" | "mismatch" | "fail"
func RecordSettlement(result string, started time.Time) {
	res := result
	switch res {
	case "success", "replay", "mismatch":
	default:
		res = "fail"
	}
	settlementTotal.WithLabelValues(res).Inc()
	durMs := float64(time.Since(started).Milliseconds())
	settlementDuration.WithLabelValues(res).Observe(durMs)
}
