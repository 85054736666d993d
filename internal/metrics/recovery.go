package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recoveryRunTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "round_recovery_runs_total",
			Help: "Total orphan round recovery sweeps by result",
		},
		[]string{"result"},
	)

	recoveryRoundsCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "round_recovery_rounds_cancelled_total",
			Help: "Total orphan rounds cancelled by recovery",
		},
	)

	recoveryBetsRefunded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "round_recovery_bets_refunded_total",
			Help: "Total pending bets refunded by recovery",
		},
	)

	recoveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "round_recovery_duration_ms",
			Help:    "Recovery sweep duration in milliseconds",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
	)
)

// RecordRecovery 记录一次孤儿局清理的汇总指标
// result: "success" | "partial" | "fail"
func RecordRecovery(result string, rounds, bets int, started time.Time) {
	res := result
	switch res {
	case "success", "partial":
	default:
		res = "fail"
	}
	recoveryRunTotal.WithLabelValues(res).Inc()
	if rounds > 0 { recoveryRoundsCancelled.Add(float64(rounds)) }
	if bets > 0 { recoveryBetsRefunded.Add(float64(bets)) }
	recoveryDuration.Observe(float64(time.Since(started).Milliseconds()))
}
