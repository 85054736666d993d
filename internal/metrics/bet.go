package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	betTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bet_requests_total",
			Help: "Total bet requests by result and mode",
		},
		[]string{"result", "mode"},
	)

	betDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bet_request_duration_ms",
			Help:    "Bet request duration in milliseconds",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
		[]string{"result", "mode"},
	)
)

// RecordBet records business metrics for a bet call.
// result should be "success" or "fail"; mode is "real" or "play".
func RecordBet(result, mode string, started time.Time) {
	res := result
	if res != "success" { res = "fail" }
	m := strings.ToLower(mode)
	betTotal.WithLabelValues(res, m).Inc()
	durMs := float64(time.Since(started).Milliseconds())
	betDuration.WithLabelValues(res, m).Observe(durMs)
}
