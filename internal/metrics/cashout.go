package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cashoutTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cashout_requests_total",
			Help: "Total cashout requests by result and source",
		},
		[]string{"result", "source"},
	)

	cashoutDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cashout_request_duration_ms",
			Help:    "Cashout request duration in milliseconds",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
		[]string{"result", "source"},
	)
)

// RecordCashout 记录结算提现的业务指标
// result: "success" | "fail"
// source: "manual" | "auto"
func RecordCashout(result, source string, started time.Time) {
	res := result
	if res != "success" { res = "fail" }
	src := strings.ToLower(strings.TrimSpace(source))
	if src == "" { src = "manual" }
	cashoutTotal.WithLabelValues(res, src).Inc()
	durMs := float64(time.Since(started).Milliseconds())
	cashoutDuration.WithLabelValues(res, src).Observe(durMs)
}
