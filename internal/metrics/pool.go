package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	poolBalance = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "house_pool_balance",
			Help: "Current house pool balance per asset",
		},
		[]string{"asset"},
	)

	poolConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "house_pool_cas_conflicts_total",
			Help: "Optimistic version conflicts when updating the house pool",
		},
		[]string{"asset"},
	)
)

// SetPoolBalance 更新资金池余额仪表
func SetPoolBalance(asset string, balance float64) {
	poolBalance.WithLabelValues(asset).Set(balance)
}

// RecordPoolConflict 记录一次乐观锁冲突
func RecordPoolConflict(asset string) {
	poolConflicts.WithLabelValues(asset).Inc()
}
