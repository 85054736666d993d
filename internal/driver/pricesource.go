package driver

import (
	"context"
	"sync"

	chelper "crash-server/common/helper"

	decimal "github.com/shopspring/decimal"
)

// PriceSource 行情采样接口
// 真实部署时接行情网关；默认实现为随机游走模拟盘
type PriceSource interface {
	Sample(ctx context.Context, asset string) (decimal.Decimal, error)
}

type simulatedSource struct {
	mu   sync.Mutex
	last map[string]decimal.Decimal
}

// NewSimulatedSource 创建模拟行情源
func NewSimulatedSource() PriceSource {
	return &simulatedSource{last: make(map[string]decimal.Decimal)}
}

var simBasePrice = decimal.NewFromInt(10000)

// Sample 返回该资产的模拟价格：上一价 ±0.5% 随机游走
func (s *simulatedSource) Sample(_ context.Context, asset string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.last[asset]
	if !ok {
		p = simBasePrice
	}
	drift := (chelper.RandFloat64() - 0.5) / 100
	p = p.Mul(decimal.NewFromFloat(1 + drift)).Round(2)
	if p.LessThanOrEqual(decimal.Zero) {
		p = simBasePrice
	}
	s.last[asset] = p
	return p, nil
}
