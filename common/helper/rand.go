package helper

import (
	"sync"
	"time"

	"golang.org/x/exp/rand"
)

var (
	rngOnce sync.Once
	rng     *rand.Rand
	rngMu   sync.Mutex
)

func globalRng() *rand.Rand {
	rngOnce.Do(func() {
		rng = rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
	})
	return rng
}

func GenerateRandNum(min, max int) int {
	rngMu.Lock()
	defer rngMu.Unlock()
	return min + globalRng().Intn(max-min)
}

// RandFloat64 返回 [0,1) 区间的随机数，崩盘点推导使用
func RandFloat64() float64 {
	rngMu.Lock()
	defer rngMu.Unlock()
	return globalRng().Float64()
}

// RandJitterMs 返回 [base, base+spread) 毫秒级抖动，避免多实例同刻争抢
func RandJitterMs(base, spread int) time.Duration {
	if spread <= 0 {
		return time.Duration(base) * time.Millisecond
	}
	return time.Duration(GenerateRandNum(base, base+spread)) * time.Millisecond
}
