package driver

import (
	"testing"
	"time"

	decimal "github.com/shopspring/decimal"
)

func TestDeriveCrashPointInstantCrash(t *testing.T) {
	edge := 0.03
	one := decimal.NewFromInt(1)
	for _, u := range []float64{0, 0.001, 0.0299} {
		if got := deriveCrashPoint(u, edge); !got.Equal(one) {
			t.Fatalf("u=%v: got %s, want 1", u, got.String())
		}
	}
}

func TestDeriveCrashPointDistribution(t *testing.T) {
	edge := 0.03
	cases := []struct {
		u    float64
		want string
	}{
		// m = (1-edge)/(1-u)，向下保留两位
		{0.03, "1"},
		{0.5, "1.94"},
		{0.75, "3.88"},
		{0.875, "7.76"},
	}
	for _, c := range cases {
		got := deriveCrashPoint(c.u, edge)
		want, _ := decimal.NewFromString(c.want)
		if !got.Equal(want) {
			t.Fatalf("u=%v: got %s, want %s", c.u, got.String(), c.want)
		}
	}

	// 长尾区间只校验范围，避免浮点边界
	tail := deriveCrashPoint(0.99, edge)
	lo, _ := decimal.NewFromString("96.5")
	hi, _ := decimal.NewFromString("97.5")
	if tail.LessThan(lo) || tail.GreaterThan(hi) {
		t.Fatalf("u=0.99: got %s, want ~97", tail.String())
	}
}

func TestDeriveCrashPointNeverBelowOne(t *testing.T) {
	one := decimal.NewFromInt(1)
	for _, edge := range []float64{0.01, 0.03, 0.1} {
		for u := 0.0; u < 1.0; u += 0.01 {
			if got := deriveCrashPoint(u, edge); got.LessThan(one) {
				t.Fatalf("edge=%v u=%v: got %s below 1", edge, u, got.String())
			}
		}
	}
	// 边界随机数不得除零
	if got := deriveCrashPoint(1.0, 0.03); got.LessThan(one) {
		t.Fatalf("u=1: got %s below 1", got.String())
	}
}

func TestGrowMultiplierMonotonic(t *testing.T) {
	rate := 0.06
	prev := decimal.Zero
	for _, sec := range []int{0, 1, 5, 10, 30, 60} {
		got := growMultiplier(time.Duration(sec)*time.Second, rate)
		if got.LessThan(prev) {
			t.Fatalf("t=%ds: %s not monotonic (prev %s)", sec, got.String(), prev.String())
		}
		prev = got
	}
	if got := growMultiplier(0, rate); !got.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("t=0: got %s, want 1", got.String())
	}
}

func TestConfigNormalize(t *testing.T) {
	var c Config
	c.normalize()
	if c.BetWindow <= 0 || c.RoundGap <= 0 || c.Tick <= 0 {
		t.Fatalf("normalize left zero durations: %+v", c)
	}
	if c.HouseEdge <= 0 || c.HouseEdge >= 1 {
		t.Fatalf("normalize left invalid house edge: %v", c.HouseEdge)
	}
	if c.MaxMultiplier < 1 {
		t.Fatalf("normalize left invalid max multiplier: %v", c.MaxMultiplier)
	}

	// 合法配置不得被覆盖
	c2 := Config{BetWindow: 8 * time.Second, HouseEdge: 0.05}
	c2.normalize()
	if c2.BetWindow != 8*time.Second || c2.HouseEdge != 0.05 {
		t.Fatalf("normalize overwrote valid values: %+v", c2)
	}
}
