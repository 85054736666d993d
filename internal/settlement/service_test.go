package settlement

import (
	"testing"

	"crash-server/internal/model"

	decimal "github.com/shopspring/decimal"
)

func tier(min, percent string) model.RechargeConfig {
	m, _ := decimal.NewFromString(min)
	p, _ := decimal.NewFromString(percent)
	return model.RechargeConfig{MinAmount: m, BonusPercent: p, Enabled: 1}
}

func TestPickBonusHitsHighestTier(t *testing.T) {
	// 档位按 min_amount 降序传入，与 ListActiveRechargeTiers 的返回序一致
	tiers := []model.RechargeConfig{
		tier("1000", "10"),
		tier("500", "8"),
		tier("100", "5"),
	}
	cases := []struct {
		amount string
		want   string
	}{
		{"99.99", "0"},
		{"100", "5"},
		{"499.99", "25"}, // 24.9995 四舍五入到两位
		{"500", "40"},
		{"700", "56"},
		{"1000", "100"},
		{"2500", "250"},
	}
	for _, c := range cases {
		amt, _ := decimal.NewFromString(c.amount)
		want, _ := decimal.NewFromString(c.want)
		if got := PickBonus(tiers, amt); !got.Equal(want) {
			t.Fatalf("amount=%s: got %s, want %s", c.amount, got.String(), want.String())
		}
	}
}

func TestPickBonusNoTiers(t *testing.T) {
	amt := decimal.NewFromInt(10000)
	if got := PickBonus(nil, amt); !got.IsZero() {
		t.Fatalf("empty tiers: got %s, want 0", got.String())
	}
}
