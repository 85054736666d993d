package helper

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func TestTrimDecimalRoundsHalfUp(t *testing.T) {
	cases := []struct{ in, want string }{
		{"3", "3.00"},
		{"1.004", "1.00"},
		{"1.005", "1.01"},
		{"2.675", "2.68"},
		{"-1.005", "-1.01"},
	}
	for _, c := range cases {
		if got := TrimDecimal(dec(c.in)); got != c.want {
			t.Fatalf("TrimDecimal(%s) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestMulFixed2(t *testing.T) {
	// 派彩 = 本金 × 倍数，保留两位
	cases := []struct{ a, b, want string }{
		{"100", "1.97", "197"},
		{"33.33", "2.4", "79.99"},
		{"0.01", "1.5", "0.02"},
	}
	for _, c := range cases {
		if got := MulFixed2(dec(c.a), dec(c.b)); !got.Equal(dec(c.want)) {
			t.Fatalf("MulFixed2(%s, %s) = %s, want %s", c.a, c.b, got.String(), c.want)
		}
	}
}

func TestIsMoneyScale(t *testing.T) {
	for _, s := range []string{"10", "10.1", "10.12", "0"} {
		if !IsMoneyScale(dec(s)) {
			t.Fatalf("%s should pass scale check", s)
		}
	}
	for _, s := range []string{"10.123", "0.001"} {
		if IsMoneyScale(dec(s)) {
			t.Fatalf("%s should fail scale check", s)
		}
	}
}

func TestPercentOf(t *testing.T) {
	if got := PercentOf(dec("700"), dec("8")); !got.Equal(dec("56")) {
		t.Fatalf("PercentOf(700, 8) = %s, want 56", got.String())
	}
	if got := PercentOf(dec("149.99"), dec("7.5")); !got.Equal(dec("11.25")) {
		t.Fatalf("PercentOf(149.99, 7.5) = %s, want 11.25", got.String())
	}
}
