package helper

import (
	"strings"
	"testing"
)

func TestIsMoneyFormat(t *testing.T) {
	valid := []string{"0", "1", "10", "0.5", "0.50", "123.45", " 20 ", "999999"}
	for _, s := range valid {
		if !IsMoneyFormat(s) {
			t.Fatalf("%q should be accepted", s)
		}
	}
	invalid := []string{"", "-1", "1.234", "01", "00.5", ".5", "1.", "1,00", "abc", "1e3", "+1"}
	for _, s := range invalid {
		if IsMoneyFormat(s) {
			t.Fatalf("%q should be rejected", s)
		}
	}
}

func TestValidateBet(t *testing.T) {
	ok := BetParsed{RoundID: "R1", Amount: "10.50", IdempotencyKey: "k-1"}
	if valid, msg := ValidateBet(&ok); !valid {
		t.Fatalf("valid bet rejected: %s", msg)
	}
	withAuto := BetParsed{RoundID: "R1", Amount: "10", AutoCashout: "2.50", IdempotencyKey: "k"}
	if valid, msg := ValidateBet(&withAuto); !valid {
		t.Fatalf("bet with auto_cashout rejected: %s", msg)
	}

	bad := []BetParsed{
		{Amount: "10", IdempotencyKey: "k"},
		{RoundID: "R1", IdempotencyKey: "k"},
		{RoundID: "R1", Amount: "10"},
		{RoundID: strings.Repeat("a", 65), Amount: "10", IdempotencyKey: "k"},
		{RoundID: "R1", Amount: "10", IdempotencyKey: strings.Repeat("k", 65)},
		{RoundID: "R1", Amount: "10", Mode: 2, IdempotencyKey: "k"},
		{RoundID: "R1", Amount: "1.234", IdempotencyKey: "k"},
		{RoundID: "R1", Amount: "10", AutoCashout: "abc", IdempotencyKey: "k"},
	}
	for i, b := range bad {
		if valid, _ := ValidateBet(&b); valid {
			t.Fatalf("case %d should be rejected: %+v", i, b)
		}
	}
}

func TestValidateCashout(t *testing.T) {
	in := CashoutParsed{BillNo: "  CR20250101000000000112A "}
	if valid, msg := ValidateCashout(&in); !valid {
		t.Fatalf("valid bill_no rejected: %s", msg)
	}
	if in.BillNo != "CR20250101000000000112A" {
		t.Fatalf("bill_no not trimmed: %q", in.BillNo)
	}

	empty := CashoutParsed{BillNo: "   "}
	if valid, _ := ValidateCashout(&empty); valid {
		t.Fatal("blank bill_no should be rejected")
	}
	long := CashoutParsed{BillNo: strings.Repeat("x", 65)}
	if valid, _ := ValidateCashout(&long); valid {
		t.Fatal("oversized bill_no should be rejected")
	}
}

func TestParseRechargeCallbackSuccess(t *testing.T) {
	body := []byte(`{"order_no":"RC1","trade_no":"T1","amount":"100.50","status":"SUCCESS","pay_time_ms":1735790400000}`)
	out, ok, msg := ParseRechargeCallback(body)
	if !ok {
		t.Fatalf("parse failed: %s", msg)
	}
	if out.Status != "success" {
		t.Fatalf("status not normalized: %s", out.Status)
	}
	if out.PayTimeMs != 1735790400000 {
		t.Fatalf("pay_time_ms overwritten: %d", out.PayTimeMs)
	}
}

func TestParseRechargeCallbackLegacyPayTime(t *testing.T) {
	// 旧版网关只给字符串时间，解析后补到 pay_time_ms
	body := []byte(`{"order_no":"RC1","trade_no":"T1","amount":"10","status":"success","pay_time":"2025-01-02 03:04:05"}`)
	out, ok, msg := ParseRechargeCallback(body)
	if !ok {
		t.Fatalf("parse failed: %s", msg)
	}
	if out.PayTimeMs == 0 {
		t.Fatal("legacy pay_time should populate pay_time_ms")
	}

	// 两种时间都缺省时保持 0，入账流程会取当前时间
	out, ok, _ = ParseRechargeCallback([]byte(`{"order_no":"RC1","amount":"10","status":"success"}`))
	if !ok || out.PayTimeMs != 0 {
		t.Fatalf("expected zero pay_time_ms, got %d", out.PayTimeMs)
	}
}

func TestParseRechargeCallbackRejects(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad json", `{"order_no":`},
		{"missing order_no", `{"status":"success","amount":"10"}`},
		{"order_no too long", `{"order_no":"` + strings.Repeat("x", 65) + `","status":"success","amount":"10"}`},
		{"unknown status", `{"order_no":"RC1","status":"pending","amount":"10"}`},
		{"bad amount on success", `{"order_no":"RC1","status":"success","amount":"1.234"}`},
	}
	for _, c := range cases {
		if _, ok, _ := ParseRechargeCallback([]byte(c.body)); ok {
			t.Fatalf("%s should be rejected", c.name)
		}
	}

	// fail 回调可以不带金额
	if _, ok, msg := ParseRechargeCallback([]byte(`{"order_no":"RC1","status":"fail"}`)); !ok {
		t.Fatalf("fail callback without amount rejected: %s", msg)
	}
}
