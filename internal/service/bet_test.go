package service

import (
	"regexp"
	"strings"
	"testing"
)

// 单号结构：前缀2 + 日期时间14 + 用户ID后4位 + 随机3位十六进制
var billNoRe = regexp.MustCompile(`^[A-Z]{2}\d{18}[0-9A-F]{3}$`)

func TestGenerateBillNoFormat(t *testing.T) {
	for _, prefix := range []string{"CR", "RC"} {
		no := generateBillNo(prefix, 987654321)
		if !strings.HasPrefix(no, prefix) {
			t.Fatalf("missing prefix %s: %s", prefix, no)
		}
		if len(no) != 23 {
			t.Fatalf("unexpected length %d: %s", len(no), no)
		}
		if !billNoRe.MatchString(no) {
			t.Fatalf("unexpected format: %s", no)
		}
		if no[16:20] != "4321" {
			t.Fatalf("user suffix mismatch: %s", no)
		}
	}
}

func TestGenerateBillNoPadsShortUserID(t *testing.T) {
	no := generateBillNo("CR", 7)
	if no[16:20] != "0007" {
		t.Fatalf("user suffix not zero padded: %s", no)
	}
}
