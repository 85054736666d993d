package pool

import (
	"context"
	"testing"

	"crash-server/internal/model"

	"github.com/shopspring/decimal"
)

// 入参校验必须先于任何存储访问失败，因此用 nil 句柄即可覆盖

func TestInitializeRejectsBadInput(t *testing.T) {
	s := NewService(nil, nil)
	if _, err := s.Initialize(context.Background(), "", decimal.NewFromInt(100)); err == nil {
		t.Fatalf("empty asset should fail")
	}
	if _, err := s.Initialize(context.Background(), "BTC", decimal.NewFromInt(-1)); err == nil {
		t.Fatalf("negative starting balance should fail")
	}
}

func TestApplyDeltaRejectsBadInput(t *testing.T) {
	s := NewService(nil, nil)
	if _, _, err := s.ApplyDelta(context.Background(), "", decimal.NewFromInt(10), model.PoolReasonBetStake, "ref", "trace"); err == nil {
		t.Fatalf("empty asset should fail")
	}
	if _, _, err := s.ApplyDelta(context.Background(), "BTC", decimal.Zero, model.PoolReasonBetStake, "ref", "trace"); err == nil {
		t.Fatalf("zero delta should fail")
	}
}

func TestApplyDeltaTxRejectsBadInput(t *testing.T) {
	s := NewService(nil, nil)
	if _, _, err := s.ApplyDeltaTx(context.Background(), nil, "", decimal.NewFromInt(10), model.PoolReasonBetStake, "ref", "trace"); err == nil {
		t.Fatalf("empty asset should fail")
	}
	if _, _, err := s.ApplyDeltaTx(context.Background(), nil, "BTC", decimal.Zero, model.PoolReasonPayout, "ref", "trace"); err == nil {
		t.Fatalf("zero delta should fail")
	}
}
