package model

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// RechargeConfig 对应 recharge_config 表（充值赠送档位）
// 命中规则：取满足 amount >= min_amount 的最高档位
type RechargeConfig struct {
	ID           int64           `db:"id"`
	MinAmount    decimal.Decimal `db:"min_amount"`
	BonusPercent decimal.Decimal `db:"bonus_percent"`
	Enabled      int8            `db:"enabled"`
	CreatedAt    int64           `db:"created_at"`
	UpdatedAt    int64           `db:"updated_at"`
}

// ListActiveRechargeTiers 列出启用中的赠送档位（按门槛从高到低）
func ListActiveRechargeTiers(ctx context.Context, exec sqlx.ExtContext) ([]RechargeConfig, error) {
	sqlStr := `SELECT id, min_amount, bonus_percent, enabled, created_at, updated_at
		FROM recharge_config WHERE enabled = 1 ORDER BY min_amount DESC`
	var tiers []RechargeConfig
	if err := sqlx.SelectContext(ctx, exec, &tiers, sqlStr); err != nil {
		return nil, err
	}
	return tiers, nil
}
