package model

import (
	"context"
	"time"

	"crash-server/common"

	g "github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// HousePool 对应 house_pool 表（按资产分池的平台资金）
// version 用于乐观并发控制：每次余额变更 version+1，更新语句携带期望版本
type HousePool struct {
	ID        int64           `db:"id"`
	Asset     string          `db:"asset"`
	Balance   decimal.Decimal `db:"balance"`
	Version   int64           `db:"version"`
	CreatedAt int64           `db:"created_at"`
	UpdatedAt int64           `db:"updated_at"`
}

// GetPool 按资产查询资金池（不加锁，版本快照用于 CAS）
func GetPool(ctx context.Context, exec sqlx.ExtContext, asset string) (*HousePool, error) {
	sqlStr := `SELECT id, asset, balance, version, created_at, updated_at
		FROM house_pool WHERE asset = ? LIMIT 1`
	var pool HousePool
	if err := sqlx.GetContext(ctx, exec, &pool, sqlStr, asset); err != nil {
		return nil, err
	}
	return &pool, nil
}

// GetPoolForUpdate 按资产查询资金池并加锁，签名限定事务句柄
func GetPoolForUpdate(ctx context.Context, tx *sqlx.Tx, asset string) (*HousePool, error) {
	var pool HousePool
	err := common.SelectOneTxCtx(ctx, tx, &pool, "house_pool",
		common.EnumFields(HousePool{}), g.Ex{"asset": asset}, true)
	if err != nil {
		return nil, err
	}
	return &pool, nil
}

// InsertPool 初始化资金池（唯一键 asset，并发初始化由上层按 1062 处理）
func InsertPool(ctx context.Context, exec sqlx.ExtContext, asset string, balance decimal.Decimal) error {
	now := time.Now().UnixMilli()
	sqlStr := `INSERT INTO house_pool (asset, balance, version, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?)`
	_, err := exec.ExecContext(ctx, sqlStr, asset, balance, now, now)
	return err
}

// CASUpdatePool 版本比对更新：仅当 version 仍为期望值时写入新余额并递增版本
// 返回实际更新行数，0 表示版本已被并发推进（调用方重试）
func CASUpdatePool(ctx context.Context, exec sqlx.ExtContext, asset string, newBalance decimal.Decimal, expectVersion int64) (int64, error) {
	now := time.Now().UnixMilli()
	sqlStr := `UPDATE house_pool SET balance = ?, version = version + 1, updated_at = ?
		WHERE asset = ? AND version = ?`
	res, err := exec.ExecContext(ctx, sqlStr, newBalance, now, asset, expectVersion)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// 资金池流水原因码
const (
	PoolReasonInit     = 1 // 初始注资
	PoolReasonBetStake = 2 // 真实注单入池
	PoolReasonPayout   = 3 // 逃离派彩出池
	PoolReasonRefund   = 4 // 回合取消退款出池
	PoolReasonAdjust   = 5 // 人工调整
)

func poolReasonToStr(c int8) string {
	switch c {
	case PoolReasonInit:
		return "init"
	case PoolReasonBetStake:
		return "bet_stake"
	case PoolReasonPayout:
		return "payout"
	case PoolReasonRefund:
		return "refund"
	case PoolReasonAdjust:
		return "adjust"
	default:
		return ""
	}
}

// HousePoolLog 对应 house_pool_log 表（资金池流水，原因码与字符串双写）
type HousePoolLog struct {
	ID            int64           `db:"id"`
	Asset         string          `db:"asset"`
	Amount        decimal.Decimal `db:"amount"` // 带符号，入池为正出池为负
	BalanceBefore decimal.Decimal `db:"balance_before"`
	BalanceAfter  decimal.Decimal `db:"balance_after"`
	VersionAfter  int64           `db:"version_after"`
	Reason        int8            `db:"reason"`
	ReasonStr     string          `db:"reason_str"`
	RefNo         string          `db:"ref_no"`
	TraceID       string          `db:"trace_id"`
	CreatedAt     int64           `db:"created_at"`
}

// Insert 新增一条资金池流水
func (l *HousePoolLog) Insert(ctx context.Context, exec sqlx.ExtContext) error {
	now := time.Now().UnixMilli()
	str := l.ReasonStr
	if str == "" {
		str = poolReasonToStr(l.Reason)
	}
	sqlStr := `INSERT INTO house_pool_log (asset, amount, balance_before, balance_after, version_after,
		reason, reason_str, ref_no, trace_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args := []interface{}{l.Asset, l.Amount, l.BalanceBefore, l.BalanceAfter, l.VersionAfter,
		l.Reason, str, l.RefNo, l.TraceID, now}

	_, err := exec.ExecContext(ctx, sqlStr, args...)
	return err
}
