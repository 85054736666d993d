package model

import (
	"context"
	"time"

	"crash-server/common"

	g "github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// 充值订单状态码
const (
	RechargeStatusPending   = 1 // 已下单，等待网关回调
	RechargeStatusCompleted = 2 // 已到账
	RechargeStatusFailed    = 3 // 失败（含金额不符）
	RechargeStatusExpired   = 4 // 超时关单
)

// RechargeOrder 对应 recharge_orders 表
// status: 1=pending 2=completed 3=failed 4=expired
// amount_mismatch: 回调金额与订单金额不符时置 1，订单保持 pending 留待人工核对
type RechargeOrder struct {
	ID             int64           `db:"id"`              // 自增ID
	OrderNo        string          `db:"order_no"`        // 商户订单号（唯一）
	UserID         int64           `db:"user_id"`         // 用户ID
	Amount         decimal.Decimal `db:"amount"`          // 充值金额
	BonusAmount    decimal.Decimal `db:"bonus_amount"`    // 赠送金额
	Status         int8            `db:"status"`          // 状态
	TradeNo        string          `db:"trade_no"`        // 网关流水号
	Channel        string          `db:"channel"`         // 支付渠道
	PayTime        int64           `db:"pay_time"`        // 支付时间（毫秒时间戳）
	BalanceBefore  decimal.Decimal `db:"balance_before"`  // 入账前余额
	BalanceAfter   decimal.Decimal `db:"balance_after"`   // 入账后余额
	AmountMismatch int8            `db:"amount_mismatch"` // 金额不符标记
	TraceID        string          `db:"trace_id"`        // 链路追踪ID
	CreatedAt      int64           `db:"created_at"`      // 创建时间
	UpdatedAt      int64           `db:"updated_at"`      // 更新时间
}

// Insert 创建充值订单（状态 pending）
func (o *RechargeOrder) Insert(ctx context.Context, exec sqlx.ExtContext) error {
	now := time.Now().UnixMilli()
	o.CreatedAt = now
	o.UpdatedAt = now

	sqlStr := `INSERT INTO recharge_orders (order_no, user_id, amount, bonus_amount, status, channel, trace_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := exec.ExecContext(ctx, sqlStr, o.OrderNo, o.UserID, o.Amount, o.BonusAmount,
		RechargeStatusPending, o.Channel, o.TraceID, now, now)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	o.ID = id
	return nil
}

// GetRechargeOrderByNo 按订单号查询（不加锁）
func GetRechargeOrderByNo(ctx context.Context, exec sqlx.ExtContext, orderNo string) (*RechargeOrder, error) {
	sqlStr := `SELECT id, order_no, user_id, amount, bonus_amount, status, trade_no, channel, pay_time,
		balance_before, balance_after, amount_mismatch, trace_id, created_at, updated_at
		FROM recharge_orders WHERE order_no = ? LIMIT 1`
	var order RechargeOrder
	if err := sqlx.GetContext(ctx, exec, &order, sqlStr, orderNo); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetRechargeOrderByNoForUpdate 按订单号查询并加锁，必须在事务中调用
func GetRechargeOrderByNoForUpdate(ctx context.Context, exec sqlx.ExtContext, orderNo string) (*RechargeOrder, error) {
	sqlStr := `SELECT id, order_no, user_id, amount, bonus_amount, status, trade_no, channel, pay_time,
		balance_before, balance_after, amount_mismatch, trace_id, created_at, updated_at
		FROM recharge_orders WHERE order_no = ? FOR UPDATE`
	var order RechargeOrder
	if err := sqlx.GetContext(ctx, exec, &order, sqlStr, orderNo); err != nil {
		return nil, err
	}
	return &order, nil
}

// MarkRechargeCompleted 条件更新：仅 pending 订单可完成入账
// 返回实际更新行数，0 表示订单已被并发处理
func MarkRechargeCompleted(ctx context.Context, exec sqlx.ExtContext, orderNo, tradeNo string,
	payTimeMs int64, bonus, balanceBefore, balanceAfter decimal.Decimal) (int64, error) {
	now := time.Now().UnixMilli()
	sqlStr := `UPDATE recharge_orders SET status = ?, trade_no = ?, pay_time = ?, bonus_amount = ?,
		balance_before = ?, balance_after = ?, updated_at = ?
		WHERE order_no = ? AND status = ?`
	res, err := exec.ExecContext(ctx, sqlStr, RechargeStatusCompleted, tradeNo, payTimeMs, bonus,
		balanceBefore, balanceAfter, now, orderNo, RechargeStatusPending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkRechargeFailed 条件更新：仅 pending 订单可转失败（网关明确失败/关单）
func MarkRechargeFailed(ctx context.Context, exec sqlx.ExtContext, orderNo, tradeNo string) (int64, error) {
	now := time.Now().UnixMilli()
	sqlStr := `UPDATE recharge_orders SET status = ?, trade_no = ?, updated_at = ?
		WHERE order_no = ? AND status = ?`
	res, err := exec.ExecContext(ctx, sqlStr, RechargeStatusFailed, tradeNo, now, orderNo, RechargeStatusPending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// FlagRechargeMismatch 标记金额不符：仅置位 amount_mismatch 并保留网关流水号，
// 订单状态不变，留待人工对账
func FlagRechargeMismatch(ctx context.Context, exec sqlx.ExtContext, orderNo, tradeNo string) error {
	now := time.Now().UnixMilli()
	sqlStr := `UPDATE recharge_orders SET amount_mismatch = 1, trade_no = ?, updated_at = ?
		WHERE order_no = ?`
	_, err := exec.ExecContext(ctx, sqlStr, tradeNo, now, orderNo)
	return err
}

// SumCompletedRechargeInRange 统计用户在 [fromMs, toMs) 内已完成的充值总额（不含赠送）
// 入账时的日限额复核用，pay_time 为入账时间
func SumCompletedRechargeInRange(ctx context.Context, exec sqlx.ExtContext, userID int64, fromMs, toMs int64) (decimal.Decimal, error) {
	return common.SumDecimalCtx(ctx, exec, "recharge_orders", "amount", g.Ex{
		"user_id":  userID,
		"status":   RechargeStatusCompleted,
		"pay_time": g.Op{"gte": fromMs, "lt": toMs},
	})
}

// SumCountedRechargeInRange 统计占用日限额的充值总额：已入账订单按支付时间计入，
// 在途订单按下单时间计入（超时关单后自动释放额度）
func SumCountedRechargeInRange(ctx context.Context, exec sqlx.ExtContext, userID int64, fromMs, toMs int64) (decimal.Decimal, error) {
	return common.SumDecimalCtx(ctx, exec, "recharge_orders", "amount",
		g.Ex{"user_id": userID},
		g.Or(
			g.Ex{"status": RechargeStatusCompleted, "pay_time": g.Op{"gte": fromMs, "lt": toMs}},
			g.Ex{"status": RechargeStatusPending, "created_at": g.Op{"gte": fromMs, "lt": toMs}},
		))
}

// ExpireStaleRechargeOrders 批量关闭超时未支付的订单
// 仅处理 pending 状态，已入账/已失败的订单不受影响
func ExpireStaleRechargeOrders(ctx context.Context, exec sqlx.ExtContext, olderThanMs int64) (int64, error) {
	now := time.Now().UnixMilli()
	sqlStr := `UPDATE recharge_orders SET status = ?, updated_at = ?
		WHERE status = ? AND created_at < ?`
	res, err := exec.ExecContext(ctx, sqlStr, RechargeStatusExpired, now, RechargeStatusPending, olderThanMs)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
