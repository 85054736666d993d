package settlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"crash-server/common"
	"crash-server/common/constant"
	"crash-server/common/helper"
	"crash-server/internal/config"
	"crash-server/internal/metrics"
	"crash-server/internal/model"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// 处理充值入账业务逻辑

// Callback 支付网关回调参数（验签后的业务字段）
type Callback struct {
	OrderNo   string
	TradeNo   string
	Amount    decimal.Decimal
	PayTimeMs int64 // 网关支付时间，0 则取当前时间
	TraceID   string
}

// Result 入账结果
// Processed=false 表示订单此前已完成（幂等回放），余额为当时记录值
type Result struct {
	Processed     bool
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
}

var (
	ErrOrderNotFound    = errors.New("recharge order not found")
	ErrOrderClosed      = errors.New("recharge order already closed")
	ErrAmountMismatch   = errors.New("callback amount mismatch")
	ErrDailyCapExceeded = errors.New("daily recharge cap exceeded")
)

// 默认事务超时时间，防止长事务占用资源影响并发（若上游已有 deadline，则沿用上游）
const defaultTxTimeout = 3 * time.Second

// 日充值上限默认值（整元），可由 thresholds.daily_recharge_cap 覆盖
const defaultDailyCapUnits = 50000

type Service interface {
	CompleteRechargeOrder(ctx context.Context, cb Callback) (*Result, error)
}

type service struct {
	db *sqlx.DB
}

func NewService(db *sqlx.DB) Service { return &service{db: db} }

// CompleteRechargeOrder 充值入账主流程：
// 1) 事务外快速校验日限额（省一次加锁事务）
// 2) 串行化事务内：锁单 -> 幂等判定 -> 金额核对 -> 限额复核 -> 加款 -> 翻转订单 -> 账本 -> outbox
func (s *service) CompleteRechargeOrder(ctx context.Context, cb Callback) (*Result, error) {

	start := time.Now()
	result := "fail"
	defer func() { metrics.RecordSettlement(result, start) }()

	fmt.Printf("[Recharge]  收到入账回调: order_no=%s, trade_no=%s, amount=%s, trace_id=%s\n",
		cb.OrderNo, cb.TradeNo, cb.Amount.String(), cb.TraceID)

	if cb.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrAmountMismatch
	}

	txCtx := ctx
	if _, has := ctx.Deadline(); !has {
		c, cancel := context.WithTimeout(ctx, defaultTxTimeout)
		txCtx = c
		defer cancel()
	}

	// ========== 事务外快速拒绝 ==========
	// 非权威检查：并发窗口内可能放过临界请求，事务内会再查一次
	// ==================================
	order, err := model.GetRechargeOrderByNo(txCtx, s.db, cb.OrderNo)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	dayCap := s.dailyCap()
	dayStart, dayEnd := common.GetTodayRangeMs(time.Now())
	sum, err := model.SumCompletedRechargeInRange(txCtx, s.db, order.UserID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	if sum.Add(cb.Amount).GreaterThan(dayCap) {
		fmt.Printf("[Recharge]  日限额快速拒绝: order_no=%s, user_id=%d, today_sum=%s, amount=%s, cap=%s, trace_id=%s\n",
			cb.OrderNo, order.UserID, sum.String(), cb.Amount.String(), dayCap.String(), cb.TraceID)
		return nil, ErrDailyCapExceeded
	}

	// ========== 串行化事务：权威路径 ==========
	tx, err := s.db.BeginTxx(txCtx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	locked, err := model.GetRechargeOrderByNoForUpdate(txCtx, tx, cb.OrderNo)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	switch locked.Status {
	case model.RechargeStatusPending:
		// 继续入账
	case model.RechargeStatusCompleted:
		// 幂等回放：返回当时记录的前后余额，不做任何变更
		fmt.Printf("[Recharge]  重复回调，幂等返回: order_no=%s, trade_no=%s, trace_id=%s\n",
			cb.OrderNo, locked.TradeNo, cb.TraceID)
		result = "replay"
		return &Result{Processed: false, BalanceBefore: locked.BalanceBefore, BalanceAfter: locked.BalanceAfter}, nil
	default:
		return nil, ErrOrderClosed
	}

	// 金额核对：decimal 精确比较，不符则仅置位标记并留痕，订单保持 pending 待人工
	if !locked.Amount.Equal(cb.Amount) {
		fmt.Printf("[Recharge]  回调金额不符: order_no=%s, order_amount=%s, callback_amount=%s, trace_id=%s\n",
			cb.OrderNo, locked.Amount.String(), cb.Amount.String(), cb.TraceID)
		if err := model.FlagRechargeMismatch(txCtx, tx, cb.OrderNo, cb.TradeNo); err != nil {
			return nil, err
		}
		if err := model.CreateOutbox(txCtx, tx, "recharge_mismatch", cb.OrderNo, map[string]any{
			"event":           "recharge_amount_mismatch",
			"order_no":        cb.OrderNo,
			"trade_no":        cb.TradeNo,
			"order_amount":    locked.Amount.String(),
			"callback_amount": cb.Amount.String(),
		}); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		result = "mismatch"
		return nil, ErrAmountMismatch
	}

	// 日限额复核（权威）：锁内统计今日已入账总额
	sum, err = model.SumCompletedRechargeInRange(txCtx, tx, locked.UserID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	if sum.Add(cb.Amount).GreaterThan(dayCap) {
		fmt.Printf("[Recharge]  日限额超限（事务内复核）: order_no=%s, user_id=%d, today_sum=%s, amount=%s, cap=%s, trace_id=%s\n",
			cb.OrderNo, locked.UserID, sum.String(), cb.Amount.String(), dayCap.String(), cb.TraceID)
		return nil, ErrDailyCapExceeded
	}

	// 赠送档位：满足门槛的最高档
	bonus, err := s.bonusFor(txCtx, tx, cb.Amount)
	if err != nil {
		return nil, err
	}

	user, err := model.GetUserByIDForUpdate(txCtx, tx, locked.UserID)
	if err != nil {
		return nil, err
	}

	before := user.RealBalance
	after := before.Add(cb.Amount).Add(bonus)

	if err := model.UpdateUserBalance(txCtx, tx, user.ID, constant.ModeReal, after); err != nil {
		return nil, err
	}

	payTime := cb.PayTimeMs
	if payTime == 0 {
		payTime = time.Now().UnixMilli()
	}
	rows, err := model.MarkRechargeCompleted(txCtx, tx, cb.OrderNo, cb.TradeNo, payTime, bonus, before, after)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		// FOR UPDATE 锁内状态不可能变化，0 行意味着订单被并发改写
		return nil, ErrOrderClosed
	}

	// 账本：充值本金与赠送分开两条，便于对账
	ledger := &model.BalanceLog{
		UserID:        user.ID,
		ChangeType:    constant.ChangeTypeRecharge,
		Mode:          constant.ModeReal,
		Amount:        cb.Amount,
		BalanceBefore: before,
		BalanceAfter:  before.Add(cb.Amount),
		RefNo:         cb.OrderNo,
		Remark:        "recharge credit",
		TraceID:       cb.TraceID,
	}
	if err := ledger.Insert(txCtx, tx); err != nil {
		return nil, err
	}
	if bonus.IsPositive() {
		bonusLog := &model.BalanceLog{
			UserID:        user.ID,
			ChangeType:    constant.ChangeTypeRechargeBonus,
			Mode:          constant.ModeReal,
			Amount:        bonus,
			BalanceBefore: before.Add(cb.Amount),
			BalanceAfter:  after,
			RefNo:         cb.OrderNo,
			Remark:        "recharge bonus",
			TraceID:       cb.TraceID,
		}
		if err := bonusLog.Insert(txCtx, tx); err != nil {
			return nil, err
		}
	}

	if err := model.CreateOutbox(txCtx, tx, "recharge_completed", cb.OrderNo, map[string]any{
		"event":    "recharge_completed",
		"order_no": cb.OrderNo,
		"trade_no": cb.TradeNo,
		"user_id":  user.ID,
		"amount":   cb.Amount.String(),
		"bonus":    bonus.String(),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	result = "success"
	fmt.Printf("[Recharge]  入账完成: order_no=%s, user_id=%d, amount=%s, bonus=%s, balance=%s->%s, trace_id=%s\n",
		cb.OrderNo, user.ID, cb.Amount.String(), bonus.String(), before.String(), after.String(), cb.TraceID)

	return &Result{Processed: true, BalanceBefore: before, BalanceAfter: after}, nil
}

// dailyCap 读取日充值上限（整元阈值转 decimal）
func (s *service) dailyCap() decimal.Decimal {
	units := config.GetThreshold("daily_recharge_cap", defaultDailyCapUnits)
	return decimal.NewFromInt(units)
}

// bonusFor 计算赠送金额：命中 amount >= min_amount 的最高档，按百分比计提两位小数
// 赠送活动由开关控制，未开启时一律零赠送
func (s *service) bonusFor(ctx context.Context, exec sqlx.ExtContext, amount decimal.Decimal) (decimal.Decimal, error) {
	if !config.GetFeatureFlag("recharge_bonus") {
		return decimal.Zero, nil
	}
	tiers, err := model.ListActiveRechargeTiers(ctx, exec)
	if err != nil {
		return decimal.Zero, err
	}
	return PickBonus(tiers, amount), nil
}

// PickBonus 纯函数：档位已按 min_amount 降序，命中第一个满足门槛的档位
func PickBonus(tiers []model.RechargeConfig, amount decimal.Decimal) decimal.Decimal {
	for _, t := range tiers {
		if amount.GreaterThanOrEqual(t.MinAmount) {
			return helper.PercentOf(amount, t.BonusPercent)
		}
	}
	return decimal.Zero
}
