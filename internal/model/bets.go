package model

import (
	"context"
	"time"

	"crash-server/common"

	g "github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// 注单状态码
const (
	BetStatusPending  = 1 // 等待结算（局未崩盘且未逃离）
	BetStatusWon      = 2 // 已逃离派彩
	BetStatusLost     = 3 // 崩盘未逃离
	BetStatusRefunded = 4 // 回合取消退款
)

// BetStatusToStr 注单状态描述
func BetStatusToStr(s int8) string {
	switch s {
	case BetStatusPending:
		return "pending"
	case BetStatusWon:
		return "won"
	case BetStatusLost:
		return "lost"
	case BetStatusRefunded:
		return "refunded"
	default:
		return ""
	}
}

// Bet 对应 bets 表
// 说明：金额为非负；auto_cashout 为 0 表示未设置自动逃离
// status: 1=pending 2=won 3=lost 4=refunded
type Bet struct {
	ID            int64           `db:"id"`             // 雪花ID
	BillNo        string          `db:"bill_no"`        // 注单号（唯一）
	UserID        int64           `db:"user_id"`        // 用户ID（内部ID）
	RoundID       string          `db:"round_id"`       // 回合ID
	Asset         string          `db:"asset"`          // 资产符号
	Amount        decimal.Decimal `db:"amount"`         // 下注金额(非负)
	Mode          int8            `db:"mode"`           // 资金模式: 0=real 1=play
	AutoCashout   decimal.Decimal `db:"auto_cashout"`   // 自动逃离倍率（0=未设置）
	Multiplier    decimal.Decimal `db:"multiplier"`     // 逃离/崩盘时的倍率
	Payout        decimal.Decimal `db:"payout"`         // 派彩金额
	Status        int8            `db:"status"`         // 注单状态
	BalanceBefore decimal.Decimal `db:"balance_before"` // 扣款前余额
	BalanceAfter  decimal.Decimal `db:"balance_after"`  // 扣款后余额
	TraceID       string          `db:"trace_id"`       // 链路追踪ID
	CreatedAt     int64           `db:"created_at"`     // 创建时间
	UpdatedAt     int64           `db:"updated_at"`     // 更新时间
}

// Insert 插入一条注单记录
func (b *Bet) Insert(ctx context.Context, exec sqlx.ExtContext) error {
	now := time.Now().UnixMilli()
	b.CreatedAt = now
	b.UpdatedAt = now

	sqlStr := `INSERT INTO bets (id, bill_no, user_id, round_id, asset, amount, mode, auto_cashout,
		multiplier, payout, status, balance_before, balance_after, trace_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := exec.ExecContext(ctx, sqlStr, b.ID, b.BillNo, b.UserID, b.RoundID, b.Asset, b.Amount, b.Mode,
		b.AutoCashout, b.Multiplier, b.Payout, b.Status, b.BalanceBefore, b.BalanceAfter, b.TraceID, now, now)
	return err
}

// GetBetByBillNo 按注单号查询
func GetBetByBillNo(ctx context.Context, exec sqlx.ExtContext, billNo string) (*Bet, error) {
	sqlStr := `SELECT id, bill_no, user_id, round_id, asset, amount, mode, auto_cashout,
		multiplier, payout, status, balance_before, balance_after, trace_id, created_at, updated_at
		FROM bets WHERE bill_no = ? LIMIT 1`
	var bet Bet
	if err := sqlx.GetContext(ctx, exec, &bet, sqlStr, billNo); err != nil {
		return nil, err
	}
	return &bet, nil
}

// GetBetByBillNoForUpdate 按注单号查询并加锁，必须在事务中调用
func GetBetByBillNoForUpdate(ctx context.Context, exec sqlx.ExtContext, billNo string) (*Bet, error) {
	sqlStr := `SELECT id, bill_no, user_id, round_id, asset, amount, mode, auto_cashout,
		multiplier, payout, status, balance_before, balance_after, trace_id, created_at, updated_at
		FROM bets WHERE bill_no = ? FOR UPDATE`
	var bet Bet
	if err := sqlx.GetContext(ctx, exec, &bet, sqlStr, billNo); err != nil {
		return nil, err
	}
	return &bet, nil
}

// MarkBetWon 条件更新：仅 pending 注单可标记为已逃离
// 返回实际更新行数，0 表示注单已被并发处理（重复逃离/已结算）
func MarkBetWon(ctx context.Context, exec sqlx.ExtContext, billNo string, multiplier, payout decimal.Decimal) (int64, error) {
	now := time.Now().UnixMilli()
	sqlStr := `UPDATE bets SET status = ?, multiplier = ?, payout = ?, updated_at = ?
		WHERE bill_no = ? AND status = ?`
	res, err := exec.ExecContext(ctx, sqlStr, BetStatusWon, multiplier, payout, now, billNo, BetStatusPending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkBetsLostByRound 批量条件更新：回合崩盘后将所有 pending 注单标记为 lost
// 返回实际更新行数
func MarkBetsLostByRound(ctx context.Context, exec sqlx.ExtContext, roundID string, crashMult decimal.Decimal) (int64, error) {
	now := time.Now().UnixMilli()
	sqlStr := `UPDATE bets SET status = ?, multiplier = ?, payout = 0, updated_at = ?
		WHERE round_id = ? AND status = ?`
	res, err := exec.ExecContext(ctx, sqlStr, BetStatusLost, crashMult, now, roundID, BetStatusPending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkBetRefunded 条件更新：仅 pending 注单可退款
// 返回实际更新行数，0 表示注单已被并发处理
func MarkBetRefunded(ctx context.Context, exec sqlx.ExtContext, betID int64) (int64, error) {
	now := time.Now().UnixMilli()
	sqlStr := `UPDATE bets SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	res, err := exec.ExecContext(ctx, sqlStr, BetStatusRefunded, now, betID, BetStatusPending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListPendingBetsByRound 列出回合内仍为 pending 的注单（恢复/取消流程，逐单独立事务处理，不加锁）
func ListPendingBetsByRound(ctx context.Context, exec sqlx.ExtContext, roundID string) ([]Bet, error) {
	sqlStr := `SELECT id, bill_no, user_id, round_id, asset, amount, mode, auto_cashout,
		multiplier, payout, status, balance_before, balance_after, trace_id, created_at, updated_at
		FROM bets WHERE round_id = ? AND status = ? ORDER BY id ASC`
	var bets []Bet
	if err := sqlx.SelectContext(ctx, exec, &bets, sqlStr, roundID, BetStatusPending); err != nil {
		return nil, err
	}
	return bets, nil
}

// ListAutoCashoutDue 列出已到达自动逃离倍率的 pending 注单
func ListAutoCashoutDue(ctx context.Context, exec sqlx.ExtContext, roundID string, mult decimal.Decimal) ([]Bet, error) {
	sqlStr := `SELECT id, bill_no, user_id, round_id, asset, amount, mode, auto_cashout,
		multiplier, payout, status, balance_before, balance_after, trace_id, created_at, updated_at
		FROM bets WHERE round_id = ? AND status = ? AND auto_cashout > 0 AND auto_cashout <= ?
		ORDER BY auto_cashout ASC`
	var bets []Bet
	if err := sqlx.SelectContext(ctx, exec, &bets, sqlStr, roundID, BetStatusPending, mult); err != nil {
		return nil, err
	}
	return bets, nil
}

// BetRecord 投注记录（用于查询接口）
type BetRecord struct {
	BillNo      string          `db:"bill_no" json:"bill_no"`           // 注单号
	RoundID     string          `db:"round_id" json:"round_id"`         // 回合ID
	Asset       string          `db:"asset" json:"asset"`               // 资产符号
	Amount      decimal.Decimal `db:"amount" json:"amount"`             // 投注金额
	Mode        int8            `db:"mode" json:"mode"`                 // 资金模式
	AutoCashout decimal.Decimal `db:"auto_cashout" json:"auto_cashout"` // 自动逃离倍率
	Multiplier  decimal.Decimal `db:"multiplier" json:"multiplier"`     // 逃离/崩盘倍率
	Payout      decimal.Decimal `db:"payout" json:"payout"`             // 派彩金额
	Status      int8            `db:"status" json:"status"`             // 注单状态
	CreatedAt   int64           `db:"created_at" json:"created_at"`     // 创建时间（毫秒时间戳）
	UpdatedAt   int64           `db:"updated_at" json:"updated_at"`     // 更新时间（毫秒时间戳）
}

// ListUserBets 查询用户的投注记录
// roundID 可选，为空则查询所有；limit 默认 10，最多 100
func ListUserBets(ctx context.Context, db *sqlx.DB, userID int64, roundID string, limit int) ([]BetRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	where := g.Ex{"user_id": userID}
	if roundID != "" {
		where["round_id"] = roundID
	}

	var records []BetRecord
	err := common.SelectAllCtx(ctx, &records, common.QueryArg{
		Db:     db,
		Table:  "bets",
		Fields: common.EnumFields(BetRecord{}),
		Ex:     []exp.Expression{where},
		Order:  []exp.OrderedExpression{g.C("created_at").Desc()},
		Limit:  uint(limit),
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}
