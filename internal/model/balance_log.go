package model

import (
	"context"
	"time"

	"crash-server/common/constant"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// BalanceLog 对应 balance_log 表（追加式账本）
// 说明：amount 带符号，收入为正支出为负；change_type 见 constant 包
// 同时冗余 change_type_str 便于查询
type BalanceLog struct {
	ID            int64           `db:"id"`
	UserID        int64           `db:"user_id"`
	ChangeType    int             `db:"change_type"`
	ChangeTypeStr string          `db:"change_type_str"`
	Mode          int8            `db:"mode"`
	Amount        decimal.Decimal `db:"amount"`
	BalanceBefore decimal.Decimal `db:"balance_before"`
	BalanceAfter  decimal.Decimal `db:"balance_after"`
	RefNo         string          `db:"ref_no"`
	RoundID       string          `db:"round_id"`
	Remark        string          `db:"remark"`
	TraceID       string          `db:"trace_id"`
	CreatedAt     int64           `db:"created_at"`
}

// Insert 新增一条账本记录（change_type 数值码与字符串双写）
func (l *BalanceLog) Insert(ctx context.Context, exec sqlx.ExtContext) error {
	now := time.Now().UnixMilli()
	str := l.ChangeTypeStr
	if str == "" {
		str = constant.GetBalanceChangeTypeDesc(l.ChangeType)
	}
	sqlStr := `INSERT INTO balance_log (user_id, change_type, change_type_str, mode, amount,
		balance_before, balance_after, ref_no, round_id, remark, trace_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args := []interface{}{l.UserID, l.ChangeType, str, l.Mode, l.Amount,
		l.BalanceBefore, l.BalanceAfter, l.RefNo, l.RoundID, l.Remark, l.TraceID, now}

	_, err := exec.ExecContext(ctx, sqlStr, args...)
	return err
}

// ListUserBalanceLogs 查询用户账变记录（对账接口）
func ListUserBalanceLogs(ctx context.Context, db *sqlx.DB, userID int64, limit int) ([]BalanceLog, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	sqlStr := `SELECT id, user_id, change_type, change_type_str, mode, amount,
		balance_before, balance_after, ref_no, round_id, remark, trace_id, created_at
		FROM balance_log WHERE user_id = ? ORDER BY id DESC LIMIT ?`
	var logs []BalanceLog
	if err := db.SelectContext(ctx, &logs, sqlStr, userID, limit); err != nil {
		return nil, err
	}
	return logs, nil
}
