package model

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// SettlementLog 结算日志表（round_id 唯一索引防止重复结算）
type SettlementLog struct {
	ID          int64           `db:"id"`           // 自增ID
	RoundID     string          `db:"round_id"`     // 回合ID
	SettledBets int             `db:"settled_bets"` // 逃离成功注单数
	LostBets    int             `db:"lost_bets"`    // 崩盘损失注单数
	TotalPayout decimal.Decimal `db:"total_payout"` // 总派彩金额
	TraceID     string          `db:"trace_id"`     // 链路追踪ID
	CreatedAt   int64           `db:"created_at"`   // 创建时间（13位毫秒时间戳）
}

// CreateSettlementLog 创建结算日志（利用唯一索引防止重复结算）
// 如果返回唯一键冲突错误，说明该回合已经结算过
func CreateSettlementLog(ctx context.Context, exec sqlx.ExtContext, log *SettlementLog) error {
	now := time.Now().UnixMilli()
	log.CreatedAt = now

	sqlStr := `INSERT INTO settlement_log (round_id, settled_bets, lost_bets, total_payout, trace_id, created_at)
	           VALUES (?, ?, ?, ?, ?, ?)`

	result, err := exec.ExecContext(ctx, sqlStr,
		log.RoundID, log.SettledBets, log.LostBets, log.TotalPayout, log.TraceID, log.CreatedAt)

	if err != nil {
		return err
	}

	id, _ := result.LastInsertId()
	log.ID = id

	return nil
}

// UpdateSettlementStats 回填结算统计（结算主流程先占位后统计）
func UpdateSettlementStats(ctx context.Context, exec sqlx.ExtContext, roundID string, settledBets, lostBets int, totalPayout decimal.Decimal) error {
	sqlStr := `UPDATE settlement_log SET settled_bets = ?, lost_bets = ?, total_payout = ? WHERE round_id = ?`
	_, err := exec.ExecContext(ctx, sqlStr, settledBets, lostBets, totalPayout, roundID)
	return err
}

// GetSettlementLog 查询结算日志
func GetSettlementLog(ctx context.Context, db *sqlx.DB, roundID string) (*SettlementLog, error) {
	sqlStr := `SELECT id, round_id, settled_bets, lost_bets, total_payout, trace_id, created_at
	           FROM settlement_log WHERE round_id = ? LIMIT 1`

	var log SettlementLog
	if err := db.GetContext(ctx, &log, sqlStr, roundID); err != nil {
		return nil, err
	}

	return &log, nil
}
