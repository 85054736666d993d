package model

import (
	"context"
	"time"

	"crash-server/internal/state"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// 回合状态码（入库为数值枚举，运行时用字符串状态机）
const (
	RoundStatusBetting   = 1
	RoundStatusRunning   = 2
	RoundStatusSettling  = 3
	RoundStatusCompleted = 4
	RoundStatusCancelled = 5
)

// RoundStateToCode 字符串状态 -> 数值码（未知返回 0）
func RoundStateToCode(s string) int8 {
	switch s {
	case state.StateBetting:
		return RoundStatusBetting
	case state.StateRunning:
		return RoundStatusRunning
	case state.StateSettling:
		return RoundStatusSettling
	case state.StateCompleted:
		return RoundStatusCompleted
	case state.StateCancelled:
		return RoundStatusCancelled
	default:
		return 0
	}
}

// RoundCodeToState 数值码 -> 字符串状态（未知返回空串）
func RoundCodeToState(c int8) string {
	switch c {
	case RoundStatusBetting:
		return state.StateBetting
	case RoundStatusRunning:
		return state.StateRunning
	case RoundStatusSettling:
		return state.StateSettling
	case RoundStatusCompleted:
		return state.StateCompleted
	case RoundStatusCancelled:
		return state.StateCancelled
	default:
		return ""
	}
}

// GameRound 对应 game_round 表
// 说明：时间统一毫秒时间戳；状态采用数值枚举
// status: 1=betting 2=running 3=settling 4=completed 5=cancelled
// is_settled: 0=未结算 1=已结算（防止重复结算）
type GameRound struct {
	RoundID         string          `db:"round_id"`
	Asset           string          `db:"asset"`
	Status          int8            `db:"status"`
	BetStartTime    int64           `db:"bet_start_time"`
	BetStopTime     int64           `db:"bet_stop_time"`
	StartedAt       int64           `db:"started_at"`
	EndedAt         int64           `db:"ended_at"`
	CrashMultiplier decimal.Decimal `db:"crash_multiplier"`
	StartPrice      decimal.Decimal `db:"start_price"`
	EndPrice        decimal.Decimal `db:"end_price"`
	IsSettled       int8            `db:"is_settled"`
	TraceID         string          `db:"trace_id"`
	CreatedAt       int64           `db:"created_at"`
	UpdatedAt       int64           `db:"updated_at"`
}

const gameRoundColumns = `round_id, asset, status, bet_start_time, bet_stop_time, started_at, ended_at,
	crash_multiplier, start_price, end_price, is_settled, trace_id, created_at, updated_at`

// Insert 创建回合（下注窗口同时写入）
func (r *GameRound) Insert(ctx context.Context, exec sqlx.ExtContext) error {
	now := time.Now().UnixMilli()
	r.CreatedAt = now
	r.UpdatedAt = now

	sqlStr := `INSERT INTO game_round (round_id, asset, status, bet_start_time, bet_stop_time,
		crash_multiplier, start_price, end_price, trace_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := exec.ExecContext(ctx, sqlStr, r.RoundID, r.Asset, r.Status, r.BetStartTime, r.BetStopTime,
		r.CrashMultiplier, r.StartPrice, r.EndPrice, r.TraceID, now, now)
	return err
}

// GetRound 获取回合信息（不加锁）
func GetRound(ctx context.Context, exec sqlx.ExtContext, roundID string) (*GameRound, error) {
	sqlStr := `SELECT ` + gameRoundColumns + ` FROM game_round WHERE round_id = ?`
	var round GameRound
	if err := sqlx.GetContext(ctx, exec, &round, sqlStr, roundID); err != nil {
		return nil, err
	}
	return &round, nil
}

// GetRoundForUpdate 获取回合信息并加锁（用于投注时校验时间窗口）
// 必须在事务中调用
func GetRoundForUpdate(ctx context.Context, exec sqlx.ExtContext, roundID string) (*GameRound, error) {
	sqlStr := `SELECT ` + gameRoundColumns + ` FROM game_round WHERE round_id = ? FOR UPDATE`
	var round GameRound
	if err := sqlx.GetContext(ctx, exec, &round, sqlStr, roundID); err != nil {
		return nil, err
	}
	return &round, nil
}

// GetSettlementStatusForUpdate 在事务中按回合ID加锁并返回 (status, is_settled)
func GetSettlementStatusForUpdate(ctx context.Context, exec sqlx.ExtContext, roundID string) (int8, int8, error) {
	sqlStr := "SELECT status, is_settled FROM game_round WHERE round_id = ? FOR UPDATE"

	type result struct {
		Status    int8 `db:"status"`
		IsSettled int8 `db:"is_settled"`
	}

	var r result
	if err := sqlx.GetContext(ctx, exec, &r, sqlStr, roundID); err != nil {
		return 0, 0, err
	}
	return r.Status, r.IsSettled, nil
}

// UpdateRoundStatus 更新回合状态
func UpdateRoundStatus(ctx context.Context, exec sqlx.ExtContext, roundID string, newStatus int8) error {
	now := time.Now().UnixMilli()
	sqlStr := "UPDATE game_round SET status = ?, updated_at = ? WHERE round_id = ?"
	_, err := exec.ExecContext(ctx, sqlStr, newStatus, now, roundID)
	return err
}

// SetRoundRunning 进入运行态：记录起飞时间与开盘价
func SetRoundRunning(ctx context.Context, exec sqlx.ExtContext, roundID string, startedAtMs int64, startPrice decimal.Decimal) error {
	now := time.Now().UnixMilli()
	sqlStr := "UPDATE game_round SET status = ?, started_at = ?, start_price = ?, updated_at = ? WHERE round_id = ?"
	_, err := exec.ExecContext(ctx, sqlStr, RoundStatusRunning, startedAtMs, startPrice, now, roundID)
	return err
}

// SetRoundCrashed 进入结算态：记录崩盘倍率与收盘价
func SetRoundCrashed(ctx context.Context, exec sqlx.ExtContext, roundID string, endedAtMs int64, crashMult, endPrice decimal.Decimal) error {
	now := time.Now().UnixMilli()
	sqlStr := "UPDATE game_round SET status = ?, ended_at = ?, crash_multiplier = ?, end_price = ?, updated_at = ? WHERE round_id = ?"
	_, err := exec.ExecContext(ctx, sqlStr, RoundStatusSettling, endedAtMs, crashMult, endPrice, now, roundID)
	return err
}

// MarkRoundSettled 标记回合为已结算并置为完成态
func MarkRoundSettled(ctx context.Context, exec sqlx.ExtContext, roundID string) error {
	now := time.Now().UnixMilli()
	sqlStr := "UPDATE game_round SET is_settled = 1, status = ?, updated_at = ? WHERE round_id = ?"
	_, err := exec.ExecContext(ctx, sqlStr, RoundStatusCompleted, now, roundID)
	return err
}

// CancelRound 将回合置为取消态（仅中间态可取消，条件更新防止覆盖终态）
// 返回实际更新行数，0 表示回合已不在中间态
func CancelRound(ctx context.Context, exec sqlx.ExtContext, roundID string, endedAtMs int64) (int64, error) {
	sqlStr := `UPDATE game_round SET status = ?, ended_at = ?, updated_at = ?
		WHERE round_id = ? AND status IN (?, ?, ?)`
	res, err := exec.ExecContext(ctx, sqlStr, RoundStatusCancelled, endedAtMs, time.Now().UnixMilli(),
		roundID, RoundStatusBetting, RoundStatusRunning, RoundStatusSettling)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListOrphanRounds 列出仍停留在中间态的回合（进程重启后的恢复扫描）
func ListOrphanRounds(ctx context.Context, exec sqlx.ExtContext, limit int) ([]GameRound, error) {
	if limit <= 0 {
		limit = 50
	}
	sqlStr := `SELECT ` + gameRoundColumns + ` FROM game_round
		WHERE status IN (?, ?, ?) ORDER BY created_at ASC LIMIT ?`
	var rounds []GameRound
	err := sqlx.SelectContext(ctx, exec, &rounds, sqlStr,
		RoundStatusBetting, RoundStatusRunning, RoundStatusSettling, limit)
	if err != nil {
		return nil, err
	}
	return rounds, nil
}

// GetLatestRoundByAsset 获取某资产最近一局（历史查询接口用）
func GetLatestRoundByAsset(ctx context.Context, exec sqlx.ExtContext, asset string) (*GameRound, error) {
	sqlStr := `SELECT ` + gameRoundColumns + ` FROM game_round
		WHERE asset = ? ORDER BY created_at DESC LIMIT 1`
	var round GameRound
	if err := sqlx.GetContext(ctx, exec, &round, sqlStr, asset); err != nil {
		return nil, err
	}
	return &round, nil
}

// ListRecentRounds 最近 N 局（倍率历史展示）
func ListRecentRounds(ctx context.Context, exec sqlx.ExtContext, asset string, limit int) ([]GameRound, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	sqlStr := `SELECT ` + gameRoundColumns + ` FROM game_round
		WHERE asset = ? AND status IN (?, ?) ORDER BY created_at DESC LIMIT ?`
	var rounds []GameRound
	err := sqlx.SelectContext(ctx, exec, &rounds, sqlStr, asset, RoundStatusCompleted, RoundStatusCancelled, limit)
	if err != nil {
		return nil, err
	}
	return rounds, nil
}
