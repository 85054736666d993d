package recovery

import (
	"context"
	"time"

	"crash-server/common/constant"
	"crash-server/common/logger"
	"crash-server/internal/metrics"
	"crash-server/internal/model"
	"crash-server/internal/pool"
	"crash-server/internal/state"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// 孤儿局清理：进程重启后把停在中间状态的局作废并退还未结算投注
// 必须在 HTTP 与回合引擎启动之前跑完，否则新局会和旧局的退款互相踩踏

const (
	scanBatch    = 200
	perTxTimeout = 3 * time.Second
)

// Deps 显式注入依赖
type Deps struct {
	DB   *sqlx.DB
	Pool pool.Service
}

// Report 一次清理的汇总结果
type Report struct {
	RoundsScanned   int
	RoundsCancelled int
	BetsRefunded    int
	Failures        int
}

// RecoverOrphanedRounds 扫描 betting/running/settling 状态的局并逐一作废退款。
// 仅扫描本身的错误会向上返回；单局、单笔退款的失败记日志计数后继续，
// 不允许一笔坏账拖垮整个清理
func RecoverOrphanedRounds(ctx context.Context, deps Deps) (*Report, error) {
	start := time.Now()
	report := &Report{}
	traceID := uuid.NewString()

	logger.Info("orphan round recovery started", zap.String("trace_id", traceID))

	for {
		rounds, err := model.ListOrphanRounds(ctx, deps.DB, scanBatch)
		if err != nil {
			metrics.RecordRecovery("fail", report.RoundsCancelled, report.BetsRefunded, start)
			return report, err
		}
		if len(rounds) == 0 {
			break
		}

		progressed := false
		for i := range rounds {
			report.RoundsScanned++
			cancelled, refunded, failures := recoverRound(ctx, deps, &rounds[i], traceID)
			if cancelled {
				report.RoundsCancelled++
				progressed = true
			}
			report.BetsRefunded += refunded
			report.Failures += failures
		}
		// 整批无一成功说明障碍是持续性的（如数据库只读），不再空转
		if !progressed {
			break
		}
		if len(rounds) < scanBatch {
			break
		}
	}

	result := "success"
	if report.Failures > 0 {
		result = "partial"
	}
	metrics.RecordRecovery(result, report.RoundsCancelled, report.BetsRefunded, start)

	logger.Info("orphan round recovery finished",
		zap.Int("rounds_scanned", report.RoundsScanned),
		zap.Int("rounds_cancelled", report.RoundsCancelled),
		zap.Int("bets_refunded", report.BetsRefunded),
		zap.Int("failures", report.Failures),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("trace_id", traceID))

	return report, nil
}

// recoverRound 先作废局，再逐笔退款。返回 (是否作废成功, 退款笔数, 失败笔数)
func recoverRound(ctx context.Context, deps Deps, r *model.GameRound, traceID string) (bool, int, int) {
	if err := cancelRoundTx(ctx, deps.DB, r, traceID); err != nil {
		logger.Error("cancel orphan round failed",
			zap.String("round_id", r.RoundID),
			zap.Error(err),
			zap.String("trace_id", traceID))
		return false, 0, 1
	}

	bets, err := model.ListPendingBetsByRound(ctx, deps.DB, r.RoundID)
	if err != nil {
		logger.Error("list pending bets failed",
			zap.String("round_id", r.RoundID),
			zap.Error(err),
			zap.String("trace_id", traceID))
		return true, 0, 1
	}

	refunded, failures := 0, 0
	for i := range bets {
		if err := refundBetTx(ctx, deps, &bets[i], traceID); err != nil {
			failures++
			logger.Error("refund pending bet failed",
				zap.String("round_id", r.RoundID),
				zap.String("bill_no", bets[i].BillNo),
				zap.Int64("user_id", bets[i].UserID),
				zap.Error(err),
				zap.String("trace_id", traceID))
			continue
		}
		refunded++
	}

	logger.Info("orphan round recovered",
		zap.String("round_id", r.RoundID),
		zap.String("prev_state", model.RoundCodeToState(r.Status)),
		zap.Int("bets_refunded", refunded),
		zap.Int("bets_failed", failures),
		zap.String("trace_id", traceID))

	return true, refunded, failures
}

// cancelRoundTx 单独事务：条件作废 + 审计 + outbox
func cancelRoundTx(ctx context.Context, db *sqlx.DB, r *model.GameRound, traceID string) error {
	txCtx, cancel := context.WithTimeout(ctx, perTxTimeout)
	defer cancel()

	tx, err := db.BeginTxx(txCtx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := model.CancelRound(txCtx, tx, r.RoundID, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	if rows == 0 {
		// 并发被别处推进到终态，无需处理
		return nil
	}

	audit := &model.RoundAudit{
		RoundID:   r.RoundID,
		Event:     state.EvtCancel,
		PrevState: model.RoundCodeToState(r.Status),
		NextState: state.StateCancelled,
		Source:    "recovery",
		TraceID:   traceID,
	}
	if err := audit.Insert(txCtx, tx); err != nil {
		return err
	}

	if err := model.CreateOutbox(txCtx, tx, "round_cancelled", r.RoundID, map[string]any{
		"event":      "round_cancelled",
		"round_id":   r.RoundID,
		"asset":      r.Asset,
		"prev_state": model.RoundCodeToState(r.Status),
		"reason":     "orphan_recovery",
	}); err != nil {
		return err
	}

	return tx.Commit()
}

// refundBetTx 单笔退款事务：条件翻转 -> 加回余额 -> 账本 -> 真金局同时出池 -> outbox
func refundBetTx(ctx context.Context, deps Deps, b *model.Bet, traceID string) error {
	txCtx, cancel := context.WithTimeout(ctx, perTxTimeout)
	defer cancel()

	tx, err := deps.DB.BeginTxx(txCtx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := model.MarkBetRefunded(txCtx, tx, b.ID)
	if err != nil {
		return err
	}
	if rows == 0 {
		// 已被别处结算或退款，跳过
		return nil
	}

	user, err := model.GetUserByIDForUpdate(txCtx, tx, b.UserID)
	if err != nil {
		return err
	}
	before := user.BalanceFor(b.Mode)
	after := before.Add(b.Amount)
	if err := model.UpdateUserBalance(txCtx, tx, user.ID, b.Mode, after); err != nil {
		return err
	}

	ledger := &model.BalanceLog{
		UserID:        user.ID,
		ChangeType:    constant.ChangeTypeRefundCredit,
		Mode:          b.Mode,
		Amount:        b.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		RefNo:         b.BillNo,
		RoundID:       b.RoundID,
		Remark:        "orphan round refund",
		TraceID:       traceID,
	}
	if err := ledger.Insert(txCtx, tx); err != nil {
		return err
	}

	// 下注时真金已入池，退款同步出池；试玩资金从不进池
	if b.Mode == constant.ModeReal {
		if _, _, err := deps.Pool.ApplyDeltaTx(txCtx, tx, b.Asset, b.Amount.Neg(), model.PoolReasonRefund, b.BillNo, traceID); err != nil {
			return err
		}
	}

	if err := model.CreateOutbox(txCtx, tx, "bet_refunded", b.BillNo, map[string]any{
		"event":    "bet_refunded",
		"bill_no":  b.BillNo,
		"round_id": b.RoundID,
		"user_id":  user.ID,
		"amount":   b.Amount.String(),
		"mode":     constant.ModeToString(b.Mode),
	}); err != nil {
		return err
	}

	return tx.Commit()
}
