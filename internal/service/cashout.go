package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"crash-server/common/constant"
	chelper "crash-server/common/helper"
	infrds "crash-server/internal/infra/redis"
	"crash-server/internal/metrics"
	"crash-server/internal/model"
	"crash-server/internal/pool"

	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"
	decimal "github.com/shopspring/decimal"
)

// 处理逃离（兑现）业务逻辑
// 手动逃离的倍率以 Redis 中回合当前倍率为准；自动逃离由回合驱动器
// 带上触发倍率调用，两条路径共用同一套事务和幂等。

// CashoutInput 输入参数
type CashoutInput struct {
	BillNo     string
	ExternalID string
	// AtMultiplier 指定倍率（自动逃离扫描传入）；为空时取回合当前倍率
	AtMultiplier string
	// Source 取值 manual / auto，仅用于指标和日志
	Source  string
	TraceID string
}

type CashoutOutput struct {
	BillNo     string
	Multiplier string
	Payout     string
	Balance    string // 入账后余额
}

type CashoutService interface {
	Cashout(ctx context.Context, in CashoutInput) (*CashoutOutput, error)
}

type cashoutService struct {
	db   *sqlx.DB
	rdb  *goredis.Client
	pool pool.Service
}

// NewCashoutService 依赖显式注入；rdb 为 nil 时手动逃离不可用（无法取当前倍率）
func NewCashoutService(db *sqlx.DB, rdb *goredis.Client, poolSvc pool.Service) CashoutService {
	return &cashoutService{db: db, rdb: rdb, pool: poolSvc}
}

var (
	ErrBetNotFound         = errors.New("bet not found")
	ErrAlreadySettled      = errors.New("bet already settled")
	ErrInvalidStateCashout = errors.New("cashout not allowed in current state")
	ErrMultiplierUnknown   = errors.New("current multiplier unavailable")
)

// Cashout 处理逃离主流程
func (s *cashoutService) Cashout(ctx context.Context, in CashoutInput) (*CashoutOutput, error) {

	start := time.Now()
	result := "fail"
	source := in.Source
	if source != "auto" {
		source = "manual"
	}
	defer func() { metrics.RecordCashout(result, source, start) }()

	fmt.Printf("[Cashout]  收到逃离请求: bill_no=%s, external_id=%s, source=%s, at_multiplier=%s, trace_id=%s\n",
		in.BillNo, in.ExternalID, source, in.AtMultiplier, in.TraceID)

	txCtx := ctx
	if _, has := ctx.Deadline(); !has {
		c, cancel := context.WithTimeout(ctx, defaultTxTimeout)
		txCtx = c
		defer cancel()
	}
	tx, err := s.db.BeginTxx(txCtx, nil)
	if err != nil {
		fmt.Printf("[Cashout] 开启事务失败: error=%v, bill_no=%s, trace_id=%s\n",
			err, in.BillNo, in.TraceID)
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// 锁定注单行，串行化同一注单的并发逃离与结算
	bet, err := model.GetBetByBillNoForUpdate(txCtx, tx, in.BillNo)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrBetNotFound
		}
		fmt.Printf("[Cashout]  查询注单失败: error=%v, bill_no=%s, trace_id=%s\n",
			err, in.BillNo, in.TraceID)
		return nil, err
	}

	// 归属校验：外部用户 ID 不匹配按不存在处理，避免泄露他人注单
	if in.ExternalID != "" {
		owner, oerr := model.GetUserByID(txCtx, tx, bet.UserID)
		if oerr != nil {
			return nil, oerr
		}
		if owner.ExternalID != in.ExternalID {
			return nil, ErrBetNotFound
		}
	}

	// 状态判定：已赢则回放已记录的结果，已输/已退款拒绝
	switch bet.Status {
	case model.BetStatusPending:
		// 继续处理
	case model.BetStatusWon:
		result = "replay"
		fmt.Printf("[Cashout]  注单已兑现，返回已记录结果: bill_no=%s, multiplier=%s, payout=%s, trace_id=%s\n",
			in.BillNo, bet.Multiplier.String(), bet.Payout.String(), in.TraceID)
		return s.replayCashout(txCtx, tx, bet)
	default:
		return nil, ErrAlreadySettled
	}

	// 回合必须在 running 状态（崩盘后由结算流程统一判负）
	round, err := model.GetRound(txCtx, tx, bet.RoundID)
	if err != nil {
		return nil, err
	}
	if round.Status != model.RoundStatusRunning {
		fmt.Printf("[Cashout]  回合状态不允许逃离: state=%s(%d), round_id=%s, bill_no=%s, trace_id=%s\n",
			model.RoundCodeToState(round.Status), round.Status, bet.RoundID, in.BillNo, in.TraceID)
		return nil, ErrInvalidStateCashout
	}

	// 确定兑现倍率
	mult, err := s.resolveMultiplier(ctx, bet.RoundID, in.AtMultiplier)
	if err != nil {
		fmt.Printf("[Cashout]  无法确定当前倍率: error=%v, round_id=%s, bill_no=%s, trace_id=%s\n",
			err, bet.RoundID, in.BillNo, in.TraceID)
		return nil, err
	}

	payout := chelper.MulFixed2(bet.Amount, mult)

	// 条件更新：仅 pending 状态可置为 won，0 行表示已被并发结算
	affected, err := model.MarkBetWon(txCtx, tx, in.BillNo, mult, payout)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// 并发下已被判负或已兑现：重读判定
		cur, rerr := model.GetBetByBillNo(txCtx, tx, in.BillNo)
		if rerr != nil {
			return nil, rerr
		}
		if cur.Status == model.BetStatusWon {
			result = "replay"
			return s.replayCashout(txCtx, tx, cur)
		}
		return nil, ErrAlreadySettled
	}

	// 派彩入账
	user, err := model.GetUserByIDForUpdate(txCtx, tx, bet.UserID)
	if err != nil {
		return nil, err
	}
	before := user.BalanceFor(bet.Mode)
	after := before.Add(payout)
	if err := model.UpdateUserBalance(txCtx, tx, user.ID, bet.Mode, after.Round(2)); err != nil {
		return nil, err
	}

	ledger := &model.BalanceLog{
		UserID:        user.ID,
		ChangeType:    constant.ChangeTypePayoutCredit,
		Mode:          bet.Mode,
		Amount:        payout,
		BalanceBefore: before,
		BalanceAfter:  after,
		RefNo:         bet.BillNo,
		RoundID:       bet.RoundID,
		Remark:        "cashout payout",
		TraceID:       in.TraceID,
	}
	if err := ledger.Insert(txCtx, tx); err != nil {
		fmt.Printf("[Cashout]  写入账本失败: error=%v, bill_no=%s, trace_id=%s\n",
			err, in.BillNo, in.TraceID)
		return nil, err
	}

	// 真金派彩从资金池扣减
	if bet.Mode == constant.ModeReal {
		if _, _, err := s.pool.ApplyDeltaTx(txCtx, tx, bet.Asset, payout.Neg(), model.PoolReasonPayout, bet.BillNo, in.TraceID); err != nil {
			fmt.Printf("[Cashout]  资金池出账失败: error=%v, bill_no=%s, asset=%s, trace_id=%s\n",
				err, bet.BillNo, bet.Asset, in.TraceID)
			return nil, err
		}
	}

	payload := map[string]any{
		"event":      "bet_cashed_out",
		"bill_no":    bet.BillNo,
		"user_id":    user.ID,
		"round_id":   bet.RoundID,
		"asset":      bet.Asset,
		"multiplier": mult.String(),
		"payout":     payout.String(),
		"mode":       constant.ModeToString(bet.Mode),
		"source":     source,
	}
	if err := model.CreateOutbox(txCtx, tx, "bet_cashed_out", bet.BillNo, payload); err != nil {
		fmt.Printf("[Cashout]  写入 Outbox 失败: error=%v, bill_no=%s, trace_id=%s\n",
			err, in.BillNo, in.TraceID)
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		fmt.Printf("[Cashout]  提交事务失败: error=%v, bill_no=%s, trace_id=%s\n",
			err, in.BillNo, in.TraceID)
		return nil, err
	}

	result = "success"
	fmt.Printf("[Cashout]  逃离成功: bill_no=%s, multiplier=%s, payout=%s, balance=%s, trace_id=%s\n",
		bet.BillNo, mult.String(), payout.String(), chelper.TrimDecimal(after), in.TraceID)

	return &CashoutOutput{
		BillNo:     bet.BillNo,
		Multiplier: chelper.TrimDecimal(mult),
		Payout:     chelper.TrimDecimal(payout),
		Balance:    chelper.TrimDecimal(after),
	}, nil
}

// resolveMultiplier 确定兑现倍率
// 自动逃离传入触发倍率；手动逃离从 Redis 取回合当前倍率，
// 取不到时拒绝请求而不是猜一个值
func (s *cashoutService) resolveMultiplier(ctx context.Context, roundID, atMultiplier string) (decimal.Decimal, error) {
	if t := strings.TrimSpace(atMultiplier); t != "" {
		mult, err := decimal.NewFromString(t)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid multiplier: %w", err)
		}
		if mult.LessThan(decimal.NewFromInt(1)) {
			return decimal.Zero, fmt.Errorf("multiplier below 1: %s", t)
		}
		return mult.Round(2), nil
	}
	if s.rdb == nil {
		return decimal.Zero, ErrMultiplierUnknown
	}
	val, err := s.rdb.Get(ctx, infrds.RoundMultKey(roundID)).Result()
	if err != nil {
		return decimal.Zero, ErrMultiplierUnknown
	}
	mult, err := decimal.NewFromString(val)
	if err != nil || mult.LessThan(decimal.NewFromInt(1)) {
		return decimal.Zero, ErrMultiplierUnknown
	}
	return mult.Round(2), nil
}

// replayCashout 重复请求回放已记录的兑现结果
func (s *cashoutService) replayCashout(ctx context.Context, tx *sqlx.Tx, bet *model.Bet) (*CashoutOutput, error) {
	user, err := model.GetUserByID(ctx, tx, bet.UserID)
	if err != nil {
		return nil, err
	}
	_ = tx.Rollback()
	return &CashoutOutput{
		BillNo:     bet.BillNo,
		Multiplier: chelper.TrimDecimal(bet.Multiplier),
		Payout:     chelper.TrimDecimal(bet.Payout),
		Balance:    chelper.TrimDecimal(user.BalanceFor(bet.Mode)),
	}, nil
}
