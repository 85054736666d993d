package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"crash-server/common"
	infrds "crash-server/internal/infra/redis"
	"crash-server/internal/infra/snowflake"
	"crash-server/internal/metrics"
	"crash-server/internal/model"
	"crash-server/internal/state"

	g "github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"
	decimal "github.com/shopspring/decimal"
)

// 回合生命周期推进与结算
// open -> betting, launch -> running, crash -> settling, settle -> completed
// 每次推进一个事务：行锁 + 状态机校验 + 审计 + Outbox，提交后维护 Redis 缓存

const (
	defaultBetWindow = 10 * time.Second // 默认下注窗口
	roundInfoTTL     = 60 * time.Second // 回合信息缓存 60s（应大于下注窗口）
	roundResultTTL   = 2 * time.Minute  // 崩盘结果缓存
	currentRoundTTL  = 10 * time.Minute // 当前回合指针，超时后回源数据库
)

type OpenRoundInput struct {
	Asset     string
	BetWindow time.Duration // <=0 时使用默认窗口
	TraceID   string
}

type LaunchRoundInput struct {
	RoundID    string
	StartPrice string // 开盘价（可选）
	TraceID    string
}

type CrashRoundInput struct {
	RoundID         string
	CrashMultiplier string
	EndPrice        string // 收盘价（可选）
	TraceID         string
}

type SettleRoundInput struct {
	RoundID string
	Source  string // driver / recovery / manual
	TraceID string
}

type RoundService interface {
	// OpenRound 开启新回合并打开下注窗口
	OpenRound(ctx context.Context, in OpenRoundInput) (*model.GameRound, error)
	// LaunchRound 关闭下注窗口并进入倍率攀升阶段
	LaunchRound(ctx context.Context, in LaunchRoundInput) error
	// CrashRound 记录崩盘点，回合进入待结算状态
	CrashRound(ctx context.Context, in CrashRoundInput) error
	// SettleRound 结算单局：幂等（按 round_id）
	// 1) 校验状态：仅 settling 且未结算可执行
	// 2) 原子更新注单与结算统计（事务）
	// 3) Outbox 投递 MQ
	// 4) 标记结算完成
	SettleRound(ctx context.Context, in SettleRoundInput) error
}

type roundService struct {
	db  *sqlx.DB
	rdb *goredis.Client
}

// NewRoundService 依赖显式注入；rdb 为 nil 时跳过缓存维护
func NewRoundService(db *sqlx.DB, rdb *goredis.Client) RoundService {
	return &roundService{db: db, rdb: rdb}
}

var (
	ErrBadRequest        = errors.New("bad request")
	ErrRoundNotFound     = errors.New("round not found")
	ErrInvalidStateRound = errors.New("operation not allowed in current round state")
)

// OpenRound 开启新回合
func (s *roundService) OpenRound(ctx context.Context, in OpenRoundInput) (*model.GameRound, error) {
	if strings.TrimSpace(in.Asset) == "" {
		return nil, ErrBadRequest
	}

	start := time.Now()
	resultLabel := "fail"
	defer func() { metrics.RecordRoundEvent(resultLabel, "open", start) }()

	window := in.BetWindow
	if window <= 0 {
		window = defaultBetWindow
	}

	roundID := snowflake.NextString()
	betStartMs := time.Now().UnixMilli()
	betStopMs := betStartMs + window.Milliseconds()

	fmt.Printf("[Round] open: 创建回合, round_id=%s, asset=%s, bet_start=%d, bet_stop=%d, window=%v, trace_id=%s\n",
		roundID, in.Asset, betStartMs, betStopMs, window, in.TraceID)

	txCtx, cancel := s.txContext(ctx)
	if cancel != nil {
		defer cancel()
	}
	tx, err := s.db.BeginTxx(txCtx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	round := &model.GameRound{
		RoundID:         roundID,
		Asset:           in.Asset,
		Status:          model.RoundStatusBetting,
		BetStartTime:    betStartMs,
		BetStopTime:     betStopMs,
		CrashMultiplier: decimal.Zero,
		StartPrice:      decimal.Zero,
		EndPrice:        decimal.Zero,
		TraceID:         in.TraceID,
	}
	if err := round.Insert(txCtx, tx); err != nil {
		fmt.Printf("[Round]  创建回合失败: round_id=%s, error=%v, trace_id=%s\n",
			roundID, err, in.TraceID)
		return nil, err
	}

	aud := &model.RoundAudit{
		RoundID:   roundID,
		Event:     state.EvtOpen,
		PrevState: state.StateInit,
		NextState: state.StateBetting,
		Source:    "driver",
		Payload:   "{}",
		TraceID:   in.TraceID,
	}
	if err := aud.Insert(txCtx, tx); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"event":          "round_opened",
		"round_id":       roundID,
		"asset":          in.Asset,
		"bet_start_time": betStartMs,
		"bet_stop_time":  betStopMs,
		"trace_id":       in.TraceID,
	}
	if err := model.CreateOutbox(txCtx, tx, "round_opened", roundID, payload); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		fmt.Printf("[Round]  提交事务失败: round_id=%s, error=%v, trace_id=%s\n",
			roundID, err, in.TraceID)
		return nil, err
	}

	// 事务提交后写缓存，避免未提交数据被读取
	s.cacheRoundInfo(ctx, round, in.TraceID)
	if s.rdb != nil {
		_ = s.rdb.Set(ctx, infrds.CurrentRoundKey(in.Asset), roundID, currentRoundTTL).Err()
	}

	resultLabel = "success"
	return round, nil
}

// LaunchRound 封盘起飞
func (s *roundService) LaunchRound(ctx context.Context, in LaunchRoundInput) error {
	if in.RoundID == "" {
		return ErrBadRequest
	}

	start := time.Now()
	resultLabel := "fail"
	defer func() { metrics.RecordRoundEvent(resultLabel, "launch", start) }()

	startPrice := decimal.Zero
	if t := strings.TrimSpace(in.StartPrice); t != "" {
		p, err := decimal.NewFromString(t)
		if err != nil {
			return fmt.Errorf("invalid start price: %w", err)
		}
		startPrice = p
	}

	txCtx, cancel := s.txContext(ctx)
	if cancel != nil {
		defer cancel()
	}
	tx, err := s.db.BeginTxx(txCtx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	round, err := model.GetRoundForUpdate(txCtx, tx, in.RoundID)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrRoundNotFound
		}
		return err
	}
	prev := model.RoundCodeToState(round.Status)
	next, err := state.NextState(prev, state.EvtLaunch)
	if err != nil {
		fmt.Printf("[Round] 状态转换失败: %s --launch--> ?, round_id=%s, trace_id=%s\n",
			prev, in.RoundID, in.TraceID)
		return ErrInvalidStateRound
	}

	startedAtMs := time.Now().UnixMilli()
	if err := model.SetRoundRunning(txCtx, tx, in.RoundID, startedAtMs, startPrice); err != nil {
		return err
	}

	aud := &model.RoundAudit{
		RoundID:   in.RoundID,
		Event:     state.EvtLaunch,
		PrevState: prev,
		NextState: next,
		Source:    "driver",
		Payload:   "{}",
		TraceID:   in.TraceID,
	}
	if err := aud.Insert(txCtx, tx); err != nil {
		return err
	}

	payload := map[string]any{
		"event":       "round_launched",
		"round_id":    in.RoundID,
		"asset":       round.Asset,
		"started_at":  startedAtMs,
		"start_price": startPrice.String(),
		"trace_id":    in.TraceID,
	}
	if err := model.CreateOutbox(txCtx, tx, "round_launched", in.RoundID, payload); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		fmt.Printf("[Round]  提交事务失败: round_id=%s, error=%v, trace_id=%s\n",
			in.RoundID, err, in.TraceID)
		return err
	}

	round.Status = model.RoundStatusRunning
	round.StartedAt = startedAtMs
	round.StartPrice = startPrice
	s.cacheRoundInfo(ctx, round, in.TraceID)

	resultLabel = "success"
	fmt.Printf("[Round] launch: 起飞, round_id=%s, started_at=%d, start_price=%s, trace_id=%s\n",
		in.RoundID, startedAtMs, startPrice.String(), in.TraceID)
	return nil
}

// CrashRound 记录崩盘点
func (s *roundService) CrashRound(ctx context.Context, in CrashRoundInput) error {
	if in.RoundID == "" || strings.TrimSpace(in.CrashMultiplier) == "" {
		return ErrBadRequest
	}

	start := time.Now()
	resultLabel := "fail"
	defer func() { metrics.RecordRoundEvent(resultLabel, "crash", start) }()

	crashMult, err := decimal.NewFromString(strings.TrimSpace(in.CrashMultiplier))
	if err != nil {
		return fmt.Errorf("invalid crash multiplier: %w", err)
	}
	if crashMult.LessThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("crash multiplier below 1: %s", in.CrashMultiplier)
	}
	crashMult = crashMult.Round(2)

	endPrice := decimal.Zero
	if t := strings.TrimSpace(in.EndPrice); t != "" {
		p, perr := decimal.NewFromString(t)
		if perr != nil {
			return fmt.Errorf("invalid end price: %w", perr)
		}
		endPrice = p
	}

	txCtx, cancel := s.txContext(ctx)
	if cancel != nil {
		defer cancel()
	}
	tx, err := s.db.BeginTxx(txCtx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	round, err := model.GetRoundForUpdate(txCtx, tx, in.RoundID)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrRoundNotFound
		}
		return err
	}
	prev := model.RoundCodeToState(round.Status)
	next, err := state.NextState(prev, state.EvtCrash)
	if err != nil {
		fmt.Printf("[Round] 状态转换失败: %s --crash--> ?, round_id=%s, trace_id=%s\n",
			prev, in.RoundID, in.TraceID)
		return ErrInvalidStateRound
	}

	endedAtMs := time.Now().UnixMilli()
	if err := model.SetRoundCrashed(txCtx, tx, in.RoundID, endedAtMs, crashMult, endPrice); err != nil {
		return err
	}

	aud := &model.RoundAudit{
		RoundID:   in.RoundID,
		Event:     state.EvtCrash,
		PrevState: prev,
		NextState: next,
		Source:    "driver",
		Payload:   "{}",
		TraceID:   in.TraceID,
	}
	if err := aud.Insert(txCtx, tx); err != nil {
		return err
	}

	payload := map[string]any{
		"event":            "round_crashed",
		"round_id":         in.RoundID,
		"asset":            round.Asset,
		"crash_multiplier": crashMult.String(),
		"ended_at":         endedAtMs,
		"end_price":        endPrice.String(),
		"trace_id":         in.TraceID,
	}
	if err := model.CreateOutbox(txCtx, tx, "round_crashed", in.RoundID, payload); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		fmt.Printf("[Round]  提交事务失败: round_id=%s, error=%v, trace_id=%s\n",
			in.RoundID, err, in.TraceID)
		return err
	}

	// 崩盘结果写入 Redis，便于客户端快速查询
	if s.rdb != nil {
		val := map[string]any{
			"round_id":         in.RoundID,
			"asset":            round.Asset,
			"crash_multiplier": crashMult.String(),
			"ended_at":         endedAtMs,
			"is_settled":       0,
		}
		if b, e := common.JsonMarshal(val); e == nil {
			_ = s.rdb.Set(ctx, infrds.RoundResultKey(in.RoundID), b, roundResultTTL).Err()
		}
	}

	resultLabel = "success"
	fmt.Printf("[Round] crash: 崩盘, round_id=%s, crash_multiplier=%s, ended_at=%d, trace_id=%s\n",
		in.RoundID, crashMult.String(), endedAtMs, in.TraceID)
	return nil
}

// SettleRound 结算：标记未逃离注单为输，汇总统计并标记回合完成
func (s *roundService) SettleRound(ctx context.Context, in SettleRoundInput) error {
	if in.RoundID == "" {
		return ErrBadRequest
	}
	source := in.Source
	if source == "" {
		source = "driver"
	}

	start := time.Now()
	resultLabel := "fail"
	defer func() { metrics.RecordRoundEvent(resultLabel, "settle", start) }()

	fmt.Printf("[Round] settle: 开始结算, round_id=%s, source=%s, trace_id=%s\n",
		in.RoundID, source, in.TraceID)

	txCtx, cancel := s.txContext(ctx)
	if cancel != nil {
		defer cancel()
	}
	tx, err := s.db.BeginTxx(txCtx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// ========== 幂等性保护 #1: 检查结算状态 ==========
	statusCode, isSettled, err := model.GetSettlementStatusForUpdate(txCtx, tx, in.RoundID)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrRoundNotFound
		}
		return err
	}

	currentState := model.RoundCodeToState(statusCode)
	fmt.Printf("[Round]  当前状态: state=%s(%d), is_settled=%d, round_id=%s, trace_id=%s\n",
		currentState, statusCode, isSettled, in.RoundID, in.TraceID)

	// 已结算过，直接返回成功（幂等）
	if isSettled == 1 {
		fmt.Printf("[Round] 该回合已结算，跳过重复结算: round_id=%s, trace_id=%s\n",
			in.RoundID, in.TraceID)
		resultLabel = "success_idempotent"
		return nil
	}

	// 仅允许在 settling（已崩盘）状态执行结算
	if statusCode != model.RoundStatusSettling {
		return ErrInvalidStateRound
	}

	// ========== 幂等性保护 #2: 创建结算日志 ==========
	// 利用唯一索引防止重复结算（双重保护）
	settlementLog := &model.SettlementLog{
		RoundID:     in.RoundID,
		SettledBets: 0, // 稍后更新
		LostBets:    0, // 稍后更新
		TotalPayout: decimal.Zero,
		TraceID:     in.TraceID,
	}
	if err := model.CreateSettlementLog(txCtx, tx, settlementLog); err != nil {
		if model.IsDuplicateKeyErr(err) {
			fmt.Printf("[Round] 结算日志已存在，跳过重复结算: round_id=%s, trace_id=%s\n",
				in.RoundID, in.TraceID)
			resultLabel = "success_idempotent"
			return nil
		}
		fmt.Printf("[Round] 创建结算日志失败: round_id=%s, error=%v, trace_id=%s\n",
			in.RoundID, err, in.TraceID)
		return err
	}

	round, err := model.GetRound(txCtx, tx, in.RoundID)
	if err != nil {
		return err
	}

	// 批量判负：仍为 pending 的注单即未逃离，本金已在下注时入池，无需再动余额
	lostRows, err := model.MarkBetsLostByRound(txCtx, tx, in.RoundID, round.CrashMultiplier)
	if err != nil {
		return err
	}

	// 汇总已逃离注单数量与总派彩（派彩在逃离时已入账）
	wonCount, err := common.CountCtx(txCtx, tx, "bets",
		g.Ex{"round_id": in.RoundID, "status": model.BetStatusWon})
	if err != nil {
		return err
	}
	totalPayout, err := common.SumDecimalCtx(txCtx, tx, "bets", "payout",
		g.Ex{"round_id": in.RoundID, "status": model.BetStatusWon})
	if err != nil {
		return err
	}

	fmt.Printf("[Round]  结算统计: settled_bets=%d, lost_bets=%d, total_payout=%s, round_id=%s, trace_id=%s\n",
		wonCount, lostRows, totalPayout.String(), in.RoundID, in.TraceID)

	// 更新结算日志的统计信息
	if err := model.UpdateSettlementStats(txCtx, tx, in.RoundID, int(wonCount), int(lostRows), totalPayout); err != nil {
		fmt.Printf("[Round] 更新结算日志统计失败: round_id=%s, error=%v, trace_id=%s\n",
			in.RoundID, err, in.TraceID)
		return err
	}

	// ========== 幂等性保护 #3: 标记为已结算 ==========
	if err := model.MarkRoundSettled(txCtx, tx, in.RoundID); err != nil {
		return err
	}

	auditPayload := map[string]any{
		"crash_multiplier": round.CrashMultiplier.String(),
		"settled_bets":     wonCount,
		"lost_bets":        lostRows,
		"total_payout":     totalPayout.String(),
	}
	payloadStr, _ := common.JsonMarshalToString(auditPayload)
	aud := &model.RoundAudit{
		RoundID:   in.RoundID,
		Event:     state.EvtComplete,
		PrevState: state.StateSettling,
		NextState: state.StateCompleted,
		Source:    source,
		Payload:   payloadStr,
		TraceID:   in.TraceID,
	}
	if err := aud.Insert(txCtx, tx); err != nil {
		return err
	}

	payload := map[string]any{
		"event":            "round_settled",
		"round_id":         in.RoundID,
		"asset":            round.Asset,
		"crash_multiplier": round.CrashMultiplier.String(),
		"settled_bets":     wonCount,
		"lost_bets":        lostRows,
		"total_payout":     totalPayout.String(),
		"trace_id":         in.TraceID,
	}
	if err := model.CreateOutbox(txCtx, tx, "round_settled", in.RoundID, payload); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		fmt.Printf("[Round] 提交事务失败: round_id=%s, error=%v, trace_id=%s\n",
			in.RoundID, err, in.TraceID)
		return err
	}

	// 事务提交后：刷新结果缓存，清理回合过程缓存
	if s.rdb != nil {
		val := map[string]any{
			"round_id":         in.RoundID,
			"asset":            round.Asset,
			"crash_multiplier": round.CrashMultiplier.String(),
			"ended_at":         round.EndedAt,
			"is_settled":       1,
			"settled_bets":     wonCount,
			"lost_bets":        lostRows,
			"total_payout":     totalPayout.String(),
		}
		if b, e := common.JsonMarshal(val); e == nil {
			fmt.Printf("[Round]  写入 Redis 缓存: key=%s, ttl=%v, round_id=%s, trace_id=%s\n",
				infrds.RoundResultKey(in.RoundID), roundResultTTL, in.RoundID, in.TraceID)
			_ = s.rdb.Set(ctx, infrds.RoundResultKey(in.RoundID), b, roundResultTTL).Err()
		}
		_ = s.rdb.Del(ctx, infrds.RoundInfoKey(in.RoundID), infrds.RoundMultKey(in.RoundID)).Err()
	}

	resultLabel = "success"
	fmt.Printf("[Round] 结算完成: round_id=%s, crash_multiplier=%s, settled_bets=%d, lost_bets=%d, total_payout=%s, trace_id=%s\n",
		in.RoundID, round.CrashMultiplier.String(), wonCount, lostRows, totalPayout.String(), in.TraceID)
	return nil
}

// txContext 统一事务超时：上游无 deadline 时补默认超时
func (s *roundService) txContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, has := ctx.Deadline(); has {
		return ctx, nil
	}
	return context.WithTimeout(ctx, defaultTxTimeout)
}

// cacheRoundInfo 回合信息写入 Redis（降级容错）
func (s *roundService) cacheRoundInfo(ctx context.Context, round *model.GameRound, traceID string) {
	if s.rdb == nil {
		return
	}
	val := map[string]any{
		"round_id":       round.RoundID,
		"asset":          round.Asset,
		"status":         model.RoundCodeToState(round.Status),
		"bet_start_time": round.BetStartTime,
		"bet_stop_time":  round.BetStopTime,
		"started_at":     round.StartedAt,
	}
	b, err := common.JsonMarshal(val)
	if err != nil {
		return
	}
	fmt.Printf("[Round] 写入 Redis 缓存: key=%s, ttl=%v, round_id=%s, trace_id=%s\n",
		infrds.RoundInfoKey(round.RoundID), roundInfoTTL, round.RoundID, traceID)
	_ = s.rdb.Set(ctx, infrds.RoundInfoKey(round.RoundID), b, roundInfoTTL).Err()
}
