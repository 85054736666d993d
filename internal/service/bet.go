package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"crash-server/common"
	"crash-server/common/constant"
	chelper "crash-server/common/helper"
	"crash-server/internal/config"
	infrds "crash-server/internal/infra/redis"
	"crash-server/internal/infra/snowflake"
	"crash-server/internal/lock"
	"crash-server/internal/metrics"
	"crash-server/internal/model"
	"crash-server/internal/pool"
	"crash-server/internal/ratelimit"

	mysqlerr "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"
	decimal "github.com/shopspring/decimal"
)

// 处理投注业务逻辑

// BetInput 输入参数
// ExternalID 由网关层注入（来自请求头），其余为请求体字段
type BetInput struct {
	RoundID        string
	ExternalID     string // 外部用户ID
	Nickname       string // 外部用户昵称（可选，首次下注自动建档用）
	Amount         string
	Mode           int8   // 0=真金 1=试玩
	AutoCashout    string // 自动逃离倍率（可选，空或"0"表示不设置）
	IdempotencyKey string
	TraceID        string
}

type BetOutput struct {
	BillNo  string
	Balance string // 扣款后余额
}

type BetService interface {
	PlaceBet(ctx context.Context, in BetInput) (*BetOutput, error)
}

type betService struct {
	db      *sqlx.DB
	rdb     *goredis.Client
	pool    pool.Service
	locker  lock.Lock
	limiter ratelimit.Limiter
}

// NewBetService 所有依赖显式注入；rdb/locker/limiter 允许为 nil（降级为纯数据库路径）
func NewBetService(db *sqlx.DB, rdb *goredis.Client, poolSvc pool.Service, locker lock.Lock, limiter ratelimit.Limiter) BetService {
	return &betService{db: db, rdb: rdb, pool: poolSvc, locker: locker, limiter: limiter}
}

const (
	// Redis 进行中锁 TTL：建议小于最短投注窗口，避免长时间阻塞重复请求
	idemLockTTL = 45 * time.Second
	// 结果缓存 TTL：用于重复请求直接返回第一次成功结果；应覆盖到大多数“短时重试”窗口
	idemResultTTL = 1 * time.Minute
)

// 默认事务超时时间，防止长事务占用资源影响并发（若上游已有 deadline，则沿用上游）
const defaultTxTimeout = 3 * time.Second

// 自动逃离倍率下限
var minAutoCashout = decimal.NewFromFloat(1.01)

// Redis key 构造见 internal/infra/redis/keys.go
var (
	ErrDuplicateInFlight   = errors.New("duplicate request in flight")
	ErrRateLimited         = errors.New("too many requests")
	ErrInvalidStateBet     = errors.New("bet not allowed in current state")
	ErrBetWindowNotStart   = errors.New("bet window not started")
	ErrBetWindowClosed     = errors.New("bet window closed")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUserDisabled        = errors.New("user disabled")
	ErrPlayModeDisabled    = errors.New("play mode disabled")
)

// PlaceBet 处理下注主流程
func (s *betService) PlaceBet(ctx context.Context, in BetInput) (*BetOutput, error) {

	start := time.Now()
	result := "fail"

	// ========== 投注金额解析和验证==========
	// 1. 解析金额字符串
	// 2. 验证金额为正数且不超过两位小数
	// 3. 验证最小投注限制
	// 4. 验证最大投注限制
	// ================================================

	amtDec, err := decimal.NewFromString(strings.TrimSpace(in.Amount))
	if err != nil {
		fmt.Printf("[Bet]  无效的投注金额格式: amount=%s, error=%v, trace_id=%s\n",
			in.Amount, err, in.TraceID)
		return nil, errors.New("invalid bet amount format")
	}

	if amtDec.LessThanOrEqual(decimal.Zero) {
		fmt.Printf("[Bet]  投注金额必须大于0: amount=%s, trace_id=%s\n",
			in.Amount, in.TraceID)
		return nil, errors.New("bet amount must be positive")
	}

	if !chelper.IsMoneyScale(amtDec) {
		fmt.Printf("[Bet]  投注金额小数位超限: amount=%s, trace_id=%s\n",
			in.Amount, in.TraceID)
		return nil, errors.New("bet amount precision exceeds 2 decimal places")
	}

	// 验证最小投注限制（0.01）
	minBet := decimal.NewFromFloat(0.01)
	if amtDec.LessThan(minBet) {
		fmt.Printf("[Bet]  投注金额低于最小限制: amount=%s, min=%s, trace_id=%s\n",
			in.Amount, minBet.String(), in.TraceID)
		return nil, fmt.Errorf("bet amount below minimum limit: %s", minBet.String())
	}

	// 验证最大投注限制（默认 1,000,000，可由 thresholds.bet_max_amount 覆盖）
	maxBet := decimal.NewFromInt(config.GetThreshold("bet_max_amount", 1000000))
	if amtDec.GreaterThan(maxBet) {
		fmt.Printf("[Bet]  投注金额超过最大限制: amount=%s, max=%s, trace_id=%s\n",
			in.Amount, maxBet.String(), in.TraceID)
		return nil, fmt.Errorf("bet amount exceeds maximum limit: %s", maxBet.String())
	}

	if in.Mode != constant.ModeReal && in.Mode != constant.ModePlay {
		return nil, errors.New("invalid fund mode")
	}

	// 试玩模式按开关放量
	if in.Mode == constant.ModePlay && !config.GetFeatureFlag("play_mode") {
		fmt.Printf("[Bet]  试玩模式未开放: external_id=%s, trace_id=%s\n",
			in.ExternalID, in.TraceID)
		return nil, ErrPlayModeDisabled
	}

	// 自动逃离倍率（可选）
	autoCashout := decimal.Zero
	if t := strings.TrimSpace(in.AutoCashout); t != "" && t != "0" {
		ac, aerr := decimal.NewFromString(t)
		if aerr != nil {
			return nil, errors.New("invalid auto cashout format")
		}
		if ac.LessThan(minAutoCashout) {
			return nil, fmt.Errorf("auto cashout below minimum: %s", minAutoCashout.String())
		}
		autoCashout = ac.Round(2)
	}

	modeStr := constant.ModeToString(in.Mode)
	defer func() { metrics.RecordBet(result, modeStr, start) }()

	fmt.Printf("[Bet]  收到投注请求: round_id=%s, external_id=%s, amount=%s, mode=%d(%s), auto_cashout=%s, idem_key=%s, trace_id=%s\n",
		in.RoundID, in.ExternalID, in.Amount, in.Mode, modeStr, autoCashout.String(), in.IdempotencyKey, in.TraceID)

	// 按用户维度限流（IP 维度在中间件层）
	if rule, enabled := config.RateLimitByUser(); enabled && s.limiter != nil {
		allowed := s.limiter.Allow(ctx, ratelimit.Req{
			Dimension:    "user",
			Key:          in.ExternalID,
			Window:       rule.Window,
			Max:          rule.Max,
			StoreEnabled: rule.StoreEnabled,
		})
		if !allowed {
			fmt.Printf("[Bet]  用户限流拒绝: external_id=%s, trace_id=%s\n",
				in.ExternalID, in.TraceID)
			return nil, ErrRateLimited
		}
	}

	// Redis 快路径：若已有结果缓存，直接返回
	if s.rdb != nil {
		if bs, _ := s.rdb.Get(ctx, infrds.IdemResultKey(in.IdempotencyKey)).Bytes(); len(bs) > 0 {
			var out BetOutput
			if common.JsonUnmarshal(bs, &out) == nil {
				fmt.Printf("[Bet]  Redis 缓存命中: idem_key=%s, bill_no=%s, trace_id=%s\n",
					in.IdempotencyKey, out.BillNo, in.TraceID)
				return &out, nil
			}
		}
	}

	// ========== 进行中锁 ==========
	// 1. SetNX 抢占，锁值为 UUID，防止误删其他请求的锁
	// 2. 抢占失败：先查结果缓存，再按进行中拒绝
	// 3. 原子释放（Lua 比对锁值后删除）
	// ================================================
	if s.locker != nil {
		lockName := "bet:idem:" + in.IdempotencyKey
		token, ok, lerr := s.locker.Acquire(ctx, lockName, idemLockTTL)
		if lerr == nil && !ok {
			if s.rdb != nil {
				if bs, _ := s.rdb.Get(ctx, infrds.IdemResultKey(in.IdempotencyKey)).Bytes(); len(bs) > 0 {
					var out BetOutput
					if common.JsonUnmarshal(bs, &out) == nil {
						fmt.Printf("[Bet] Redis 缓存命中（重复请求）: idem_key=%s, bill_no=%s, trace_id=%s\n",
							in.IdempotencyKey, out.BillNo, in.TraceID)
						return &out, nil
					}
				}
			}
			fmt.Printf("[Bet]  重复请求进行中: idem_key=%s, trace_id=%s\n",
				in.IdempotencyKey, in.TraceID)
			return nil, ErrDuplicateInFlight
		}
		if lerr == nil && ok {
			defer func() {
				released, rerr := s.locker.Release(ctx, lockName, token)
				if rerr != nil {
					fmt.Printf("[Bet] 释放进行中锁失败: idem_key=%s, error=%v, trace_id=%s\n",
						in.IdempotencyKey, rerr, in.TraceID)
				} else if !released {
					fmt.Printf("[Bet] 进行中锁已被其他请求释放或过期: idem_key=%s, trace_id=%s\n",
						in.IdempotencyKey, in.TraceID)
				}
			}()
		}
		// 锁服务异常时直接走数据库路径，幂等唯一键仍然兜底
	}

	// 开启 MySQL 事务（带默认超时，防止长事务影响并发）。
	// 若上游 ctx 已设置 deadline，则沿用；否则使用默认 defaultTxTimeout。
	txCtx := ctx
	if _, has := ctx.Deadline(); !has {
		c, cancel := context.WithTimeout(ctx, defaultTxTimeout)
		txCtx = c
		defer cancel()
	}
	tx, err := s.db.BeginTxx(txCtx, nil)
	if err != nil {
		fmt.Printf("[Bet] 开启事务失败: error=%v, round_id=%s, trace_id=%s\n",
			err, in.RoundID, in.TraceID)
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// 获取或创建用户（自动注册）
	user, err := getOrCreateUserInTx(txCtx, tx, in.ExternalID, in.Nickname)
	if err != nil {
		fmt.Printf("[Bet] 获取或创建用户失败: error=%v, external_id=%s, trace_id=%s\n",
			err, in.ExternalID, in.TraceID)
		return nil, fmt.Errorf("failed to get or create user: %w", err)
	}

	// 生成订单号（使用可读格式，使用内部用户ID）
	billNo := generateBillNo("CR", user.ID)

	// 获取回合信息并锁定
	round, err := model.GetRoundForUpdate(txCtx, tx, in.RoundID)
	if err != nil {
		if err == sql.ErrNoRows {
			fmt.Printf("[Bet]  游戏回合不存在: round_id=%s, trace_id=%s\n", in.RoundID, in.TraceID)
			return nil, ErrRoundNotFound
		}
		fmt.Printf("[Bet]  查询游戏回合失败: error=%v, round_id=%s, trace_id=%s\n",
			err, in.RoundID, in.TraceID)
		return nil, fmt.Errorf("failed to get round info: %w", err)
	}

	// 校验回合状态：仅在 betting 状态允许下注
	if round.Status != model.RoundStatusBetting {
		fmt.Printf("[Bet]  游戏状态不允许投注: current_state=%s(%d), expected=betting(%d), round_id=%s, trace_id=%s\n",
			model.RoundCodeToState(round.Status), round.Status, model.RoundStatusBetting, in.RoundID, in.TraceID)
		return nil, ErrInvalidStateBet
	}

	// 验证时间窗口
	now := time.Now().UnixMilli()
	if now < round.BetStartTime {
		fmt.Printf("[Bet] 投注窗口未开始: now=%d, bet_start=%d, round_id=%s, trace_id=%s\n",
			now, round.BetStartTime, in.RoundID, in.TraceID)
		return nil, ErrBetWindowNotStart
	}
	if now > round.BetStopTime {
		fmt.Printf("[Bet] 投注窗口已关闭: now=%d, bet_stop=%d, round_id=%s, trace_id=%s\n",
			now, round.BetStopTime, in.RoundID, in.TraceID)
		return nil, ErrBetWindowClosed
	}

	// 幂等：先占幂等键，biz_ref 记录 bill_no
	if err := (&model.IdempotencyKey{IdempotencyKey: in.IdempotencyKey, UserID: user.ID, BizRef: billNo}).Insert(txCtx, tx); err != nil {
		// 若幂等冲突：尝试返回上次结果
		var me *mysqlerr.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			fmt.Printf("[Bet]  幂等键冲突，尝试返回上次结果: idem_key=%s, trace_id=%s\n",
				in.IdempotencyKey, in.TraceID)
			_ = tx.Rollback()
			return s.replayBetResult(ctx, in)
		}
		fmt.Printf("[Bet]  插入幂等键失败: error=%v, idem_key=%s, trace_id=%s\n",
			err, in.IdempotencyKey, in.TraceID)
		return nil, fmt.Errorf("idempotency conflict or insert failed: %w", err)
	}

	// 校验用户状态（user 已经在事务中加锁）
	if user.Status != constant.StatusNormal {
		fmt.Printf("[Bet]  用户状态异常: user_id=%d, status=%d, trace_id=%s\n",
			user.ID, user.Status, in.TraceID)
		return nil, ErrUserDisabled
	}
	// 校验余额（decimal 比较，按资金模式取对应账户）
	before := user.BalanceFor(in.Mode)
	if before.Cmp(amtDec) < 0 {
		return nil, ErrInsufficientBalance
	}

	after := before.Sub(amtDec)

	// 更新余额（两位小数）
	if err := model.UpdateUserBalance(txCtx, tx, user.ID, in.Mode, after.Round(2)); err != nil {
		return nil, err
	}

	// 写账本，此处为扣款（账本金额带符号）
	ledger := &model.BalanceLog{
		UserID:        user.ID,
		ChangeType:    constant.ChangeTypeBetDebit,
		Mode:          in.Mode,
		Amount:        amtDec.Neg(),
		BalanceBefore: before,
		BalanceAfter:  after,
		RefNo:         billNo,
		RoundID:       in.RoundID,
		Remark:        "bet deduct",
		TraceID:       in.TraceID,
	}
	if err := ledger.Insert(txCtx, tx); err != nil {
		fmt.Printf("[Bet]  写入账本失败: error=%v, bill_no=%s, trace_id=%s\n",
			err, billNo, in.TraceID)
		return nil, err
	}

	// 落注单（pending 等待逃离或崩盘结算）
	bet := &model.Bet{
		ID:            snowflake.NextID(),
		BillNo:        billNo,
		UserID:        user.ID,
		RoundID:       in.RoundID,
		Asset:         round.Asset,
		Amount:        amtDec,
		Mode:          in.Mode,
		AutoCashout:   autoCashout,
		Multiplier:    decimal.Zero,
		Payout:        decimal.Zero,
		Status:        model.BetStatusPending,
		BalanceBefore: before,
		BalanceAfter:  after,
		TraceID:       in.TraceID,
	}
	if err := bet.Insert(txCtx, tx); err != nil {
		fmt.Printf("[Bet]  创建注单失败: error=%v, bill_no=%s, trace_id=%s\n",
			err, billNo, in.TraceID)
		return nil, err
	}

	// 真金本金进入资金池，崩盘未逃离时即为庄家收入
	if in.Mode == constant.ModeReal {
		if _, _, err := s.pool.ApplyDeltaTx(txCtx, tx, round.Asset, amtDec, model.PoolReasonBetStake, billNo, in.TraceID); err != nil {
			fmt.Printf("[Bet]  资金池入账失败: error=%v, bill_no=%s, asset=%s, trace_id=%s\n",
				err, billNo, round.Asset, in.TraceID)
			return nil, err
		}
	}

	// Outbox 消息（异步）
	payload := map[string]any{
		"event":       "bet_placed",
		"bill_no":     billNo,
		"user_id":     user.ID,
		"external_id": in.ExternalID,
		"round_id":    in.RoundID,
		"asset":       round.Asset,
		"amount":      amtDec.String(),
		"mode":        modeStr,
	}
	if err := model.CreateOutbox(txCtx, tx, "bet_placed", billNo, payload); err != nil {
		fmt.Printf("[Bet]  写入 Outbox 失败: error=%v, bill_no=%s, trace_id=%s\n",
			err, billNo, in.TraceID)
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		fmt.Printf("[Bet]  提交事务失败: error=%v, bill_no=%s, trace_id=%s\n",
			err, billNo, in.TraceID)
		return nil, err
	}

	result = "success"
	out := &BetOutput{BillNo: billNo, Balance: chelper.TrimDecimal(after)}

	// 写入 Redis 结果缓存（降级容错）
	if s.rdb != nil {
		if b, e := common.JsonMarshal(out); e == nil {
			_ = s.rdb.Set(ctx, infrds.IdemResultKey(in.IdempotencyKey), b, idemResultTTL).Err()
		}
	}

	return out, nil
}

// replayBetResult 幂等键冲突后的回放：Redis 结果缓存优先，数据库回源兜底
func (s *betService) replayBetResult(ctx context.Context, in BetInput) (*BetOutput, error) {
	if s.rdb != nil {
		if bs, _ := s.rdb.Get(ctx, infrds.IdemResultKey(in.IdempotencyKey)).Bytes(); len(bs) > 0 {
			var out BetOutput
			if common.JsonUnmarshal(bs, &out) == nil {
				fmt.Printf("[Bet]  从 Redis 返回上次结果: bill_no=%s, trace_id=%s\n",
					out.BillNo, in.TraceID)
				return &out, nil
			}
		}
	}
	// DB 回源：根据幂等键查 bill_no，再查用户余额
	ref, err := model.SelectBizRefByIdemKey(ctx, s.db, in.IdempotencyKey)
	if err != nil || ref == "" {
		return nil, fmt.Errorf("idempotency replay failed: %w", err)
	}
	u, err := model.GetUserByExternalID(ctx, s.db, in.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("idempotency replay failed: %w", err)
	}
	fmt.Printf("[Bet]  从数据库返回上次结果: bill_no=%s, trace_id=%s\n",
		ref, in.TraceID)
	return &BetOutput{BillNo: ref, Balance: chelper.TrimDecimal(u.BalanceFor(in.Mode))}, nil
}

// generateBillNo 生成可读的订单号
// 格式：{前缀}{YYYYMMDD}{HHmmss}{UserID后4位}{随机3位十六进制}
// 示例：CR20260825143025100156A
// 优点：
//   - 可读：包含日期、时间、用户信息
//   - 有序：按时间排序
//   - 唯一：时间 + 用户 + 随机数保证唯一性
//   - 可追踪：可以从订单号看出下单时间和用户
func generateBillNo(prefix string, userID int64) string {
	now := time.Now()
	// 日期时间部分：YYYYMMDD HHmmss
	dateTime := now.Format("20060102150405")
	// 用户ID后4位
	userSuffix := fmt.Sprintf("%04d", userID%10000)
	// 随机3位十六进制（0-FFF，4096种可能）
	randomBytes := make([]byte, 2)
	rand.Read(randomBytes)
	randomHex := strings.ToUpper(hex.EncodeToString(randomBytes)[:3])

	return fmt.Sprintf("%s%s%s%s", prefix, dateTime, userSuffix, randomHex)
}

// getOrCreateUserInTx 在事务中获取或创建用户
// 如果用户不存在，自动创建；如果存在，返回现有用户并加锁
func getOrCreateUserInTx(ctx context.Context, tx *sqlx.Tx, externalID, nickname string) (*model.User, error) {
	// 1. 先尝试加锁查询
	user, err := model.GetUserByExternalIDForUpdate(ctx, tx, externalID)
	if err == nil {
		return user, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	// 2. 用户不存在，事务内创建
	now := time.Now().UnixMilli()
	query := `INSERT INTO users (external_id, nickname, real_balance, play_balance, status, created_at, updated_at)
	          VALUES (?, ?, 0.00, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, query,
		externalID, nickname, model.NewUserPlayBalance, constant.StatusNormal, now, now)
	if err != nil {
		// 3. 处理并发创建的情况（唯一索引冲突）：重新加锁查询
		if model.IsDuplicateKeyErr(err) {
			return model.GetUserByExternalIDForUpdate(ctx, tx, externalID)
		}
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &model.User{
		ID:          id,
		ExternalID:  externalID,
		Nickname:    nickname,
		RealBalance: decimal.Zero,
		PlayBalance: model.NewUserPlayBalance,
		Status:      constant.StatusNormal,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
