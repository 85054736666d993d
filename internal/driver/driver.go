package driver

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	chelper "crash-server/common/helper"
	"crash-server/common/logger"
	infrds "crash-server/internal/infra/redis"
	"crash-server/internal/lock"
	"crash-server/internal/metrics"
	"crash-server/internal/model"
	"crash-server/internal/service"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"
	decimal "github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// 回合驱动器：驱动单一资产的回合循环
// open -> 下注窗口 -> launch -> tick 推进倍率/自动逃离 -> crash -> settle -> 间隔
// 多实例部署通过分布式锁选主，仅持锁实例驱动，其余实例热备

const (
	driverLockTTL  = 30 * time.Second
	heartbeatEvery = 10 * time.Second
	acquireRetry   = 5 * time.Second
	// 倍率广播 TTL：回合结束后残留 key 自动过期
	multPublishTTL = 15 * time.Second
)

// Config 单条资产线的回合参数
type Config struct {
	BetWindow     time.Duration
	RoundGap      time.Duration
	Tick          time.Duration
	HouseEdge     float64 // (0,1)，崩盘点分布的庄家优势
	GrowthRate    float64 // 指数曲线增长率（每秒）
	MaxMultiplier float64
}

func (c *Config) normalize() {
	if c.BetWindow <= 0 {
		c.BetWindow = 10 * time.Second
	}
	if c.RoundGap <= 0 {
		c.RoundGap = 5 * time.Second
	}
	if c.Tick <= 0 {
		c.Tick = 100 * time.Millisecond
	}
	if c.HouseEdge <= 0 || c.HouseEdge >= 1 {
		c.HouseEdge = 0.03
	}
	if c.GrowthRate <= 0 {
		c.GrowthRate = 0.06
	}
	if c.MaxMultiplier < 1 {
		c.MaxMultiplier = 1000
	}
}

// Deps 驱动器依赖，显式注入
type Deps struct {
	DB      *sqlx.DB
	RDB     *goredis.Client
	Rounds  service.RoundService
	Cashout service.CashoutService
	Locker  lock.Lock
	Prices  PriceSource
}

type Driver struct {
	asset string
	cfg   Config
	deps  Deps
}

// New 创建驱动器；Prices 为空时使用模拟行情源
func New(asset string, cfg Config, deps Deps) *Driver {
	cfg.normalize()
	if deps.Prices == nil {
		deps.Prices = NewSimulatedSource()
	}
	return &Driver{asset: asset, cfg: cfg, deps: deps}
}

// Start 启动驱动循环，通过 ctx 优雅退出
func (d *Driver) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.run(ctx)
	}()
}

func (d *Driver) run(ctx context.Context) {
	lockName := "round_driver:" + d.asset
	for {
		if ctx.Err() != nil {
			return
		}
		token, ok, err := d.deps.Locker.Acquire(ctx, lockName, driverLockTTL)
		if err != nil || !ok {
			if err != nil {
				logger.Warn("round driver: acquire leadership failed",
					zap.String("asset", d.asset), zap.Error(err))
			}
			// 带抖动重试，避免多实例同刻争抢
			if !sleepCtx(ctx, acquireRetry+chelper.RandJitterMs(0, 1000)) {
				return
			}
			continue
		}

		logger.Info("round driver: became leader", zap.String("asset", d.asset))
		d.lead(ctx, lockName, token)

		rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, _ = d.deps.Locker.Release(rctx, lockName, token)
		rcancel()
		logger.Info("round driver: leadership released", zap.String("asset", d.asset))
	}
}

// lead 持锁期间驱动回合，锁丢失或 ctx 结束返回
func (d *Driver) lead(ctx context.Context, lockName, token string) {
	leadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 心跳续期，续期失败即让位
	go func() {
		t := time.NewTicker(heartbeatEvery)
		defer t.Stop()
		for {
			select {
			case <-leadCtx.Done():
				return
			case <-t.C:
				ok, err := d.deps.Locker.Extend(leadCtx, lockName, token, driverLockTTL)
				if err != nil || !ok {
					logger.Warn("round driver: lost leadership",
						zap.String("asset", d.asset), zap.Error(err))
					cancel()
					return
				}
			}
		}
	}()

	for {
		if leadCtx.Err() != nil {
			return
		}
		d.driveOneRound(leadCtx)
		if !sleepCtx(leadCtx, d.cfg.RoundGap) {
			return
		}
	}
}

// driveOneRound 驱动一个完整回合
// 中途 ctx 结束时回合停留在中间态，由下次启动时的恢复流程接管
func (d *Driver) driveOneRound(ctx context.Context) {
	traceID := uuid.NewString()

	round, err := d.deps.Rounds.OpenRound(ctx, service.OpenRoundInput{
		Asset:     d.asset,
		BetWindow: d.cfg.BetWindow,
		TraceID:   traceID,
	})
	if err != nil {
		logger.Error("round driver: open round failed",
			zap.String("asset", d.asset), zap.Error(err))
		return
	}
	metrics.SetRoundMultiplier(d.asset, 1.0)

	// 等待下注窗口结束
	if !sleepCtx(ctx, time.Until(time.UnixMilli(round.BetStopTime))) {
		logger.Warn("round driver: interrupted during bet window",
			zap.String("round_id", round.RoundID))
		return
	}

	startPrice, err := d.deps.Prices.Sample(ctx, d.asset)
	if err != nil {
		startPrice = decimal.Zero
	}
	if err := d.deps.Rounds.LaunchRound(ctx, service.LaunchRoundInput{
		RoundID:    round.RoundID,
		StartPrice: startPrice.String(),
		TraceID:    traceID,
	}); err != nil {
		logger.Error("round driver: launch failed",
			zap.String("round_id", round.RoundID), zap.Error(err))
		return
	}

	crashPoint := deriveCrashPoint(chelper.RandFloat64(), d.cfg.HouseEdge)
	if maxMult := decimal.NewFromFloat(d.cfg.MaxMultiplier); crashPoint.GreaterThan(maxMult) {
		crashPoint = maxMult
	}

	launched := time.Now()
	ticker := time.NewTicker(d.cfg.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Warn("round driver: interrupted in flight",
				zap.String("round_id", round.RoundID))
			return
		case <-ticker.C:
		}

		mult := growMultiplier(time.Since(launched), d.cfg.GrowthRate)
		if mult.GreaterThan(crashPoint) {
			mult = crashPoint
		}
		d.publishMultiplier(ctx, round.RoundID, mult)
		d.sweepAutoCashouts(ctx, round.RoundID, mult, traceID)

		if mult.GreaterThanOrEqual(crashPoint) {
			break
		}
	}

	endPrice, err := d.deps.Prices.Sample(ctx, d.asset)
	if err != nil {
		endPrice = decimal.Zero
	}
	if err := d.deps.Rounds.CrashRound(ctx, service.CrashRoundInput{
		RoundID:         round.RoundID,
		CrashMultiplier: crashPoint.String(),
		EndPrice:        endPrice.String(),
		TraceID:         traceID,
	}); err != nil {
		logger.Error("round driver: crash failed",
			zap.String("round_id", round.RoundID), zap.Error(err))
		return
	}

	if err := d.deps.Rounds.SettleRound(ctx, service.SettleRoundInput{
		RoundID: round.RoundID,
		Source:  "driver",
		TraceID: traceID,
	}); err != nil {
		logger.Error("round driver: settle failed",
			zap.String("round_id", round.RoundID), zap.Error(err))
	}
}

// publishMultiplier 广播当前倍率：Redis 供逃离接口读取，指标供监控
func (d *Driver) publishMultiplier(ctx context.Context, roundID string, mult decimal.Decimal) {
	if d.deps.RDB != nil {
		_ = d.deps.RDB.Set(ctx, infrds.RoundMultKey(roundID), mult.String(), multPublishTTL).Err()
	}
	metrics.SetRoundMultiplier(d.asset, mult.InexactFloat64())
}

// sweepAutoCashouts 触发已到达自动逃离倍率的注单
// 单笔失败不影响其余注单；与手动逃离并发时以注单行锁为准
func (d *Driver) sweepAutoCashouts(ctx context.Context, roundID string, mult decimal.Decimal, traceID string) {
	bets, err := model.ListAutoCashoutDue(ctx, d.deps.DB, roundID, mult)
	if err != nil {
		logger.Warn("round driver: list auto cashout failed",
			zap.String("round_id", roundID), zap.Error(err))
		return
	}
	for _, b := range bets {
		_, cerr := d.deps.Cashout.Cashout(ctx, service.CashoutInput{
			BillNo:       b.BillNo,
			AtMultiplier: b.AutoCashout.String(),
			Source:       "auto",
			TraceID:      traceID,
		})
		if cerr != nil && !errors.Is(cerr, service.ErrAlreadySettled) {
			logger.Warn("round driver: auto cashout failed",
				zap.String("bill_no", b.BillNo), zap.Error(cerr))
		}
	}
}

// deriveCrashPoint 由均匀随机数推导崩盘倍率
// P(立即崩盘 1.00) = edge；其余服从 (1-edge)/(1-u) 长尾分布，
// 任意倍率 m 的生存概率为 (1-edge)/m，庄家期望优势恒为 edge
func deriveCrashPoint(u, edge float64) decimal.Decimal {
	if u < 0 {
		u = 0
	}
	if u >= 1 {
		u = math.Nextafter(1, 0)
	}
	if u < edge {
		return decimal.NewFromInt(1)
	}
	m := (1 - edge) / (1 - u)
	if m < 1 {
		m = 1
	}
	return decimal.NewFromFloat(m).RoundDown(2)
}

// growMultiplier 指数增长曲线：mult = e^(rate*t)，向下保留两位小数
func growMultiplier(elapsed time.Duration, rate float64) decimal.Decimal {
	m := math.Exp(rate * elapsed.Seconds())
	return decimal.NewFromFloat(m).RoundDown(2)
}

// sleepCtx 可取消休眠，返回 false 表示 ctx 已结束
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
