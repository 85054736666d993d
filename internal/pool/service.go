package pool

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"crash-server/common/helper"
	"crash-server/common/logger"
	infredis "crash-server/internal/infra/redis"
	"crash-server/internal/metrics"
	"crash-server/internal/model"

	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	// ErrNotInitialized 资金池尚未初始化（区别于版本冲突，调用方不应重试）
	ErrNotInitialized = errors.New("pool: asset not initialized")
	// ErrConflict 版本冲突且重试耗尽
	ErrConflict = errors.New("pool: version conflict, retries exhausted")
)

const (
	casRetries      = 3
	displayCacheTTL = 5 * time.Second
)

// Service 平台资金池（按资产分池）
// 并发控制：乐观版本号 CAS；独立调用走 ApplyDelta（自带小事务+有界重试），
// 已持有事务的调用方走 ApplyDeltaTx（行锁路径，不重试）
type Service interface {
	// Initialize 幂等初始化资金池，返回当前余额（已存在时读回既有值，不覆盖）
	Initialize(ctx context.Context, asset string, initial decimal.Decimal) (decimal.Decimal, error)
	// GetBalance 返回池余额与是否已初始化
	GetBalance(ctx context.Context, asset string) (decimal.Decimal, bool, error)
	// GetDisplayBalance 返回展示用余额字符串（两位小数），任何异常降级为 "0.00"
	GetDisplayBalance(ctx context.Context, asset string) string
	// ApplyDelta 独立小事务内按版本号 CAS 调整余额，带符号（入池为正），返回新余额与版本。
	// 余额允许为负：派彩义务不受池内存量约束，负值表示池对外欠付
	ApplyDelta(ctx context.Context, asset string, delta decimal.Decimal, reason int8, refNo, traceID string) (decimal.Decimal, int64, error)
	// ApplyDeltaTx 在调用方事务内以 FOR UPDATE 行锁调整余额，返回新余额与版本
	ApplyDeltaTx(ctx context.Context, tx *sqlx.Tx, asset string, delta decimal.Decimal, reason int8, refNo, traceID string) (decimal.Decimal, int64, error)
}

type service struct {
	db  *sqlx.DB
	rdb *goredis.Client
}

// NewService 创建资金池服务，rdb 仅用于展示余额缓存，可为 nil
func NewService(db *sqlx.DB, rdb *goredis.Client) Service {
	return &service{db: db, rdb: rdb}
}

func (s *service) Initialize(ctx context.Context, asset string, initial decimal.Decimal) (decimal.Decimal, error) {
	if asset == "" {
		return decimal.Zero, errors.New("pool: asset required")
	}
	if initial.IsNegative() {
		return decimal.Zero, errors.New("pool: initial balance must be non-negative")
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return decimal.Zero, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := model.InsertPool(ctx, tx, asset, initial); err != nil {
		if model.IsDuplicateKeyErr(err) {
			// 已初始化，读回既有余额幂等返回
			p, gerr := model.GetPool(ctx, s.db, asset)
			if gerr != nil {
				return decimal.Zero, gerr
			}
			return p.Balance, nil
		}
		return decimal.Zero, err
	}
	poolLog := &model.HousePoolLog{
		Asset:        asset,
		Amount:       initial,
		BalanceAfter: initial,
		Reason:       model.PoolReasonInit,
	}
	if err := poolLog.Insert(ctx, tx); err != nil {
		return decimal.Zero, err
	}
	if err := tx.Commit(); err != nil {
		return decimal.Zero, err
	}
	logger.Info("house pool initialized",
		zap.String("asset", asset),
		zap.String("initial", initial.String()))
	return initial, nil
}

func (s *service) GetBalance(ctx context.Context, asset string) (decimal.Decimal, bool, error) {
	p, err := model.GetPool(ctx, s.db, asset)
	if err != nil {
		if err == sql.ErrNoRows {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}
	return p.Balance, true, nil
}

func (s *service) GetDisplayBalance(ctx context.Context, asset string) string {
	// 读穿缓存：短 TTL 吸收行情页轮询
	if s.rdb != nil {
		if v, err := s.rdb.Get(ctx, infredis.PoolDisplayKey(asset)).Result(); err == nil && v != "" {
			return v
		}
	}
	bal, inited, err := s.GetBalance(ctx, asset)
	if err != nil || !inited {
		if err != nil {
			logger.WarnCtx(ctx, "pool display balance degraded",
				zap.String("asset", asset),
				zap.Error(err))
		}
		return "0.00"
	}
	display := helper.TrimDecimal(bal)
	if s.rdb != nil {
		if err := s.rdb.Set(ctx, infredis.PoolDisplayKey(asset), display, displayCacheTTL).Err(); err != nil {
			logger.WarnCtx(ctx, "pool display cache set failed", zap.String("asset", asset), zap.Error(err))
		}
	}
	return display
}

// ApplyDelta 每次尝试都开独立小事务：普通读取版本快照 -> 版本条件更新 -> 流水 -> 提交。
// REPEATABLE READ 下同一事务内重读永远看到旧快照，因此重试必须换事务。
func (s *service) ApplyDelta(ctx context.Context, asset string, delta decimal.Decimal, reason int8, refNo, traceID string) (decimal.Decimal, int64, error) {
	if asset == "" {
		return decimal.Zero, 0, errors.New("pool: asset required")
	}
	if delta.IsZero() {
		return decimal.Zero, 0, errors.New("pool: delta must be non-zero")
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
	}

	for attempt := 0; attempt < casRetries; attempt++ {
		balance, version, conflict, err := s.applyDeltaOnce(ctx, asset, delta, reason, refNo, traceID)
		if err != nil {
			return decimal.Zero, 0, err
		}
		if !conflict {
			return balance, version, nil
		}
		metrics.RecordPoolConflict(asset)
		logger.WarnCtx(ctx, "pool cas conflict, retrying",
			zap.String("asset", asset),
			zap.Int("attempt", attempt+1),
			zap.String("trace_id", traceID))
	}
	return decimal.Zero, 0, ErrConflict
}

func (s *service) applyDeltaOnce(ctx context.Context, asset string, delta decimal.Decimal, reason int8, refNo, traceID string) (balance decimal.Decimal, version int64, conflict bool, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return decimal.Zero, 0, false, err
	}
	defer func() { _ = tx.Rollback() }()

	p, err := model.GetPool(ctx, tx, asset)
	if err != nil {
		if err == sql.ErrNoRows {
			return decimal.Zero, 0, false, ErrNotInitialized
		}
		return decimal.Zero, 0, false, err
	}
	newBalance := p.Balance.Add(delta)

	rows, err := model.CASUpdatePool(ctx, tx, asset, newBalance, p.Version)
	if err != nil {
		return decimal.Zero, 0, false, err
	}
	if rows == 0 {
		// 版本已被并发推进，换事务重试
		return decimal.Zero, 0, true, nil
	}

	poolLog := &model.HousePoolLog{
		Asset:         asset,
		Amount:        delta,
		BalanceBefore: p.Balance,
		BalanceAfter:  newBalance,
		VersionAfter:  p.Version + 1,
		Reason:        reason,
		RefNo:         refNo,
		TraceID:       traceID,
	}
	if err := poolLog.Insert(ctx, tx); err != nil {
		return decimal.Zero, 0, false, err
	}
	if err := tx.Commit(); err != nil {
		return decimal.Zero, 0, false, err
	}
	metrics.SetPoolBalance(asset, newBalance.InexactFloat64())
	return newBalance, p.Version + 1, false, nil
}

// ApplyDeltaTx 行锁路径：FOR UPDATE 读后版本条件更新，锁内版本不可能变化，
// 更新 0 行只剩资金池被并发删除一种解释，按冲突报出
func (s *service) ApplyDeltaTx(ctx context.Context, tx *sqlx.Tx, asset string, delta decimal.Decimal, reason int8, refNo, traceID string) (decimal.Decimal, int64, error) {
	if asset == "" {
		return decimal.Zero, 0, errors.New("pool: asset required")
	}
	if delta.IsZero() {
		return decimal.Zero, 0, errors.New("pool: delta must be non-zero")
	}
	p, err := model.GetPoolForUpdate(ctx, tx, asset)
	if err != nil {
		if err == sql.ErrNoRows {
			return decimal.Zero, 0, ErrNotInitialized
		}
		return decimal.Zero, 0, err
	}
	newBalance := p.Balance.Add(delta)

	rows, err := model.CASUpdatePool(ctx, tx, asset, newBalance, p.Version)
	if err != nil {
		return decimal.Zero, 0, err
	}
	if rows == 0 {
		return decimal.Zero, 0, ErrConflict
	}

	poolLog := &model.HousePoolLog{
		Asset:         asset,
		Amount:        delta,
		BalanceBefore: p.Balance,
		BalanceAfter:  newBalance,
		VersionAfter:  p.Version + 1,
		Reason:        reason,
		RefNo:         refNo,
		TraceID:       traceID,
	}
	if err := poolLog.Insert(ctx, tx); err != nil {
		return decimal.Zero, 0, err
	}
	return newBalance, p.Version + 1, nil
}
