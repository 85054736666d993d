package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"crash-server/common/logger"
	infredis "crash-server/internal/infra/redis"
	"crash-server/internal/metrics"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Req 单次准入判定的参数
// Dimension 进入 Redis key 前缀与日志标签（如 ip / user）
type Req struct {
	Dimension    string
	Key          string
	Window       time.Duration
	Max          int64
	StoreEnabled bool
}

// Limiter 滑动窗口限流器
// Redis 可用时窗口全局共享；Redis 异常时本次调用降级为进程内窗口，
// 降级按调用粒度生效，Redis 恢复后下一次调用即回到共享窗口
type Limiter interface {
	Allow(ctx context.Context, req Req) bool
}

type limiter struct {
	store *storeLimiter
	local *localLimiter
}

// New 创建限流器，rdb 可为 nil（纯进程内模式）
func New(rdb *goredis.Client) Limiter {
	return &limiter{
		store: &storeLimiter{rdb: rdb},
		local: newLocalLimiter(),
	}
}

func (l *limiter) Allow(ctx context.Context, req Req) bool {
	if req.Max <= 0 || req.Window <= 0 {
		// 规则未配置视为放行，限流配置错误不应熔断接口
		return true
	}
	if req.StoreEnabled && l.store.rdb != nil {
		allowed, err := l.store.allow(ctx, req)
		if err == nil {
			metrics.RecordRateLimit(req.Dimension, allowed)
			return allowed
		}
		metrics.RecordRateLimitFallback(req.Dimension)
		logger.Warn("rate limit store degraded to local window",
			zap.String("dimension", req.Dimension),
			zap.String("key", req.Key),
			zap.Error(err))
	}
	allowed := l.local.allow(req)
	metrics.RecordRateLimit(req.Dimension, allowed)
	return allowed
}

// 同毫秒并发请求的成员去重：纳秒时间戳拼进程内自增序号
var memberSeq int64

func nextMember() string {
	return strconv.FormatInt(time.Now().UnixNano(), 10) + "-" + strconv.FormatInt(atomic.AddInt64(&memberSeq, 1), 10)
}

// storeLimiter Redis ZSet 滑动窗口
type storeLimiter struct {
	rdb *goredis.Client
}

// allow 管道四连：清理过期成员 -> 写入本次标记 -> 计数 -> 续期
// 计数 <= Max 放行；超限时尽力移除本次标记（失败忽略），拒绝不占窗口容量
func (s *storeLimiter) allow(ctx context.Context, req Req) (bool, error) {
	key := infredis.RateLimitKey(req.Dimension, req.Key)
	member := nextMember()
	nowMs := time.Now().UnixMilli()
	winMs := req.Window.Milliseconds()

	pipe := s.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(nowMs-winMs, 10))
	pipe.ZAdd(ctx, key, goredis.Z{Score: float64(nowMs), Member: member})
	card := pipe.ZCard(ctx, key)
	pipe.PExpire(ctx, key, req.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	if card.Val() > req.Max {
		if err := s.rdb.ZRem(ctx, key, member).Err(); err != nil {
			logger.Warn("rate limit marker cleanup failed",
				zap.String("key", key),
				zap.Error(err))
		}
		return false, nil
	}
	return true, nil
}

// localLimiter 进程内滑动窗口（互斥锁保护的按键时间戳序列）
type localLimiter struct {
	mu        sync.Mutex
	windows   map[string][]int64
	lastSweep int64
}

const sweepInterval = 5 * time.Minute

func newLocalLimiter() *localLimiter {
	return &localLimiter{
		windows:   make(map[string][]int64),
		lastSweep: time.Now().UnixMilli(),
	}
}

func (l *localLimiter) allow(req Req) bool {
	return l.allowAt(req, time.Now().UnixMilli())
}

func (l *localLimiter) allowAt(req Req, nowMs int64) bool {
	cutoff := nowMs - req.Window.Milliseconds()
	key := req.Dimension + ":" + req.Key

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked(nowMs)

	win := l.windows[key]
	i := 0
	for i < len(win) && win[i] <= cutoff {
		i++
	}
	win = win[i:]

	// 与共享窗口语义一致：被拒绝的请求不占窗口容量
	if int64(len(win)) >= req.Max {
		l.windows[key] = win
		return false
	}
	l.windows[key] = append(win, nowMs)
	return true
}

// sweepLocked 周期性整表清理，防止冷 key 常驻内存；调用方必须持锁
func (l *localLimiter) sweepLocked(nowMs int64) {
	if nowMs-l.lastSweep < sweepInterval.Milliseconds() {
		return
	}
	l.lastSweep = nowMs
	for key, win := range l.windows {
		if len(win) == 0 || win[len(win)-1] < nowMs-sweepInterval.Milliseconds() {
			delete(l.windows, key)
		}
	}
}
