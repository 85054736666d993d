package redis

import "fmt"

// Redis Key 定义与构造器
// 统一管理业务使用的 Redis Key，避免散落的魔法字符串，便于统一维护与变更。

const (
	// PrefixBetIdemResult：投注幂等“结果缓存”Key 的前缀。
	// 作用：缓存某个 idempotency key 对应的第一次成功结果（BetOutput JSON），用于后续重复请求直接返回。
	// 注意：幂等“进行中锁”不在这里，统一走 lock 包的 lock: 命名空间。
	PrefixBetIdemResult = "bet:idem:result:"

	// PrefixLock：分布式锁命名空间（驱动器选主、回合结算互斥、投注幂等进行中锁）
	PrefixLock = "lock:"

	// PrefixRateLimit：滑动窗口限流 ZSET
	PrefixRateLimit = "ratelimit:"

	// PrefixRoundInfo：回合信息缓存（下注窗口、状态），前端倒计时等快速查询
	PrefixRoundInfo = "round:info:"
	// PrefixRoundMult：回合实时倍率，驱动器逐笔写入，逃离结算读取
	PrefixRoundMult = "round:mult:"
	// PrefixRoundResult：回合崩盘结果缓存
	PrefixRoundResult = "round:result:"
	// PrefixCurrentRound：每个资产当前进行中的回合ID
	PrefixCurrentRound = "round:current:"

	// PrefixPoolDisplay：奖池展示余额短缓存，读多写少
	PrefixPoolDisplay = "pool:display:"
)

// IdemResultKey：构造幂等“结果缓存”的完整 Key。
// 形如：bet:idem:result:{idempotency_key}
func IdemResultKey(k string) string { return PrefixBetIdemResult + k }

// LockKey：构造分布式锁 Key。形如：lock:{name}
func LockKey(name string) string { return PrefixLock + name }

// RateLimitKey：构造限流 Key。形如：ratelimit:{dimension}:{key}
func RateLimitKey(dimension, key string) string {
	return fmt.Sprintf("%s%s:%s", PrefixRateLimit, dimension, key)
}

// RoundInfoKey：构造回合信息缓存 Key。形如：round:info:{round_id}
func RoundInfoKey(roundID string) string { return PrefixRoundInfo + roundID }

// RoundMultKey：构造回合实时倍率 Key。形如：round:mult:{round_id}
func RoundMultKey(roundID string) string { return PrefixRoundMult + roundID }

// RoundResultKey：构造崩盘结果缓存 Key。形如：round:result:{round_id}
func RoundResultKey(roundID string) string { return PrefixRoundResult + roundID }

// CurrentRoundKey：构造当前回合指针 Key。形如：round:current:{asset}
func CurrentRoundKey(asset string) string { return PrefixCurrentRound + asset }

// PoolDisplayKey：构造奖池展示余额缓存 Key。形如：pool:display:{asset}
func PoolDisplayKey(asset string) string { return PrefixPoolDisplay + asset }
