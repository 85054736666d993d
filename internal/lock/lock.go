package lock

import (
	"context"
	"errors"
	"time"

	infredis "crash-server/internal/infra/redis"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Lock 基于 Redis 的分布式锁
// token 防误删：Release/Extend 走 Lua 先比对持有者再操作
// 任何 Redis 异常一律视为未持有（fail closed），调用方不得在 err != nil 时继续临界区
type Lock interface {
	// Acquire 尝试获取锁，成功返回本次持有的 token
	// ok=false 且 err=nil 表示锁被他人持有
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	// Release 释放锁，仅当 token 与持有者一致时删除
	Release(ctx context.Context, key, token string) (bool, error)
	// Extend 续期，仅当 token 与持有者一致时刷新 TTL
	Extend(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// Exists 查询锁是否存在（不区分持有者）
	Exists(ctx context.Context, key string) (bool, error)
}

var ErrInvalidTTL = errors.New("lock: ttl must be positive")

// 比对持有者后删除
var releaseScript = goredis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

// 比对持有者后续期
var extendScript = goredis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	end
	return 0
`)

type redisLock struct {
	rdb *goredis.Client
}

// New 创建分布式锁实例
func New(rdb *goredis.Client) Lock {
	return &redisLock{rdb: rdb}
}

func (l *redisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if ttl <= 0 {
		return "", false, ErrInvalidTTL
	}
	// 每次获取都铸造新 token，token 不跨持有期复用
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, infredis.LockKey(key), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *redisLock) Release(ctx context.Context, key, token string) (bool, error) {
	res, err := releaseScript.Run(ctx, l.rdb, []string{infredis.LockKey(key)}, token).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (l *redisLock) Extend(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	res, err := extendScript.Run(ctx, l.rdb, []string{infredis.LockKey(key)}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (l *redisLock) Exists(ctx context.Context, key string) (bool, error) {
	n, err := l.rdb.Exists(ctx, infredis.LockKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
