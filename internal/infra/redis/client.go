package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// 客户端由 main 统一创建并显式注入各服务，此处仅保留探活辅助。
// 锁、限流、缓存都挂在同一个连接池上。

var ErrNilClient = errors.New("redis client is nil")

// Ping 在给定超时时间内探测 Redis 连接是否可用，/readyz 使用。
func Ping(ctx context.Context, rdb *goredis.Client, timeout time.Duration) error {
	if rdb == nil {
		return ErrNilClient
	}
	c, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return rdb.Ping(c).Err()
}
