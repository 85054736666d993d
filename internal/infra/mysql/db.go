package mysql

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// 数据库句柄由 main 经 common.InitDB 创建并显式注入各服务，此处保留探活与建表辅助。

// Ping 在给定超时时间内探测数据库连接是否可用，/readyz 使用。
func Ping(ctx context.Context, db *sqlx.DB, timeout time.Duration) error {
	c, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return db.PingContext(c)
}
