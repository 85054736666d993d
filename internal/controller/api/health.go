package api

import (
	"time"

	infmysql "crash-server/internal/infra/mysql"
	infrds "crash-server/internal/infra/redis"

	beego "github.com/beego/beego/v2/server/web"
)

// HealthController 提供健康检查端点：/healthz 与 /readyz

type HealthController struct{ beego.Controller }

const readyProbeTimeout = 2 * time.Second

// Healthz 存活探针：仅返回进程存活
func (c *HealthController) Healthz() {
	c.Ctx.Output.SetStatus(200)
	_ = c.Ctx.Output.Body([]byte("ok"))
}

// Readyz 就绪探针：探测 MySQL 与 Redis 连通性
// Redis 未配置时视为可降级依赖，不影响整体就绪
func (c *HealthController) Readyz() {
	ctx := c.Ctx.Request.Context()

	if svcs.DB == nil || infmysql.Ping(ctx, svcs.DB, readyProbeTimeout) != nil {
		c.Ctx.Output.SetStatus(503)
		_ = c.Ctx.Output.Body([]byte("db not ready"))
		return
	}
	if svcs.RDB != nil {
		if err := infrds.Ping(ctx, svcs.RDB, readyProbeTimeout); err != nil {
			c.Ctx.Output.SetStatus(503)
			_ = c.Ctx.Output.Body([]byte("redis not ready"))
			return
		}
	}

	c.Ctx.Output.SetStatus(200)
	_ = c.Ctx.Output.Body([]byte("ready"))
}
