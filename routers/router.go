package routers

import (
	"crash-server/internal/config"
	"crash-server/internal/controller/api"
	"crash-server/internal/metrics"
	"crash-server/internal/middleware"
	"crash-server/internal/ratelimit"

	beego "github.com/beego/beego/v2/server/web"
)

// Init 注册HTTP路由与全局过滤器
// beego 按类型反射创建控制器，服务依赖需先经 api.SetServices 装配；
// 不用 init() 注册，确保配置加载先于路由装配
func Init(limiter ratelimit.Limiter) {
	cfg := config.GetCurrent()

	// 全局过滤器（按执行顺序）
	// 1. Panic Recovery（FilterChain 包裹整条处理链，含控制器）
	beego.InsertFilterChain("/*", middleware.RecoveryFilterChain)

	// 2. 请求ID注入
	beego.InsertFilter("/*", beego.BeforeRouter, middleware.RequestIDFilter)

	// 3. CORS 处理（如果启用）
	if cfg != nil && cfg.CORS.Enabled {
		beego.InsertFilter("/*", beego.BeforeExec, middleware.CORSFilter)
	}

	// 4. HTTP 指标收集
	beego.InsertFilter("/*", beego.BeforeExec, metrics.HTTPMetricsFilter)
	beego.InsertFilter("/*", beego.FinishRouter, metrics.HTTPMetricsAfter)

	// 5. IP 维度入口限流（业务 API；用户维度限流在投注服务内）
	if cfg != nil && cfg.RateLimit.Enabled {
		beego.InsertFilter("/api/*", beego.BeforeExec, middleware.RateLimitFilter(limiter))
	}

	// 健康检查（无需身份）
	beego.Router("/healthz", &api.HealthController{}, "get:Healthz")
	beego.Router("/readyz", &api.HealthController{}, "get:Readyz")

	// ========== 业务 API（需要网关身份头） ==========

	beego.InsertFilter("/api/bet", beego.BeforeExec, middleware.IdentityFilter)
	beego.Router("/api/bet", &api.BetController{}, "post:Bet")

	beego.InsertFilter("/api/cashout", beego.BeforeExec, middleware.IdentityFilter)
	beego.Router("/api/cashout", &api.CashoutController{}, "post:Cashout")

	beego.InsertFilter("/api/user/*", beego.BeforeExec, middleware.IdentityFilter)
	beego.Router("/api/user/balance", &api.UserController{}, "get:Balance")
	beego.Router("/api/user/bets", &api.UserController{}, "get:Bets")

	beego.InsertFilter("/api/recharge/create", beego.BeforeExec, middleware.IdentityFilter)
	beego.InsertFilter("/api/recharge/query", beego.BeforeExec, middleware.IdentityFilter)
	beego.Router("/api/recharge/create", &api.RechargeController{}, "post:Create")
	beego.Router("/api/recharge/query", &api.RechargeController{}, "get:Query")
	// 网关回调走报文签名鉴权，不吃身份头
	beego.Router("/api/recharge/callback", &api.RechargeController{}, "post:Callback")

	// ========== 行情查询（匿名只读） ==========

	beego.Router("/api/pool/balance", &api.PoolController{}, "get:Balance")
	beego.Router("/api/round/current", &api.RoundController{}, "get:Current")
	beego.Router("/api/round/history", &api.RoundController{}, "get:History")
	beego.Router("/api/round/:round_id", &api.RoundController{}, "get:GetRound")
}
