package middleware

import (
	"time"

	chelper "crash-server/common/helper"
	"crash-server/common/logger"
	"crash-server/internal/common/helper"
	"crash-server/internal/common/response"
	"crash-server/internal/config"
	"crash-server/internal/ratelimit"

	beegocontext "github.com/beego/beego/v2/server/web/context"
	"go.uber.org/zap"
)

// RateLimitFilter 按 IP 维度的入口限流过滤器
// 用户维度限流在投注服务内按身份执行，入口只负责拦截明显的刷接口流量；
// 限流器内部自带 Redis 降级，入口无需感知存储状态
func RateLimitFilter(limiter ratelimit.Limiter) func(*beegocontext.Context) {
	return func(ctx *beegocontext.Context) {
		if limiter == nil {
			return
		}
		rule, enabled := config.RateLimitByIP()
		if !enabled {
			return
		}

		clientIP := chelper.ClientIPFromRequest(ctx.Request)
		allowed := limiter.Allow(ctx.Request.Context(), ratelimit.Req{
			Dimension:    "ip",
			Key:          clientIP,
			Window:       rule.Window,
			Max:          rule.Max,
			StoreEnabled: rule.StoreEnabled,
		})
		if allowed {
			return
		}

		traceID := helper.GetTraceID(ctx)
		logger.Warn("ip rate limit exceeded",
			zap.String("trace_id", traceID),
			zap.String("client_ip", clientIP))
		ctx.Output.SetStatus(429)
		ctx.Output.JSON(response.APIResponse{
			Code:      response.CodeRateLimitExceeded,
			Message:   response.ErrorMessages[response.CodeRateLimitExceeded],
			Data:      nil,
			TraceID:   traceID,
			Timestamp: time.Now().UnixMilli(),
		}, false, false)
	}
}
