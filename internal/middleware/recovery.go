package middleware

import (
	"runtime/debug"
	"time"

	"crash-server/common/logger"
	"crash-server/internal/common/helper"
	"crash-server/internal/common/response"

	beego "github.com/beego/beego/v2/server/web"
	beegocontext "github.com/beego/beego/v2/server/web/context"
	"go.uber.org/zap"
)

// RecoveryFilterChain Panic Recovery 中间件
// 以 FilterChain 形式包裹整条处理链（含控制器），捕获所有未处理的 panic
func RecoveryFilterChain(next beego.FilterFunc) beego.FilterFunc {
	return func(ctx *beegocontext.Context) {
		defer func() {
			if err := recover(); err != nil {
				traceID := helper.GetTraceID(ctx)

				// 记录 panic 信息和堆栈
				logger.Error("panic recovered",
					zap.String("trace_id", traceID),
					zap.String("method", ctx.Request.Method),
					zap.String("path", ctx.Request.URL.Path),
					zap.Any("error", err),
					zap.String("stack", string(debug.Stack())))

				// 返回 500 错误
				ctx.Output.SetStatus(500)
				ctx.Output.JSON(response.APIResponse{
					Code:      response.CodeSystemError,
					Message:   response.ErrorMessages[response.CodeSystemError],
					Data:      nil,
					TraceID:   traceID,
					Timestamp: time.Now().UnixMilli(),
				}, false, false)
			}
		}()
		next(ctx)
	}
}
