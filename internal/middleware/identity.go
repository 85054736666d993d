package middleware

import (
	"strings"
	"time"

	"crash-server/common/logger"
	"crash-server/internal/common/helper"
	"crash-server/internal/common/response"

	beegocontext "github.com/beego/beego/v2/server/web/context"
	"go.uber.org/zap"
)

// IdentityFilter 从接入网关注入的请求头提取用户身份
// 会话与签名校验由外部网关完成，本服务只信任内网链路上的身份头：
//   - X-User-Id: 接入方用户ID（必填）
//   - X-Nickname: 昵称（可选，首次建户时落库）
func IdentityFilter(ctx *beegocontext.Context) {
	externalID := strings.TrimSpace(ctx.Input.Header("X-User-Id"))
	if externalID == "" || len(externalID) > 64 {
		traceID := helper.GetTraceID(ctx)
		logger.Warn("identity header missing or invalid",
			zap.String("trace_id", traceID),
			zap.String("path", ctx.Request.URL.Path))
		ctx.Output.SetStatus(401)
		ctx.Output.JSON(response.APIResponse{
			Code:      response.CodeUnauthorized,
			Message:   response.ErrorMessages[response.CodeUnauthorized],
			Data:      nil,
			TraceID:   traceID,
			Timestamp: time.Now().UnixMilli(),
		}, false, false)
		return
	}

	ctx.Input.SetData("external_id", externalID)
	if nick := strings.TrimSpace(ctx.Input.Header("X-Nickname")); nick != "" && len(nick) <= 64 {
		ctx.Input.SetData("nickname", nick)
	}
}

// ExternalID 读取身份中间件注入的用户标识，未注入时返回空串
func ExternalID(ctx *beegocontext.Context) string {
	if v := ctx.Input.GetData("external_id"); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Nickname 读取身份中间件注入的昵称，未注入时返回空串
func Nickname(ctx *beegocontext.Context) string {
	if v := ctx.Input.GetData("nickname"); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
