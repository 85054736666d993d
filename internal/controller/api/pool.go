package api

import (
	"strings"

	helper "crash-server/internal/common/helper"
	"crash-server/internal/common/response"

	beego "github.com/beego/beego/v2/server/web"
)

type PoolController struct{ beego.Controller }

// Balance 查询资金池展示余额：GET /api/pool/balance?asset=
// 行情页高频轮询接口，走短 TTL 展示缓存，任何异常降级为 "0.00" 不报错
func (c *PoolController) Balance() {
	traceID := helper.GetTraceID(c.Ctx)

	asset := strings.TrimSpace(c.Ctx.Input.Query("asset"))
	if asset == "" || len(asset) > 16 {
		response.BadRequest(&c.Controller, "asset required", traceID)
		return
	}

	display := svcs.Pool.GetDisplayBalance(c.Ctx.Request.Context(), asset)
	response.Success(&c.Controller, map[string]interface{}{
		"asset":   asset,
		"balance": display,
	}, traceID)
}
