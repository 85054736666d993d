package api

import (
	"errors"

	helper "crash-server/internal/common/helper"
	"crash-server/internal/common/response"
	"crash-server/internal/middleware"
	"crash-server/internal/service"

	beego "github.com/beego/beego/v2/server/web"
)

type CashoutController struct{ beego.Controller }

// Cashout 处理逃跑接口：POST /api/cashout
// 倍数由服务端按回合当前行情决定，客户端只提交注单号；
// 同一注单的并发逃跑/结算由注单行锁串行化，重复请求回放首次结果
func (c *CashoutController) Cashout() {
	traceID := helper.GetTraceID(c.Ctx)

	cp, ok, msg := helper.ParseAndValidateCashout(c.Ctx)
	if !ok {
		response.BadRequest(&c.Controller, msg, traceID)
		return
	}

	externalID := middleware.ExternalID(c.Ctx)
	if externalID == "" {
		response.Error(&c.Controller, 401, response.CodeUnauthorized, traceID)
		return
	}

	out, err := svcs.Cashout.Cashout(c.Ctx.Request.Context(), service.CashoutInput{
		BillNo:     cp.BillNo,
		ExternalID: externalID,
		Source:     "manual",
		TraceID:    traceID,
	})
	if err != nil {
		// 注单不存在或不属于当前用户
		if errors.Is(err, service.ErrBetNotFound) {
			response.NotFound(&c.Controller, "注单不存在", traceID)
			return
		}
		// 注单已结算（输单/退款后不能再逃跑）
		if errors.Is(err, service.ErrAlreadySettled) {
			response.Conflict(&c.Controller, response.CodeAlreadySettled, traceID)
			return
		}
		// 回合不在飞行中
		if errors.Is(err, service.ErrInvalidStateCashout) {
			response.Conflict(&c.Controller, response.CodeInvalidState, traceID)
			return
		}
		// 当前倍数不可用（行情缓存缺失）
		if errors.Is(err, service.ErrMultiplierUnknown) {
			response.Conflict(&c.Controller, response.CodeMultiplierUnknown, traceID)
			return
		}
		response.InternalError(&c.Controller, traceID)
		return
	}

	response.Success(&c.Controller, map[string]interface{}{
		"bill_no":    out.BillNo,
		"multiplier": out.Multiplier,
		"payout":     out.Payout,
		"balance":    out.Balance,
	}, traceID)
}
