package api

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	chelper "crash-server/common/helper"
	"crash-server/common/logger"
	helper "crash-server/internal/common/helper"
	"crash-server/internal/common/response"
	"crash-server/internal/config"
	"crash-server/internal/middleware"
	"crash-server/internal/model"
	"crash-server/internal/service"
	"crash-server/internal/settlement"

	beego "github.com/beego/beego/v2/server/web"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type RechargeController struct{ beego.Controller }

// 回调体大小上限与时间戳新鲜度窗口
const (
	callbackMaxBytes  int64 = 1 << 20
	callbackMaxSkewMs int64 = 5 * 60 * 1000
)

// Create 创建充值订单：POST /api/recharge/create
// 下单成功即返回收银台地址；网关侧支付结果经异步回调入账
func (c *RechargeController) Create() {
	traceID := helper.GetTraceID(c.Ctx)

	rp, ok, msg := helper.ParseAndValidateRecharge(c.Ctx)
	if !ok {
		response.BadRequest(&c.Controller, msg, traceID)
		return
	}

	externalID := middleware.ExternalID(c.Ctx)
	if externalID == "" {
		response.Error(&c.Controller, 401, response.CodeUnauthorized, traceID)
		return
	}

	out, err := svcs.Recharge.CreateRechargeOrder(c.Ctx.Request.Context(), service.CreateRechargeInput{
		ExternalID: externalID,
		Nickname:   middleware.Nickname(c.Ctx),
		Amount:     rp.Amount,
		Channel:    rp.Channel,
		TraceID:    traceID,
	})
	if err != nil {
		if errors.Is(err, service.ErrGatewayUnavailable) {
			response.Error(&c.Controller, 502, response.CodeGatewayUnavailable, traceID)
			return
		}
		if errors.Is(err, service.ErrDailyCapExceeded) {
			response.Conflict(&c.Controller, response.CodeDailyCapExceeded, traceID)
			return
		}
		errMsg := err.Error()
		if strings.Contains(errMsg, "invalid recharge amount") ||
			strings.Contains(errMsg, "recharge amount must be positive") ||
			strings.Contains(errMsg, "precision exceeds") ||
			strings.Contains(errMsg, "below minimum") ||
			strings.Contains(errMsg, "exceeds maximum") {
			response.BadRequest(&c.Controller, errMsg, traceID)
			return
		}
		response.InternalError(&c.Controller, traceID)
		return
	}

	response.Success(&c.Controller, map[string]interface{}{
		"order_no": out.OrderNo,
		"pay_url":  out.PayURL,
	}, traceID)
}

// Query 查询充值订单状态：GET /api/recharge/query?order_no=
// 供客户端在支付页轮询结果，仅能查到本人的订单
func (c *RechargeController) Query() {
	traceID := helper.GetTraceID(c.Ctx)

	orderNo := strings.TrimSpace(c.Ctx.Input.Query("order_no"))
	if orderNo == "" || len(orderNo) > 64 {
		response.BadRequest(&c.Controller, "order_no required", traceID)
		return
	}

	externalID := middleware.ExternalID(c.Ctx)
	if externalID == "" {
		response.Error(&c.Controller, 401, response.CodeUnauthorized, traceID)
		return
	}

	order, err := svcs.Recharge.QueryRechargeOrder(c.Ctx.Request.Context(), externalID, orderNo)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			response.NotFound(&c.Controller, "充值订单不存在", traceID)
			return
		}
		response.InternalError(&c.Controller, traceID)
		return
	}

	response.Success(&c.Controller, map[string]interface{}{
		"order_no":     order.OrderNo,
		"amount":       chelper.TrimDecimal(order.Amount),
		"bonus_amount": chelper.TrimDecimal(order.BonusAmount),
		"status":       order.Status,
		"pay_time":     order.PayTime,
		"created_at":   order.CreatedAt,
	}, traceID)
}

// Callback 支付网关异步回调：POST /api/recharge/callback
// 验签通过后入账，应答固定字符串：success=终态已处理（网关停止重试），
// fail=暂未处理（网关按自身策略重试）
func (c *RechargeController) Callback() {
	traceID := helper.GetTraceID(c.Ctx)
	ackFail := func() {
		c.Ctx.Output.SetStatus(200)
		_ = c.Ctx.Output.Body([]byte("fail"))
	}
	ackSuccess := func() {
		c.Ctx.Output.SetStatus(200)
		_ = c.Ctx.Output.Body([]byte("success"))
	}

	cfg := config.GetCurrent()
	if cfg == nil || cfg.Gateway.Secret == "" {
		logger.Warn("recharge callback received but gateway not configured",
			zap.String("trace_id", traceID))
		ackFail()
		return
	}

	// 白名单配置为空时跳过来源校验，仅靠验签
	callerIP := chelper.ClientIPFromRequest(c.Ctx.Request)
	if len(cfg.Gateway.CallbackIPAllowlist) > 0 && !chelper.IpInList(callerIP, cfg.Gateway.CallbackIPAllowlist) {
		logger.Warn("recharge callback from unlisted ip",
			zap.String("trace_id", traceID),
			zap.String("caller_ip", callerIP))
		ackFail()
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Ctx.Request.Body, callbackMaxBytes))
	if err != nil {
		logger.Warn("recharge callback read body failed", zap.String("trace_id", traceID), zap.Error(err))
		ackFail()
		return
	}

	// ========== 验签 ==========
	merchantNo := strings.TrimSpace(c.Ctx.Input.Header("X-Merchant-No"))
	timestamp := strings.TrimSpace(c.Ctx.Input.Header("X-Timestamp"))
	nonce := strings.TrimSpace(c.Ctx.Input.Header("X-Nonce"))
	sign := strings.TrimSpace(c.Ctx.Input.Header("X-Sign"))
	if merchantNo != cfg.Gateway.MerchantNo || timestamp == "" || nonce == "" || sign == "" {
		logger.Warn("recharge callback header invalid",
			zap.String("trace_id", traceID),
			zap.String("merchant_no", merchantNo))
		ackFail()
		return
	}
	tsMs, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil || absInt64(time.Now().UnixMilli()-tsMs) > callbackMaxSkewMs {
		logger.Warn("recharge callback timestamp stale",
			zap.String("trace_id", traceID),
			zap.String("timestamp", timestamp))
		ackFail()
		return
	}
	expected := chelper.SignPayload(merchantNo, timestamp, nonce, string(body), cfg.Gateway.Secret)
	if !chelper.SecureCompare(expected, sign) {
		logger.Warn("recharge callback signature mismatch",
			zap.String("trace_id", traceID),
			zap.String("caller_ip", callerIP))
		ackFail()
		return
	}

	cb, ok, msg := helper.ParseRechargeCallback(body)
	if !ok {
		logger.Warn("recharge callback body invalid",
			zap.String("trace_id", traceID),
			zap.String("reason", msg))
		ackFail()
		return
	}

	reqCtx := c.Ctx.Request.Context()

	// 网关明确失败：pending 订单关单，重复通知幂等
	if cb.Status == "fail" {
		if _, err := model.MarkRechargeFailed(reqCtx, svcs.DB, cb.OrderNo, cb.TradeNo); err != nil {
			logger.Error("recharge callback mark failed error",
				zap.String("trace_id", traceID),
				zap.String("order_no", cb.OrderNo),
				zap.Error(err))
			ackFail()
			return
		}
		ackSuccess()
		return
	}

	amount, err := decimal.NewFromString(cb.Amount)
	if err != nil {
		ackFail()
		return
	}
	_, err = svcs.Settle.CompleteRechargeOrder(reqCtx, settlement.Callback{
		OrderNo:   cb.OrderNo,
		TradeNo:   cb.TradeNo,
		Amount:    amount,
		PayTimeMs: cb.PayTimeMs,
		TraceID:   traceID,
	})
	if err != nil {
		// 金额不符：已留痕并告警，等待人工处理，应答 success 终止网关重试
		if errors.Is(err, settlement.ErrAmountMismatch) {
			ackSuccess()
			return
		}
		// 订单已失败/过期关单：终态，网关流水留待对账
		if errors.Is(err, settlement.ErrOrderClosed) {
			ackSuccess()
			return
		}
		// 超出当日限额：订单保持 pending，过零点后的网关重试可正常入账
		if errors.Is(err, settlement.ErrDailyCapExceeded) {
			ackFail()
			return
		}
		// 订单不存在（下单事务尚未落库等），让网关稍后重试
		if errors.Is(err, settlement.ErrOrderNotFound) {
			ackFail()
			return
		}
		logger.Error("recharge callback settle failed",
			zap.String("trace_id", traceID),
			zap.String("order_no", cb.OrderNo),
			zap.Error(err))
		ackFail()
		return
	}

	ackSuccess()
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
