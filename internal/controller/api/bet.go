package api

import (
	"errors"
	"strings"

	helper "crash-server/internal/common/helper"
	"crash-server/internal/common/response"
	"crash-server/internal/middleware"
	"crash-server/internal/service"

	beego "github.com/beego/beego/v2/server/web"
)

type BetController struct{ beego.Controller }

// 投注请求参数
type BetRequestParam struct {
	RoundID     string `json:"round_id"`     // 回合ID
	Amount      string `json:"amount"`       // 投注金额
	Mode        int8   `json:"mode"`         // 资金模式 0=真实 1=试玩
	AutoCashout string `json:"auto_cashout"` // 自动逃跑倍数（可选）
	/*
		幂等键：客户端生成并随请求传入，用于在网络重试/超时重发/服务端重试时保证“同一业务请求只生效一次”。
		使用约定：
		- 对于“同一次下注”的所有重试，请传相同的 idempotency_key；
		- 业务语义不同（如金额/回合/模式不同）的请求必须使用不同的 key；
		- 建议生成方式：UUID（推荐）或对 user+round_id+amount 做哈希；
		- 建议在客户端将 key 与该次操作绑定并在超时/失败后复用。
		服务端幂等保证（多层防护）：
		1) Redis 进行中锁（约45秒）：并发重复请求直接返回 202，并携带 Retry-After: 1；
		2) MySQL 唯一键：在事务内先插入 idempotency_keys(idempotency_key)，若已存在则视为重复请求，返回首次请求的结果；
		3) 结果缓存：首次成功结果会写入 Redis（短期缓存），后续重复可直接读缓存快速返回。
		错误语义：
		- 并发重复（正在处理）：HTTP 202，稍后重试；
		- 历史重复（已处理完）：返回首次的 bill_no 与余额，不算错误。
	*/
	IdempotencyKey string `json:"idempotency_key"`
}

// Bet 处理投注接口：POST /api/bet
func (c *BetController) Bet() {
	traceID := helper.GetTraceID(c.Ctx)

	// 1) 解析入参与基本校验
	// 这里必须要对业务参数严格校验，后续service不再重复解析
	bp, ok, msg := helper.ParseAndValidateBet(c.Ctx)
	if !ok {
		response.BadRequest(&c.Controller, msg, traceID)
		return
	}

	// 2) 用户身份由身份中间件从网关请求头注入
	externalID := middleware.ExternalID(c.Ctx)
	if externalID == "" {
		response.Error(&c.Controller, 401, response.CodeUnauthorized, traceID)
		return
	}

	// 3) 进行投注业务逻辑处理
	out, err := svcs.Bet.PlaceBet(c.Ctx.Request.Context(), service.BetInput{
		RoundID:        bp.RoundID,
		ExternalID:     externalID,
		Nickname:       middleware.Nickname(c.Ctx),
		Amount:         bp.Amount,
		Mode:           bp.Mode,
		AutoCashout:    bp.AutoCashout,
		IdempotencyKey: bp.IdempotencyKey,
		TraceID:        traceID,
	})
	if err != nil {
		// 重复请求进行中
		if errors.Is(err, service.ErrDuplicateInFlight) {
			response.Accepted(&c.Controller, "重复请求进行中，请稍后重试", traceID)
			return
		}
		// 用户维度限流
		if errors.Is(err, service.ErrRateLimited) {
			response.TooManyRequests(&c.Controller, traceID)
			return
		}
		// 状态不允许投注
		if errors.Is(err, service.ErrInvalidStateBet) {
			response.Conflict(&c.Controller, response.CodeInvalidState, traceID)
			return
		}
		// 投注窗口未开始
		if errors.Is(err, service.ErrBetWindowNotStart) {
			response.Conflict(&c.Controller, response.CodeBetWindowNotStart, traceID)
			return
		}
		// 投注窗口已关闭
		if errors.Is(err, service.ErrBetWindowClosed) {
			response.Conflict(&c.Controller, response.CodeBetWindowClosed, traceID)
			return
		}
		// 余额不足
		if errors.Is(err, service.ErrInsufficientBalance) {
			response.Error(&c.Controller, 400, response.CodeInsufficientBalance, traceID)
			return
		}
		// 用户状态异常
		if errors.Is(err, service.ErrUserDisabled) {
			response.Error(&c.Controller, 403, response.CodeUserDisabled, traceID)
			return
		}
		// 试玩模式未开放
		if errors.Is(err, service.ErrPlayModeDisabled) {
			response.Error(&c.Controller, 403, response.CodePlayModeDisabled, traceID)
			return
		}
		// 回合不存在
		if errors.Is(err, service.ErrRoundNotFound) {
			response.NotFound(&c.Controller, "回合不存在", traceID)
			return
		}
		// 投注金额/参数验证失败
		errMsg := err.Error()
		if strings.Contains(errMsg, "invalid bet amount") ||
			strings.Contains(errMsg, "bet amount must be positive") ||
			strings.Contains(errMsg, "precision exceeds") ||
			strings.Contains(errMsg, "below minimum limit") ||
			strings.Contains(errMsg, "exceeds maximum limit") ||
			strings.Contains(errMsg, "invalid fund mode") ||
			strings.Contains(errMsg, "auto cashout") {
			response.BadRequest(&c.Controller, errMsg, traceID)
			return
		}
		// 系统错误
		response.InternalError(&c.Controller, traceID)
		return
	}

	// 成功响应
	response.Success(&c.Controller, map[string]interface{}{
		"bill_no": out.BillNo,
		"balance": out.Balance,
	}, traceID)
}
