package api

import (
	"database/sql"
	"strconv"
	"strings"

	chelper "crash-server/common/helper"
	helper "crash-server/internal/common/helper"
	"crash-server/internal/common/response"
	"crash-server/internal/middleware"
	"crash-server/internal/model"

	beego "github.com/beego/beego/v2/server/web"
)

type UserController struct{ beego.Controller }

// Balance 查询当前用户余额：GET /api/user/balance
// 账户为懒创建（首投/首充时落库），未建档用户返回零余额而非 404
func (c *UserController) Balance() {
	traceID := helper.GetTraceID(c.Ctx)

	externalID := middleware.ExternalID(c.Ctx)
	if externalID == "" {
		response.Error(&c.Controller, 401, response.CodeUnauthorized, traceID)
		return
	}

	user, err := model.GetUserByExternalID(c.Ctx.Request.Context(), svcs.DB, externalID)
	if err != nil {
		if err == sql.ErrNoRows {
			response.Success(&c.Controller, map[string]interface{}{
				"external_id":  externalID,
				"real_balance": "0.00",
				"play_balance": "0.00",
			}, traceID)
			return
		}
		response.InternalError(&c.Controller, traceID)
		return
	}

	response.Success(&c.Controller, map[string]interface{}{
		"external_id":  user.ExternalID,
		"nickname":     user.Nickname,
		"real_balance": chelper.TrimDecimal(user.RealBalance),
		"play_balance": chelper.TrimDecimal(user.PlayBalance),
	}, traceID)
}

// Bets 查询当前用户的投注记录：GET /api/user/bets?round_id=&limit=
func (c *UserController) Bets() {
	traceID := helper.GetTraceID(c.Ctx)

	externalID := middleware.ExternalID(c.Ctx)
	if externalID == "" {
		response.Error(&c.Controller, 401, response.CodeUnauthorized, traceID)
		return
	}

	roundID := strings.TrimSpace(c.Ctx.Input.Query("round_id"))
	if len(roundID) > 64 {
		response.BadRequest(&c.Controller, "invalid round_id", traceID)
		return
	}
	limit := 0
	if ls := strings.TrimSpace(c.Ctx.Input.Query("limit")); ls != "" {
		if n, err := strconv.Atoi(ls); err == nil {
			limit = n
		}
	}

	reqCtx := c.Ctx.Request.Context()
	user, err := model.GetUserByExternalID(reqCtx, svcs.DB, externalID)
	if err != nil {
		if err == sql.ErrNoRows {
			response.Success(&c.Controller, map[string]interface{}{"bets": []model.BetRecord{}}, traceID)
			return
		}
		response.InternalError(&c.Controller, traceID)
		return
	}

	records, err := model.ListUserBets(reqCtx, svcs.DB, user.ID, roundID, limit)
	if err != nil {
		response.InternalError(&c.Controller, traceID)
		return
	}
	if records == nil {
		records = []model.BetRecord{}
	}

	response.Success(&c.Controller, map[string]interface{}{"bets": records}, traceID)
}
