package api

import (
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	chelper "crash-server/common/helper"
	helper "crash-server/internal/common/helper"
	"crash-server/internal/common/response"
	infrds "crash-server/internal/infra/redis"
	"crash-server/internal/model"

	beego "github.com/beego/beego/v2/server/web"
	goredis "github.com/redis/go-redis/v9"
)

// RoundController 提供回合查询接口
// - GET /api/round/current?asset=      当前回合与实时倍数（客户端主轮询）
// - GET /api/round/history?asset=      最近已完结回合（倍率历史展示）
// - GET /api/round/:round_id           回合信息与崩盘结果（调试/回放）
// 读路径均为 Redis 优先，DB 兜底

type RoundController struct {
	beego.Controller
}

// Current 查询资产当前回合
func (c *RoundController) Current() {
	traceID := helper.GetTraceID(c.Ctx)

	asset := strings.TrimSpace(c.Ctx.Input.Query("asset"))
	if asset == "" || len(asset) > 16 {
		response.BadRequest(&c.Controller, "asset required", traceID)
		return
	}

	ctx := c.Ctx.Request.Context()
	r := svcs.RDB

	var info map[string]any
	var roundID string

	// Redis 快路径：当前回合指针 + 回合信息缓存
	if r != nil {
		if id, err := r.Get(ctx, infrds.CurrentRoundKey(asset)).Result(); err == nil && id != "" {
			roundID = id
			if bs, err := r.Get(ctx, infrds.RoundInfoKey(roundID)).Bytes(); err == nil {
				_ = json.Unmarshal(bs, &info)
			}
		}
	}

	// DB 兜底：Redis 缓存缺失或过期
	if info == nil {
		round, err := model.GetLatestRoundByAsset(ctx, svcs.DB, asset)
		if err != nil {
			if err == sql.ErrNoRows {
				response.NotFound(&c.Controller, "暂无回合", traceID)
				return
			}
			response.InternalError(&c.Controller, traceID)
			return
		}
		roundID = round.RoundID
		info = map[string]any{
			"round_id":       round.RoundID,
			"asset":          round.Asset,
			"status":         model.RoundCodeToState(round.Status),
			"bet_start_time": round.BetStartTime,
			"bet_stop_time":  round.BetStopTime,
			"started_at":     round.StartedAt,
		}
	}

	// 飞行中附带实时倍数
	if r != nil && roundID != "" {
		if m, err := r.Get(ctx, infrds.RoundMultKey(roundID)).Result(); err == nil && m != "" {
			info["multiplier"] = m
		}
	}

	response.Success(&c.Controller, info, traceID)
}

// History 查询最近已完结回合
func (c *RoundController) History() {
	traceID := helper.GetTraceID(c.Ctx)

	asset := strings.TrimSpace(c.Ctx.Input.Query("asset"))
	if asset == "" || len(asset) > 16 {
		response.BadRequest(&c.Controller, "asset required", traceID)
		return
	}
	limit := 0
	if ls := strings.TrimSpace(c.Ctx.Input.Query("limit")); ls != "" {
		if n, err := strconv.Atoi(ls); err == nil {
			limit = n
		}
	}

	rounds, err := model.ListRecentRounds(c.Ctx.Request.Context(), svcs.DB, asset, limit)
	if err != nil {
		response.InternalError(&c.Controller, traceID)
		return
	}

	items := make([]map[string]any, 0, len(rounds))
	for i := range rounds {
		rd := &rounds[i]
		items = append(items, map[string]any{
			"round_id":         rd.RoundID,
			"status":           model.RoundCodeToState(rd.Status),
			"crash_multiplier": chelper.TrimDecimal(rd.CrashMultiplier),
			"ended_at":         rd.EndedAt,
		})
	}

	response.Success(&c.Controller, map[string]interface{}{"rounds": items}, traceID)
}

// GetRound 查询单个回合的信息与崩盘结果（便于调试/回放）
// 返回 { round_info, result }，均不存在则 404；DB 兜底后回填 Redis
func (c *RoundController) GetRound() {
	roundID := c.Ctx.Input.Param(":round_id")
	if roundID == "" || len(roundID) > 64 {
		c.CustomAbort(400, "round_id is required")
		return
	}

	ctx := c.Ctx.Request.Context()
	r := svcs.RDB

	var roundInfo map[string]any
	var result map[string]any

	if r != nil {
		// 读取回合信息缓存
		if bs, err := r.Get(ctx, infrds.RoundInfoKey(roundID)).Bytes(); err == nil {
			_ = json.Unmarshal(bs, &roundInfo)
		} else if err != goredis.Nil {
			c.CustomAbort(503, "redis error")
			return
		}

		// 读取崩盘结果缓存
		if bs, err := r.Get(ctx, infrds.RoundResultKey(roundID)).Bytes(); err == nil {
			_ = json.Unmarshal(bs, &result)
		} else if err != goredis.Nil {
			c.CustomAbort(503, "redis error")
			return
		}
	}

	if roundInfo == nil && result == nil {
		// DB fallback：从数据库读取，并回填 Redis
		round, err := model.GetRound(ctx, svcs.DB, roundID)
		if err != nil {
			if err == sql.ErrNoRows {
				c.CustomAbort(404, "round not found")
				return
			}
			c.CustomAbort(503, "db error")
			return
		}
		roundInfo = map[string]any{
			"round_id":       round.RoundID,
			"asset":          round.Asset,
			"status":         model.RoundCodeToState(round.Status),
			"bet_start_time": round.BetStartTime,
			"bet_stop_time":  round.BetStopTime,
			"started_at":     round.StartedAt,
		}
		// 组装崩盘结果（已崩盘的回合才有）
		if round.Status == model.RoundStatusSettling || round.Status == model.RoundStatusCompleted {
			result = map[string]any{
				"round_id":         round.RoundID,
				"asset":            round.Asset,
				"crash_multiplier": round.CrashMultiplier.String(),
				"ended_at":         round.EndedAt,
				"is_settled":       round.IsSettled,
			}
		}
		// 回填 Redis
		if r != nil {
			if b, e := json.Marshal(roundInfo); e == nil {
				_ = r.Set(ctx, infrds.RoundInfoKey(roundID), b, 20*time.Second).Err()
			}
			if result != nil {
				if b, e := json.Marshal(result); e == nil {
					_ = r.Set(ctx, infrds.RoundResultKey(roundID), b, 2*time.Minute).Err()
				}
			}
		}
	}

	c.Data["json"] = map[string]any{
		"ok":         true,
		"round_info": roundInfo,
		"result":     result,
	}
	_ = c.ServeJSON()
}
