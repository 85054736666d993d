package api

import (
	"crash-server/internal/pool"
	"crash-server/internal/service"
	"crash-server/internal/settlement"

	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"
)

// Services 控制器层依赖的服务集合
// beego 按类型反射创建控制器实例，无法逐实例注入字段，
// 因此在进程启动时装配一次，此后只读
type Services struct {
	DB       *sqlx.DB
	RDB      *goredis.Client
	Bet      service.BetService
	Cashout  service.CashoutService
	Rounds   service.RoundService
	Recharge service.RechargeService
	Settle   settlement.Service
	Pool     pool.Service
}

var svcs Services

// SetServices 装配控制器依赖，仅应在启动阶段调用一次
func SetServices(s Services) { svcs = s }
