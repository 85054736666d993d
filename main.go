package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"crash-server/common"
	chelper "crash-server/common/helper"
	"crash-server/common/logger"
	"crash-server/internal/config"
	"crash-server/internal/controller/api"
	"crash-server/internal/driver"
	infmysql "crash-server/internal/infra/mysql"
	infmq "crash-server/internal/infra/rocketmq"
	"crash-server/internal/infra/snowflake"
	"crash-server/internal/lock"
	"crash-server/internal/pool"
	"crash-server/internal/ratelimit"
	"crash-server/internal/recovery"
	"crash-server/internal/service"
	"crash-server/internal/settlement"
	"crash-server/internal/worker"
	"crash-server/routers"

	beego "github.com/beego/beego/v2/server/web"
	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	logger.InitLogger()
	defer logger.Sync()

	if branch := chelper.GetCurrentGitBranch(); branch != "" {
		common.Printf("[Main]  构建信息: branch=%s, commit=%s", branch, chelper.GetShortCommit())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========== 配置 ==========
	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Fatalf("load config failed", zap.Error(err))
	}
	config.SetCurrent(cfg)
	if cfg.Server.LogLevel != "" {
		logger.SetLevel(cfg.Server.LogLevel)
	}
	if err := config.StartWatch(ctx, func(oldCfg, newCfg *config.Config) {
		common.Printf("[Main]  配置已热更新")
		if newCfg.Server.LogLevel != "" && (oldCfg == nil || oldCfg.Server.LogLevel != newCfg.Server.LogLevel) {
			logger.SetLevel(newCfg.Server.LogLevel)
		}
	}); err != nil {
		logger.Warn("config watch not started", zap.Error(err))
	}

	// ========== 基础设施 ==========
	maxOpen := cfg.Database.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 100
	}
	maxIdle := cfg.Database.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 10
	}
	db := common.InitDB(cfg.Database.DSN, maxIdle, maxOpen)
	if cfg.Database.ConnMaxLifetimeSec > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetimeSec) * time.Second)
	}
	defer func() { _ = db.Close() }()

	var rdb *goredis.Client
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		rdb = common.InitRedis(addr, cfg.Redis.Password, cfg.Redis.DB)
		defer func() { _ = rdb.Close() }()
	} else {
		logger.Warn("redis not configured, lock/ratelimit/cache degraded")
	}

	if err := infmysql.EnsureSchema(ctx, db); err != nil {
		logger.Fatalf("ensure schema failed", zap.Error(err))
	}

	nodeID := int64(1)
	if s := strings.TrimSpace(os.Getenv("NODE_ID")); s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			nodeID = n
		}
	}
	if err := snowflake.Init(nodeID); err != nil {
		logger.Fatalf("snowflake init failed", zap.Int64("node_id", nodeID), zap.Error(err))
	}

	mqCfg := infmq.Config{
		Endpoint:       cfg.RocketMQ.Endpoint,
		AccessKey:      cfg.RocketMQ.AccessKey,
		SecretKey:      cfg.RocketMQ.SecretKey,
		ProducerTopics: cfg.RocketMQ.ProducerTopics,
		ConsumerGroup:  cfg.RocketMQ.ConsumerGroup,
		ConsumeTopics:  cfg.RocketMQ.ConsumeTopics,
	}
	infmq.Init(mqCfg)

	// ========== 服务装配（显式注入） ==========
	var locker lock.Lock
	if rdb != nil {
		locker = lock.New(rdb)
	}
	limiter := ratelimit.New(rdb)

	poolSvc := pool.NewService(db, rdb)
	assets := cfg.Crash.Assets
	if len(assets) == 0 {
		assets = []string{"BTC"}
		logger.Warn("crash.assets not configured, fallback to BTC")
	}
	initialPool := decimal.Zero
	if s := strings.TrimSpace(cfg.Crash.InitialPool); s != "" {
		if v, err := decimal.NewFromString(s); err == nil {
			initialPool = v
		} else {
			logger.Warn("invalid crash.initial_pool, fallback to 0", zap.String("value", s))
		}
	}
	for _, asset := range assets {
		bal, err := poolSvc.Initialize(ctx, asset, initialPool)
		if err != nil {
			logger.Fatalf("init house pool failed", zap.String("asset", asset), zap.Error(err))
		}
		common.Printf("[Main]  资金池就绪: asset=%s, balance=%s", asset, bal.String())
	}

	// 崩溃恢复：作废孤儿回合并退款，必须先于驱动与 HTTP 放量
	report, err := recovery.RecoverOrphanedRounds(ctx, recovery.Deps{DB: db, Pool: poolSvc})
	if err != nil {
		logger.Fatalf("orphan round recovery failed", zap.Error(err))
	}
	common.Printf("[Main]  孤儿回合清理完成: scanned=%d, cancelled=%d, refunded=%d, failures=%d",
		report.RoundsScanned, report.RoundsCancelled, report.BetsRefunded, report.Failures)

	betSvc := service.NewBetService(db, rdb, poolSvc, locker, limiter)
	cashoutSvc := service.NewCashoutService(db, rdb, poolSvc)
	roundSvc := service.NewRoundService(db, rdb)
	rechargeSvc := service.NewRechargeService(db)
	settleSvc := settlement.NewService(db)

	api.SetServices(api.Services{
		DB:       db,
		RDB:      rdb,
		Bet:      betSvc,
		Cashout:  cashoutSvc,
		Rounds:   roundSvc,
		Recharge: rechargeSvc,
		Settle:   settleSvc,
		Pool:     poolSvc,
	})
	routers.Init(limiter)

	// ========== 后台任务 ==========
	wg := &sync.WaitGroup{}
	worker.StartOutboxDispatcher(ctx, wg, db)
	worker.StartInboxConsumer(ctx, wg, db, mqCfg)
	worker.StartRechargeExpirer(ctx, wg, db)

	// 回合驱动：依赖分布式锁做主节点选举，Redis 未配置时不开局
	if locker != nil {
		drvCfg := driver.Config{
			BetWindow:     time.Duration(cfg.Crash.BetWindowMs) * time.Millisecond,
			RoundGap:      time.Duration(cfg.Crash.RoundGapMs) * time.Millisecond,
			Tick:          time.Duration(cfg.Crash.TickMs) * time.Millisecond,
			HouseEdge:     cfg.Crash.HouseEdge,
			GrowthRate:    cfg.Crash.GrowthRate,
			MaxMultiplier: cfg.Crash.MaxMultiplier,
		}
		for _, asset := range assets {
			driver.New(asset, drvCfg, driver.Deps{
				DB:      db,
				RDB:     rdb,
				Rounds:  roundSvc,
				Cashout: cashoutSvc,
				Locker:  locker,
			}).Start(ctx, wg)
		}
	} else {
		logger.Warn("round driver disabled: redis not configured")
	}

	// ========== 观测与 HTTP ==========
	if cfg.Observability.EnableProm {
		promAddr := cfg.Observability.PromAddr
		if promAddr == "" {
			promAddr = ":9090"
		}
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			common.Printf("[Main]  Prometheus 指标服务启动: addr=%s", promAddr)
			if err := http.ListenAndServe(promAddr, mux); err != nil {
				logger.Error("prometheus server exited", zap.Error(err))
			}
		}()
	}

	httpPort := cfg.Server.Port
	if httpPort <= 0 {
		httpPort = 8080
	}
	beego.BConfig.AppName = "crash-server"
	beego.BConfig.Listen.HTTPPort = httpPort
	beego.BConfig.CopyRequestBody = false
	beego.BConfig.WebConfig.AutoRender = false

	go func() {
		common.Printf("[Main]  HTTP 服务启动: port=%d, assets=%v", httpPort, assets)
		beego.Run()
	}()

	<-ctx.Done()
	common.Printf("[Main]  收到退出信号，等待后台任务结束...")
	wg.Wait()
	common.Printf("[Main]  进程退出")
}
