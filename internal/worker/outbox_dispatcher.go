package worker

import (
	"context"
	"strings"
	"sync"
	"time"

	rmq "github.com/apache/rocketmq-clients/golang/v5"
	"github.com/apache/rocketmq-clients/golang/v5/credentials"

	"crash-server/common"
	"crash-server/common/logger"
	"crash-server/internal/config"
	infmq "crash-server/internal/infra/rocketmq"
	"crash-server/internal/model"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// StartOutboxDispatcher 启动 Outbox 分发器，支持通过 ctx 优雅退出
// 仅当 MQ 已启用时运行。
func StartOutboxDispatcher(ctx context.Context, wg *sync.WaitGroup, db *sqlx.DB) {
	if !infmq.Enabled() {
		return
	}
	wg.Add(1)
	pub := infmq.PublisherInstance()
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		purgeTicker := time.NewTicker(1 * time.Hour)
		defer wg.Done()

		defer ticker.Stop()
		defer purgeTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c, cancel := context.WithTimeout(ctx, 2*time.Second)
				rows, err := model.ListOutboxPending(c, db, 100)
				cancel()
				if err != nil {
					logger.Warn("outbox: list pending failed", zap.Error(err))
					continue
				}
				for _, r := range rows {
					// publish
					if err := pub.Publish(r.Topic, []byte(r.Payload)); err != nil {
						_ = model.MarkOutboxFailed(ctx, db, r.ID, truncateErr(err))
						continue
					}
					if err := model.MarkOutboxSent(ctx, db, r.ID); err != nil {
						logger.Warn("outbox: mark sent failed", zap.Int64("id", r.ID), zap.Error(err))
					}
				}
			case <-purgeTicker.C:
				retainH := config.GetThreshold("outbox_retention_hours", 72)
				cutoff := time.Now().Add(-time.Duration(retainH) * time.Hour).UnixMilli()
				c, cancel := context.WithTimeout(ctx, 10*time.Second)
				n, err := model.PurgeSentOutbox(c, db, cutoff)
				cancel()
				if err != nil {
					logger.Warn("outbox: purge sent failed", zap.Error(err))
					continue
				}
				if n > 0 {
					logger.Info("outbox: purged sent rows", zap.Int64("count", n))
				}
			}
		}
	}()
}

func truncateErr(err error) string {
	b, _ := common.JsonMarshal(map[string]string{"error": err.Error()})
	if len(b) > 240 {
		return string(b[:240])
	}
	return string(b)
}

// StartInboxConsumer 启动 RocketMQ v5 SimpleConsumer，将消息可靠落库至 inbox 表（去重）
// 消费 topic 为空时回退到生产 topic 列表（自消费，用于联调与对账）
func StartInboxConsumer(ctx context.Context, wg *sync.WaitGroup, db *sqlx.DB, cfg infmq.Config) {
	// Ensure RocketMQ SDK logs go to console instead of /logs
	rmq.ResetLogger()

	endpoint := infmq.SanitizeEndpoint(cfg.Endpoint)
	if endpoint == "" {
		return
	}
	logger.Info("[mq] consumer endpoint", zap.String("endpoint", endpoint))

	group := strings.TrimSpace(cfg.ConsumerGroup)
	if group == "" {
		logger.Warn("[mq] consumer not started: empty consumer group")
		return
	}
	topics := cfg.ConsumeTopics
	if len(topics) == 0 {
		topics = cfg.ProducerTopics
	}
	topics = infmq.NormalizeTopics(topics)
	if len(topics) == 0 {
		logger.Warn("[mq] consumer not started: empty topics")
		return
	}
	if strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		logger.Warn("[mq] consumer not started: missing access/secret key")
		return
	}
	rc := &rmq.Config{Endpoint: endpoint, ConsumerGroup: group}
	rc.Credentials = &credentials.SessionCredentials{AccessKey: cfg.AccessKey, AccessSecret: cfg.SecretKey}

	// 构造订阅表达式：多个 topic，默认 SUB_ALL
	subs := map[string]*rmq.FilterExpression{}
	for _, t := range topics {
		subs[t] = rmq.SUB_ALL
	}

	awaitDuration := 5 * time.Second
	maxMessageNum := int32(16)
	invisibleDuration := 20 * time.Second

	// 尝试启动 SimpleConsumer（带重试，避免容器刚启动未就绪导致一次性失败）
	var sc rmq.SimpleConsumer
	var err error
	for i := 0; i < 6; i++ { // 最长约 6*3s = 18s
		sc, err = rmq.NewSimpleConsumer(rc,
			rmq.WithAwaitDuration(awaitDuration),
			rmq.WithSubscriptionExpressions(subs),
		)
		if err == nil {
			if e := sc.Start(); e == nil {
				break
			} else {
				err = e
			}
		}
		logger.Warn("[mq] simple consumer start retry", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(3 * time.Second)
	}
	if err != nil {
		logger.Error("[mq] start simple consumer failed", zap.Error(err))
		return
	}
	logger.Info("[mq] inbox consumer started", zap.String("group", group), zap.Strings("topics", topics))

	wg.Add(1)

	go func() {
		defer wg.Done()

		defer sc.GracefulStop()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				mvs, err := sc.Receive(ctx, maxMessageNum, invisibleDuration)
				if err != nil {
					// 上下文取消则直接退出
					if ctx.Err() != nil {
						return
					}
					logger.Warn("[mq] receive error", zap.Error(err))
					continue
				}
				for _, mv := range mvs {
					id := mv.GetMessageId()
					topic := mv.GetTopic()
					body := mv.GetBody()
					if err := model.UpsertInbox(ctx, db, id, topic, string(body), time.Now().UnixMilli()); err != nil {
						logger.Warn("[mq] upsert inbox failed", zap.String("id", id), zap.String("topic", topic), zap.Error(err))
						continue
					}
					var payload map[string]any
					if err := common.JsonUnmarshal(body, &payload); err == nil {
						if evt, ok := payload["event"].(string); ok && evt == "round_settled" {
							roundID, _ := payload["round_id"].(string)
							crashMult, _ := payload["crash_multiplier"].(string)
							logger.Info("[mq] consumed round settlement", zap.String("round_id", roundID), zap.String("crash_multiplier", crashMult))
						}
					}
					if err := sc.Ack(ctx, mv); err != nil {
						logger.Warn("[mq] ack failed", zap.String("id", id), zap.Error(err))
					}
				}
			}
		}
	}()
}

// StartRechargeExpirer 定时关闭超时未支付的充值订单
// 超时窗口由 thresholds.recharge_order_ttl_min 控制（默认 30 分钟）
func StartRechargeExpirer(ctx context.Context, wg *sync.WaitGroup, db *sqlx.DB) {
	wg.Add(1)
	go func() {
		ticker := time.NewTicker(1 * time.Minute)
		defer wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ttlMin := config.GetThreshold("recharge_order_ttl_min", 30)
				cutoff := time.Now().Add(-time.Duration(ttlMin) * time.Minute).UnixMilli()
				c, cancel := context.WithTimeout(ctx, 5*time.Second)
				n, err := model.ExpireStaleRechargeOrders(c, db, cutoff)
				cancel()
				if err != nil {
					logger.Warn("recharge expirer: close stale orders failed", zap.Error(err))
					continue
				}
				if n > 0 {
					logger.Info("recharge expirer: closed stale orders", zap.Int64("count", n))
				}
			}
		}
	}()
}
