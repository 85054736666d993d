package model

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// Inbox 对应 inbox 表（消费幂等落库表）
// 说明：message_id 唯一索引天然去重，重复投递不产生副作用
type Inbox struct {
	ID         int64  `db:"id"`          // 自增ID
	MessageID  string `db:"message_id"`  // MQ 消息ID
	Topic      string `db:"topic"`       // 主题
	Payload    string `db:"payload"`     // 消息体(JSON字符串)
	ReceivedAt int64  `db:"received_at"` // 首次收到时间（毫秒时间戳）
}

// UpsertInbox 将消息按 message_id 去重入库（存在则不变更 received_at）
func UpsertInbox(ctx context.Context, exec sqlx.ExtContext, messageID, topic, payload string, receivedAtMs int64) error {
	if receivedAtMs == 0 {
		receivedAtMs = time.Now().UnixMilli()
	}

	sqlStr := "INSERT INTO inbox (message_id, topic, payload, received_at) VALUES (?, ?, ?, ?) ON DUPLICATE KEY UPDATE received_at = received_at"
	args := []interface{}{messageID, topic, payload, receivedAtMs}

	_, err := exec.ExecContext(ctx, sqlStr, args...)
	return err
}
