package model

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// IdempotencyKey 对应 idempotency_keys 表
// 仅用于幂等插入（唯一键: idempotency_key），biz_ref 记录业务单号（如 bill_no）
type IdempotencyKey struct {
	ID             int64  `db:"id"`
	IdempotencyKey string `db:"idempotency_key"`
	UserID         int64  `db:"user_id"`
	BizRef         string `db:"biz_ref"`
	CreatedAt      int64  `db:"created_at"`
}

// Insert 插入一条幂等键记录，重复键冲突由调用方按 1062 识别并回放
func (k *IdempotencyKey) Insert(ctx context.Context, exec sqlx.ExtContext) error {
	now := time.Now().UnixMilli()

	sqlStr := "INSERT INTO idempotency_keys (idempotency_key, user_id, biz_ref, created_at) VALUES (?, ?, ?, ?)"
	args := []interface{}{k.IdempotencyKey, k.UserID, k.BizRef, now}

	_, err := exec.ExecContext(ctx, sqlStr, args...)
	return err
}

// SelectBizRefByIdemKey 按幂等键查询业务单号（例如 bill_no），用于重复请求回放
func SelectBizRefByIdemKey(ctx context.Context, exec sqlx.ExtContext, key string) (string, error) {
	sqlStr := "SELECT biz_ref FROM idempotency_keys WHERE idempotency_key = ? LIMIT 1"
	var ref string
	if err := sqlx.GetContext(ctx, exec, &ref, sqlStr, key); err != nil {
		return "", err
	}
	return ref, nil
}
