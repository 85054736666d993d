package model

import (
	"context"
	"time"

	"crash-server/common"

	g "github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
)

// RoundAudit 对应 round_audit 表（回合状态机审计）
// prev_state/next_state 使用字符串快照，便于直观查询
// source 标注触发来源：driver=本机回合引擎 recovery=恢复流程 manual=人工
type RoundAudit struct {
	ID        int64  `db:"id"`
	RoundID   string `db:"round_id"`
	Event     string `db:"event"`
	PrevState string `db:"prev_state"`
	NextState string `db:"next_state"`
	Operator  string `db:"operator"`
	Source    string `db:"source"`
	Payload   string `db:"payload"`
	TraceID   string `db:"trace_id"`
	CreatedAt int64  `db:"created_at"`
}

// Insert
func (a *RoundAudit) Insert(ctx context.Context, exec sqlx.ExtContext) error {
	now := time.Now().UnixMilli()
	op := a.Operator
	if op == "" {
		op = "system"
	}

	_, err := common.InsertCtx(ctx, exec, "round_audit", g.Record{
		"round_id":   a.RoundID,
		"event":      a.Event,
		"prev_state": a.PrevState,
		"next_state": a.NextState,
		"operator":   op,
		"source":     a.Source,
		"payload":    a.Payload,
		"trace_id":   a.TraceID,
		"created_at": now,
	})
	return err
}
