package mysql

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// 表结构定义。线上由 DBA 管理变更，这里仅用于开发环境与集成测试快速拉起。
// 时间字段统一毫秒时间戳，金额统一 DECIMAL。

var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		external_id VARCHAR(64) NOT NULL COMMENT '接入方用户ID，身份由网关注入',
		nickname VARCHAR(64) NOT NULL DEFAULT '',
		real_balance DECIMAL(20,2) NOT NULL DEFAULT 0,
		play_balance DECIMAL(20,2) NOT NULL DEFAULT 0,
		status TINYINT NOT NULL DEFAULT 1,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uk_external_id (external_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS game_round (
		round_id VARCHAR(32) NOT NULL,
		asset VARCHAR(16) NOT NULL,
		status TINYINT NOT NULL COMMENT '1=betting 2=running 3=settling 4=completed 5=cancelled',
		bet_start_time BIGINT NOT NULL DEFAULT 0,
		bet_stop_time BIGINT NOT NULL DEFAULT 0,
		started_at BIGINT NOT NULL DEFAULT 0,
		ended_at BIGINT NOT NULL DEFAULT 0,
		crash_multiplier DECIMAL(10,2) NOT NULL DEFAULT 0,
		start_price DECIMAL(20,8) NOT NULL DEFAULT 0,
		end_price DECIMAL(20,8) NOT NULL DEFAULT 0,
		is_settled TINYINT NOT NULL DEFAULT 0,
		trace_id VARCHAR(64) NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		PRIMARY KEY (round_id),
		KEY idx_status (status),
		KEY idx_asset_status (asset, status)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS bets (
		id BIGINT UNSIGNED NOT NULL,
		bill_no VARCHAR(32) NOT NULL,
		user_id BIGINT UNSIGNED NOT NULL,
		round_id VARCHAR(32) NOT NULL,
		asset VARCHAR(16) NOT NULL,
		amount DECIMAL(20,2) NOT NULL,
		mode TINYINT NOT NULL DEFAULT 0 COMMENT '0=real 1=play',
		auto_cashout DECIMAL(10,2) NOT NULL DEFAULT 0 COMMENT '0 表示未设置',
		multiplier DECIMAL(10,2) NOT NULL DEFAULT 0,
		payout DECIMAL(20,2) NOT NULL DEFAULT 0,
		status TINYINT NOT NULL COMMENT '1=pending 2=won 3=lost 4=refunded',
		balance_before DECIMAL(20,2) NOT NULL DEFAULT 0,
		balance_after DECIMAL(20,2) NOT NULL DEFAULT 0,
		trace_id VARCHAR(64) NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uk_bill_no (bill_no),
		KEY idx_round_status (round_id, status),
		KEY idx_user_created (user_id, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS recharge_orders (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		order_no VARCHAR(32) NOT NULL,
		user_id BIGINT UNSIGNED NOT NULL,
		amount DECIMAL(20,2) NOT NULL,
		bonus_amount DECIMAL(20,2) NOT NULL DEFAULT 0,
		status TINYINT NOT NULL DEFAULT 1 COMMENT '1=pending 2=completed 3=failed 4=expired',
		trade_no VARCHAR(64) NOT NULL DEFAULT '',
		channel VARCHAR(32) NOT NULL DEFAULT '',
		pay_time BIGINT NOT NULL DEFAULT 0,
		balance_before DECIMAL(20,2) NOT NULL DEFAULT 0,
		balance_after DECIMAL(20,2) NOT NULL DEFAULT 0,
		amount_mismatch TINYINT NOT NULL DEFAULT 0,
		trace_id VARCHAR(64) NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uk_order_no (order_no),
		KEY idx_user_status_created (user_id, status, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS balance_log (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		user_id BIGINT UNSIGNED NOT NULL,
		change_type TINYINT NOT NULL,
		change_type_str VARCHAR(32) NOT NULL,
		mode TINYINT NOT NULL DEFAULT 0,
		amount DECIMAL(20,2) NOT NULL COMMENT '有符号，收入为正支出为负',
		balance_before DECIMAL(20,2) NOT NULL,
		balance_after DECIMAL(20,2) NOT NULL,
		ref_no VARCHAR(64) NOT NULL DEFAULT '',
		round_id VARCHAR(32) NOT NULL DEFAULT '',
		remark VARCHAR(255) NOT NULL DEFAULT '',
		trace_id VARCHAR(64) NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		PRIMARY KEY (id),
		KEY idx_user_created (user_id, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS house_pool (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		asset VARCHAR(16) NOT NULL,
		balance DECIMAL(20,2) NOT NULL DEFAULT 0,
		version BIGINT NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uk_asset (asset)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS house_pool_log (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		asset VARCHAR(16) NOT NULL,
		amount DECIMAL(20,2) NOT NULL COMMENT '有符号',
		balance_before DECIMAL(20,2) NOT NULL,
		balance_after DECIMAL(20,2) NOT NULL,
		version_after BIGINT NOT NULL,
		reason TINYINT NOT NULL,
		reason_str VARCHAR(32) NOT NULL,
		ref_no VARCHAR(64) NOT NULL DEFAULT '',
		trace_id VARCHAR(64) NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		PRIMARY KEY (id),
		KEY idx_asset_created (asset, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS idempotency_keys (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		idempotency_key VARCHAR(64) NOT NULL,
		user_id BIGINT UNSIGNED NOT NULL,
		biz_ref VARCHAR(64) NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uk_idem_key (idempotency_key)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS settlement_log (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		round_id VARCHAR(32) NOT NULL,
		settled_bets INT NOT NULL DEFAULT 0,
		lost_bets INT NOT NULL DEFAULT 0,
		total_payout DECIMAL(20,2) NOT NULL DEFAULT 0,
		trace_id VARCHAR(64) NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uk_round_id (round_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS outbox (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		topic VARCHAR(64) NOT NULL,
		biz_key VARCHAR(64) NOT NULL DEFAULT '',
		payload TEXT NOT NULL,
		status TINYINT NOT NULL DEFAULT 1 COMMENT '1=pending 2=sent 3=failed',
		retry_count INT NOT NULL DEFAULT 0,
		last_error VARCHAR(255) NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		PRIMARY KEY (id),
		KEY idx_status_created (status, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS inbox (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		message_id VARCHAR(64) NOT NULL,
		topic VARCHAR(64) NOT NULL,
		payload TEXT NOT NULL,
		received_at BIGINT NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uk_message_id (message_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS round_audit (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		round_id VARCHAR(32) NOT NULL,
		event VARCHAR(32) NOT NULL,
		prev_state VARCHAR(16) NOT NULL,
		next_state VARCHAR(16) NOT NULL,
		operator VARCHAR(32) NOT NULL DEFAULT 'system',
		source VARCHAR(16) NOT NULL DEFAULT '',
		payload TEXT,
		trace_id VARCHAR(64) NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		PRIMARY KEY (id),
		KEY idx_round (round_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS recharge_config (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		min_amount DECIMAL(20,2) NOT NULL,
		bonus_percent DECIMAL(5,2) NOT NULL DEFAULT 0,
		enabled TINYINT NOT NULL DEFAULT 1,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		PRIMARY KEY (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema 逐表执行 CREATE TABLE IF NOT EXISTS
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, ddl := range schemaDDL {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
