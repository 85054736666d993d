package model

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"crash-server/common"
	"crash-server/common/constant"
	"crash-server/common/logger"

	g "github.com/doug-martin/goqu/v9"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// User 用户表
// 用户唯一标识 = external_id（由接入网关下发）
// 真实资金与试玩资金分列，金额统一 decimal 避免浮点误差
type User struct {
	ID          int64           `db:"id"`           // 自增ID（内部使用）
	ExternalID  string          `db:"external_id"`  // 接入方用户ID
	Nickname    string          `db:"nickname"`     // 昵称（可选）
	RealBalance decimal.Decimal `db:"real_balance"` // 真实余额
	PlayBalance decimal.Decimal `db:"play_balance"` // 试玩余额
	Status      int8            `db:"status"`       // 状态: 1=正常 2=禁投 3=删除
	CreatedAt   int64           `db:"created_at"`   // 创建时间（13位毫秒时间戳）
	UpdatedAt   int64           `db:"updated_at"`   // 更新时间（13位毫秒时间戳）
}

// BalanceFor 返回指定资金模式下的余额
func (u *User) BalanceFor(mode int8) decimal.Decimal {
	if mode == constant.ModePlay {
		return u.PlayBalance
	}
	return u.RealBalance
}

// GetUserByExternalID 根据外部用户ID查询用户
func GetUserByExternalID(ctx context.Context, db *sqlx.DB, externalID string) (*User, error) {
	var user User
	err := common.SelectOneExtCtx(ctx, db, &user, "users",
		common.EnumFields(User{}), g.Ex{"external_id": externalID})
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		logger.ErrorCtx(ctx, "get user by external id failed",
			zap.String("external_id", externalID),
			zap.Error(err))
		return nil, err
	}

	return &user, nil
}

// GetUserByID 根据内部ID查询用户
func GetUserByID(ctx context.Context, exec sqlx.ExtContext, userID int64) (*User, error) {
	query := `SELECT id, external_id, nickname, real_balance, play_balance, status, created_at, updated_at
	          FROM users
	          WHERE id = ?
	          LIMIT 1`

	var user User
	err := sqlx.GetContext(ctx, exec, &user, query, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		logger.ErrorCtx(ctx, "get user by id failed",
			zap.Int64("user_id", userID),
			zap.Error(err))
		return nil, err
	}

	return &user, nil
}

// GetUserByExternalIDForUpdate 根据外部ID查询用户（加锁）
// 必须在事务中调用
func GetUserByExternalIDForUpdate(ctx context.Context, exec sqlx.ExtContext, externalID string) (*User, error) {
	query := `SELECT id, external_id, nickname, real_balance, play_balance, status, created_at, updated_at
	          FROM users
	          WHERE external_id = ?
	          FOR UPDATE`

	var user User
	err := sqlx.GetContext(ctx, exec, &user, query, externalID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		logger.ErrorCtx(ctx, "get user by external id for update failed",
			zap.String("external_id", externalID),
			zap.Error(err))
		return nil, err
	}

	return &user, nil
}

// GetUserByIDForUpdate 根据内部ID查询用户（加锁）
// 必须在事务中调用
func GetUserByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, userID int64) (*User, error) {
	query := `SELECT id, external_id, nickname, real_balance, play_balance, status, created_at, updated_at
	          FROM users
	          WHERE id = ?
	          FOR UPDATE`

	var user User
	err := sqlx.GetContext(ctx, exec, &user, query, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		logger.ErrorCtx(ctx, "get user by id for update failed",
			zap.Int64("user_id", userID),
			zap.Error(err))
		return nil, err
	}

	return &user, nil
}

// Insert 插入用户
func (u *User) Insert(ctx context.Context, db *sqlx.DB) error {
	now := getCurrentMillis() // 13位毫秒时间戳
	u.CreatedAt = now
	u.UpdatedAt = now

	query := `INSERT INTO users (external_id, nickname, real_balance, play_balance, status, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`

	result, err := db.ExecContext(ctx, query,
		u.ExternalID, u.Nickname, u.RealBalance, u.PlayBalance, u.Status, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if !IsDuplicateKeyErr(err) {
			logger.ErrorCtx(ctx, "insert user failed",
				zap.String("external_id", u.ExternalID),
				zap.Error(err))
		}
		return err
	}

	id, _ := result.LastInsertId()
	u.ID = id

	logger.InfoCtx(ctx, "user created",
		zap.Int64("id", u.ID),
		zap.String("external_id", u.ExternalID),
		zap.String("nickname", u.Nickname))

	return nil
}

// UpdateUserBalance 更新用户指定模式下的余额
func UpdateUserBalance(ctx context.Context, exec sqlx.ExtContext, userID int64, mode int8, newBalance decimal.Decimal) error {
	now := getCurrentMillis()
	column := "real_balance"
	if mode == constant.ModePlay {
		column = "play_balance"
	}
	query := `UPDATE users SET ` + column + ` = ?, updated_at = ? WHERE id = ?`

	_, err := exec.ExecContext(ctx, query, newBalance, now, userID)
	if err != nil {
		logger.ErrorCtx(ctx, "update user balance failed",
			zap.Int64("user_id", userID),
			zap.Int8("mode", mode),
			zap.String("new_balance", newBalance.String()),
			zap.Error(err))
		return err
	}

	return nil
}

// NewUserPlayBalance 新用户初始试玩余额（真金余额从 0 开始，走充值入账）
var NewUserPlayBalance = decimal.NewFromInt(1000)

// GetOrCreateUser 获取或创建用户（自动注册）
// 如果用户不存在，自动创建；如果存在，返回现有用户
func GetOrCreateUser(ctx context.Context, db *sqlx.DB, externalID, nickname string) (*User, error) {
	// 1. 先查询用户是否存在
	user, err := GetUserByExternalID(ctx, db, externalID)
	if err == nil {
		return user, nil // 用户已存在
	}

	// 2. 用户不存在，自动创建
	if err == sql.ErrNoRows {
		newUser := &User{
			ExternalID:  externalID,
			Nickname:    nickname,
			RealBalance: decimal.Zero,
			PlayBalance: NewUserPlayBalance,
			Status:      constant.StatusNormal,
		}

		if err := newUser.Insert(ctx, db); err != nil {
			// 处理并发创建的情况（唯一索引冲突时重新查询）
			if IsDuplicateKeyErr(err) {
				logger.InfoCtx(ctx, "concurrent user creation detected, retry query",
					zap.String("external_id", externalID))
				return GetUserByExternalID(ctx, db, externalID)
			}
			return nil, err
		}

		return newUser, nil
	}

	return nil, err
}

// IsDuplicateKeyErr 判断是否为 MySQL 唯一键冲突错误（错误码 1062）
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return false
}

// getCurrentMillis 获取当前13位毫秒时间戳
func getCurrentMillis() int64 {
	return time.Now().UnixMilli()
}
