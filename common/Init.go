package common

import (
	"context"
	"time"

	"crash-server/common/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jmoiron/sqlx"
)

// 初始化master db
func InitDB(dsn string, maxIdleConn, maxOpenConn int) *sqlx.DB {

	db, err := sqlx.Connect("mysql", dsn+"&parseTime=true&loc=Local")
	if err != nil {
		logger.Fatalf("InitDB sqlx.Connect", zap.Error(err))
	}

	// 连接池参数
	db.SetMaxOpenConns(maxOpenConn)
	db.SetMaxIdleConns(maxIdleConn)
	db.SetConnMaxLifetime(2 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	// 会话级超时，降低锁等待时长（结算与回收路径大量使用 FOR UPDATE）
	if _, err := db.Exec("SET SESSION innodb_lock_wait_timeout = ?", 5); err != nil {
		logger.Warn("SET innodb_lock_wait_timeout failed", zap.Error(err))
	}

	err = db.Ping()
	if err != nil {
		logger.Fatalf("InitDB failed:", zap.Error(err))
	}

	return db
}

// 初始化Redis单实例连接（锁、限流、幂等缓存共用一个连接池）
func InitRedis(addr string, psd string, db int) *redis.Client {
	reddb := redis.NewClient(&redis.Options{
		Network:         "tcp",
		Addr:            addr,
		DB:              db,
		Password:        psd,
		DialTimeout:     10 * time.Second, // 设置连接超时
		ReadTimeout:     10 * time.Second, // 设置读取超时
		WriteTimeout:    5 * time.Second,  // 设置写入超时
		PoolSize:        500,              // 连接池最大socket连接数，默认为5倍CPU数
		MinIdleConns:    100,              // 启动阶段创建并长期维持的空闲连接数
		PoolTimeout:     11 * time.Second, // 所有连接繁忙时等待可用连接的最大时长
		MaxRetries:      1,                // 命令执行失败时最多重试次数
		ConnMaxIdleTime: 2 * time.Minute,  // 闲置超时
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := reddb.Ping(ctx).Err(); err != nil {
		logger.Fatalf("InitRedis failed:", zap.Error(err))
	}
	return reddb
}

// 初始化Redis集群连接（多节点部署时使用）
func InitRedisCluster(addrs []string, pwd string) *redis.ClusterClient {
	clusterClient := redis.NewClusterClient(&redis.ClusterOptions{
		Addrs:           addrs, // 集群节点地址，建议多填节点以增加容灾能力
		Password:        pwd,
		MaxRedirects:    8,    // 遇到网络错误或 MOVED/ASK 重定向时的最大重试次数
		ReadOnly:        true, // 允许在从节点上执行只读命令
		RouteRandomly:   true, // 只读命令在主从间随机挑选节点
		DialTimeout:     10 * time.Second,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    5 * time.Second,
		PoolSize:        500,
		MinIdleConns:    100,
		PoolTimeout:     11 * time.Second,
		MaxRetries:      1,
		ConnMaxIdleTime: 2 * time.Minute,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := clusterClient.Ping(ctx).Err(); err != nil {
		logger.Fatalf("InitRedisCluster failed:", zap.Error(err))
	}
	return clusterClient
}

// 初始化Redis哨兵连接
func InitRedisSentinel(addrs []string, psd, name string, db int) *redis.Client {
	reddb := redis.NewFailoverClient(&redis.FailoverOptions{
		MasterName:    name,
		SentinelAddrs: addrs,
		Password:      psd,
		DB:            db,
		DialTimeout:   10 * time.Second,
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		PoolSize:      100,
		PoolTimeout:   30 * time.Second,
		MaxRetries:    2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := reddb.Ping(ctx).Err(); err != nil {
		logger.Fatalf("InitRedisSentinel failed:", zap.Error(err))
	}
	return reddb
}
