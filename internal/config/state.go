package config

import (
	"sync/atomic"
	"time"
)

// 原子存储当前生效的配置，供各业务读取
var current atomic.Value // *Config

func SetCurrent(c *Config) {
	current.Store(c)
}

func GetCurrent() *Config {
	v := current.Load()
	if v == nil {
		return nil
	}
	return v.(*Config)
}

// GetFeatureFlag 返回功能开关（默认 false）
func GetFeatureFlag(name string) bool {
	cfg := GetCurrent()
	if cfg == nil || cfg.FeatureFlags == nil {
		return false
	}
	return cfg.FeatureFlags[name]
}

// GetThreshold 返回业务阈值（支持默认值）
func GetThreshold(name string, def int64) int64 {
	cfg := GetCurrent()
	if cfg == nil || cfg.Thresholds == nil {
		return def
	}
	if v, ok := cfg.Thresholds[name]; ok {
		return v
	}
	return def
}

// RateLimitRule 单个限流维度的生效参数
type RateLimitRule struct {
	Max          int64
	Window       time.Duration
	StoreEnabled bool
}

// RateLimitByIP 返回按 IP 限流参数（未配置时给出保守默认值）
func RateLimitByIP() (RateLimitRule, bool) {
	cfg := GetCurrent()
	if cfg == nil || !cfg.RateLimit.Enabled {
		return RateLimitRule{}, false
	}
	r := RateLimitRule{
		Max:          cfg.RateLimit.ByIP.Max,
		Window:       time.Duration(cfg.RateLimit.ByIP.WindowSeconds) * time.Second,
		StoreEnabled: cfg.RateLimit.StoreEnabled,
	}
	if r.Max <= 0 {
		r.Max = 60
	}
	if r.Window <= 0 {
		r.Window = time.Minute
	}
	return r, true
}

// RateLimitByUser 返回按用户限流参数
func RateLimitByUser() (RateLimitRule, bool) {
	cfg := GetCurrent()
	if cfg == nil || !cfg.RateLimit.Enabled {
		return RateLimitRule{}, false
	}
	r := RateLimitRule{
		Max:          cfg.RateLimit.ByUser.Max,
		Window:       time.Duration(cfg.RateLimit.ByUser.WindowSeconds) * time.Second,
		StoreEnabled: cfg.RateLimit.StoreEnabled,
	}
	if r.Max <= 0 {
		r.Max = 20
	}
	if r.Window <= 0 {
		r.Window = time.Minute
	}
	return r, true
}
