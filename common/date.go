package common

import (
	"time"
)

// 业务结算日统一使用上海时区（运营侧对账口径）
func bizLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		return time.FixedZone("CST", 8*3600)
	}
	return loc
}

// 获取某天的0点0分0秒的时间戳
func GetDayStartUnix(input time.Time) int64 {
	loc := bizLocation()

	year, month, day := input.In(loc).Date()
	midnight := time.Date(year, month, day, 0, 0, 0, 0, loc)

	return midnight.Unix()
}

// 获取当天 00:00:00 和 第二天 00:00:00（秒）
func GetTodayRange(t time.Time) (start, end int64) {
	loc := bizLocation()
	year, month, day := t.In(loc).Date()

	startTime := time.Date(year, month, day, 0, 0, 0, 0, loc)
	endTime := startTime.AddDate(0, 0, 1) // +1 天

	return startTime.Unix(), endTime.Unix()
}

// 获取当天 00:00:00 和 第二天 00:00:00（毫秒，表内时间戳统一毫秒）
// 每日充值限额按该区间统计
func GetTodayRangeMs(t time.Time) (start, end int64) {
	s, e := GetTodayRange(t)
	return s * 1000, e * 1000
}
