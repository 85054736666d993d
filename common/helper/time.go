package helper

import (
	"strings"
	"time"
)

// StrToTime 宽松解析时间字符串（支付网关回调的 pay_time 格式不统一）
// 解析失败返回零值 time.Time
func StrToTime(value string) time.Time {

	if value == "" {
		return time.Time{}
	}
	layouts := []string{
		"2006-01-02 15:04:05 -0700 MST",
		"2006-01-02 15:04:05 -0700",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006/01/02 15:04:05 -0700 MST",
		"2006/01/02 15:04:05 -0700",
		"2006/01/02 15:04:05",
		"2006-01-02 -0700 MST",
		"2006-01-02 -0700",
		"2006-01-02",
		"2006/01/02",
		time.RFC3339,
		time.RFC3339Nano,
		time.RFC1123,
		time.RFC1123Z,
	}

	var t time.Time
	var err error
	loc, _ := time.LoadLocation("Asia/Shanghai")

	for _, layout := range layouts {
		t, err = time.ParseInLocation(layout, value, loc)
		if err == nil {
			return t
		}
	}
	return t
}

// Unix 时间戳转为日期格式
func TimeUnixToStr(t int64) string {

	return time.Unix(t, 0).Format("2006-01-02 15:04:05")
}

// PayTimeToMs 将网关回调时间转为毫秒时间戳；空串或解析失败返回当前时间
// 回调时间仅作记录口径，不参与资金判定
func PayTimeToMs(value string) int64 {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Now().UnixMilli()
	}
	t := StrToTime(v)
	if t.IsZero() {
		return time.Now().UnixMilli()
	}
	return t.UnixMilli()
}
