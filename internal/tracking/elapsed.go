package tracking

import (
	"math"
	"time"
)

// ElapsedSeconds 计算自 clockIn 起已过去的整秒数
// 每次都从开始时间重新计算（不做累加），漏掉的 tick 或时钟漂移会自动纠正。
// clockIn 缺失（零值）或晚于 now 时返回 0，不向调用方抛错。
func ElapsedSeconds(clockIn, now time.Time) int64 {
	if clockIn.IsZero() || now.Before(clockIn) {
		return 0
	}
	return int64(now.Sub(clockIn) / time.Second)
}

// HoursBetween 计算 start 到 end 的小时数，保留两位小数
// 先截断到整秒再换算，与计时显示口径一致
func HoursBetween(start, end time.Time) float64 {
	seconds := float64(int64(end.Sub(start) / time.Second))
	return math.Round(seconds/3600*100) / 100
}

