package tracking

import (
	"time"

	"tempora/backend/internal/model"
)

// DefaultZombieThreshold 运行超过 12 小时的计时视为遗忘未停止
const DefaultZombieThreshold = 12 * time.Hour

// IsZombie 判断拉取到的未结束记录是否为"僵尸计时"
// 主动暂停的记录视为用户知情，不做拦截
func IsZombie(entry *model.TimeEntry, now time.Time, threshold time.Duration) bool {
	if entry == nil || entry.Status == model.TimeEntryStatusPaused {
		return false
	}
	if entry.ClockIn.IsZero() {
		return false
	}
	return now.Sub(entry.ClockIn) >= threshold
}

// ZombieInfo 待用户决定的僵尸计时及恢复提示
type ZombieInfo struct {
	Entry            *model.TimeEntry `json:"entry"`
	HoursRunning     int64            `json:"hours_running"`      // 已运行整小时数
	SuggestedEndTime time.Time        `json:"suggested_end_time"` // 建议的修正结束时间
}

func newZombieInfo(entry *model.TimeEntry, now time.Time, suggestion time.Duration) *ZombieInfo {
	return &ZombieInfo{
		Entry:            entry,
		HoursRunning:     int64(now.Sub(entry.ClockIn) / time.Hour),
		SuggestedEndTime: entry.ClockIn.Add(suggestion),
	}
}
