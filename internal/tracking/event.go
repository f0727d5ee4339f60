package tracking

import (
	"context"
	"strconv"
	"time"
)

// EventType 推送给订阅者的事件类型
type EventType string

const (
	EventState        EventType = "state"        // 计时状态变更
	EventNotification EventType = "notification" // 提示音 + 弹出提醒
)

// Cue 客户端应播放的提示音
type Cue string

const (
	CueChime    Cue = "chime"    // 整点/半点报时
	CueReminder Cue = "reminder" // 空闲提醒
	CueSuccess  Cue = "success"  // 结束计时
)

// Notification 提示音与弹窗内容
type Notification struct {
	Cue         Cue    `json:"cue"`
	Level       string `json:"level"` // info | warning | success
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	DurationMS  int64  `json:"duration_ms"` // 弹窗显示时长
}

// Event 发往某个用户实时频道的事件
type Event struct {
	Type         EventType     `json:"type"`
	UserID       string        `json:"user_id"`
	State        *State        `json:"state,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
	At           time.Time     `json:"at"`
}

// Publisher 实时事件发布者（由 notify.Hub 实现）
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

func chimeNotification(minute int) Notification {
	title := "整点报时"
	if minute != 0 {
		title = "半点报时"
	}
	return Notification{
		Cue:         CueChime,
		Level:       "info",
		Title:       title,
		Description: "继续保持，状态不错。",
		DurationMS:  5000,
	}
}

func idleReminderNotification() Notification {
	return Notification{
		Cue:         CueReminder,
		Level:       "warning",
		Title:       "提醒：计时器未启动",
		Description: "是否忘记开始本次工作计时？",
		DurationMS:  10000,
	}
}

func clockOutNotification(hours float64) Notification {
	return Notification{
		Cue:         CueSuccess,
		Level:       "success",
		Title:       "计时已结束",
		Description: "本次记录 " + strconv.FormatFloat(hours, 'f', 2, 64) + " 小时",
		DurationMS:  3000,
	}
}
