package tracking

import "time"

// 提醒调度采用"每秒轮询 + 比对墙上时钟"，而非预约未来某一时刻触发：
// 标签页/进程被挂起后恢复时不会漏报或连报。

// chimeGate 整点/半点报时的去重闸门
// 同一分钟内只响一次；离开报时分钟后重置。
type chimeGate struct {
	minutes map[int]bool
	last    int
	fired   bool
}

func newChimeGate(minutes []int) chimeGate {
	set := make(map[int]bool, len(minutes))
	for _, m := range minutes {
		set[m] = true
	}
	return chimeGate{minutes: set}
}

// check 返回本次 tick 是否应报时及对应分钟
func (g *chimeGate) check(now time.Time) (int, bool) {
	minute := now.Minute()
	if !g.minutes[minute] {
		g.fired = false
		return minute, false
	}
	if g.fired && g.last == minute {
		return minute, false
	}
	g.last = minute
	g.fired = true
	return minute, true
}

func (g *chimeGate) reset() {
	g.fired = false
}

// idleGate 空闲提醒闸门
// 每隔 interval 到期一次；不可见时到期的检查挂起（不叠加），
// 恢复可见后的首个 tick 触发一次并重新计时。
type idleGate struct {
	interval time.Duration
	next     time.Time
	pending  bool
}

func (g *idleGate) reset(now time.Time) {
	g.next = now.Add(g.interval)
	g.pending = false
}

func (g *idleGate) check(now time.Time, visible bool) bool {
	if !g.pending && !now.Before(g.next) {
		g.pending = true
	}
	if g.pending && visible {
		g.reset(now)
		return true
	}
	return false
}

// Reminder 报时与空闲提醒调度器（非并发安全，由 Tracker 的 tick 循环独占使用）
type Reminder struct {
	loc     *time.Location
	chime   chimeGate
	idle    idleGate
	started bool
	holding bool // 上一次 tick 时是否持有计时记录
}

// NewReminder 创建调度器
// minutes 为报时分钟集合（默认 0 与 30），loc 为判断分钟所依据的时区
func NewReminder(minutes []int, idleInterval time.Duration, loc *time.Location) *Reminder {
	if loc == nil {
		loc = time.UTC
	}
	return &Reminder{
		loc:   loc,
		chime: newChimeGate(minutes),
		idle:  idleGate{interval: idleInterval},
	}
}

// TickInput 单次 tick 时的计时器快照
type TickInput struct {
	Now     time.Time
	Running bool // 存在 active 记录
	Holding bool // 存在当前记录（active / paused），待决的遗忘计时不算
	Visible bool // 客户端当前可见
}

// Tick 推进一次调度，返回需要发出的提醒
// "是否持有记录"翻转时两个调度都会重启，相当于销毁后重建定时器
func (r *Reminder) Tick(in TickInput) []Notification {
	now := in.Now.In(r.loc)
	if !r.started || in.Holding != r.holding {
		r.started = true
		r.holding = in.Holding
		r.chime.reset()
		r.idle.reset(now)
	}

	var out []Notification
	if in.Running {
		if minute, ok := r.chime.check(now); ok {
			out = append(out, chimeNotification(minute))
		}
	}
	if !in.Holding && r.idle.check(now, in.Visible) {
		out = append(out, idleReminderNotification())
	}
	return out
}
