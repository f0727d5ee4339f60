package tracking

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"tempora/backend/internal/model"
	"tempora/backend/internal/repository"
)

var (
	ErrContextMissing    = errors.New("缺少用户或组织上下文")
	ErrNoPendingZombie   = errors.New("没有待处理的遗忘计时")
	ErrInvalidCorrection = errors.New("结束时间不能早于开始时间")
)

// Phase 计时器所处阶段
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseRunning Phase = "running"
	PhasePaused  Phase = "paused"
)

// Session 计时器所属的用户与组织
type Session struct {
	UserID         string
	OrganizationID string
}

// Options 计时器运行参数
type Options struct {
	ZombieThreshold      time.Duration
	TickInterval         time.Duration
	IdleReminderInterval time.Duration
	ChimeMinutes         []int
	Location             *time.Location
	FixSuggestion        time.Duration

	IdleTTL       time.Duration // 无请求且无订阅超过该时长的计时器会被回收
	SweepInterval time.Duration // 回收扫描间隔
	LeaseTTL      time.Duration // 多实例归属租约有效期
}

// DefaultOptions 默认参数：12 小时僵尸阈值、每秒轮询、15 分钟空闲提醒、整点与半点报时
func DefaultOptions() Options {
	return Options{
		ZombieThreshold:      DefaultZombieThreshold,
		TickInterval:         time.Second,
		IdleReminderInterval: 15 * time.Minute,
		ChimeMinutes:         []int{0, 30},
		Location:             time.UTC,
		FixSuggestion:        4 * time.Hour,
		IdleTTL:              15 * time.Minute,
		SweepInterval:        time.Minute,
		LeaseTTL:             30 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ZombieThreshold <= 0 {
		o.ZombieThreshold = d.ZombieThreshold
	}
	if o.TickInterval <= 0 {
		o.TickInterval = d.TickInterval
	}
	if o.IdleReminderInterval <= 0 {
		o.IdleReminderInterval = d.IdleReminderInterval
	}
	if o.ChimeMinutes == nil {
		o.ChimeMinutes = d.ChimeMinutes
	}
	if o.Location == nil {
		o.Location = d.Location
	}
	if o.FixSuggestion <= 0 {
		o.FixSuggestion = d.FixSuggestion
	}
	if o.IdleTTL <= 0 {
		o.IdleTTL = d.IdleTTL
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = d.SweepInterval
	}
	if o.LeaseTTL <= 0 {
		o.LeaseTTL = d.LeaseTTL
	}
	return o
}

// State 计时器只读快照
type State struct {
	Phase   Phase            `json:"phase"`
	Active  *model.TimeEntry `json:"active_entry"`
	Zombie  *ZombieInfo      `json:"zombie,omitempty"`
	Elapsed int64            `json:"elapsed_seconds"`
	Loading bool             `json:"is_loading"`
	Visible bool             `json:"visible"`
}

// Deps 计时器依赖
type Deps struct {
	Entries   repository.TimeEntryRepository
	Pauses    repository.PauseRepository
	Publisher Publisher
	Clock     Clock
	Logger    *zap.Logger
	Lease     Lease    // 为 nil 时按单实例处理，始终持有归属
	Presence  Presence // 仅 Registry 使用
}

// Target 开始计时的项目与任务，均可为空
// 调用方负责确认二者属于会话所在组织
type Target struct {
	Project *model.Project
	Task    *model.Task
}

// Tracker 单个用户的计时状态机
// 所有存储失败都在此处被捕获、记录并以 error 返回；只有写入确认后才修改本地状态。
type Tracker struct {
	session Session
	entries repository.TimeEntryRepository
	pauses  repository.PauseRepository
	pub     Publisher
	clock   Clock
	opts    Options
	logger  *zap.Logger

	cmdMu sync.Mutex // 串行化同一用户的指令

	mu       sync.RWMutex
	active   *model.TimeEntry
	zombie   *model.TimeEntry
	loading  bool
	visible  bool
	lastSeen time.Time

	lease          Lease
	leaseMu        sync.Mutex
	leaseHeld      bool
	leaseCheckedAt time.Time

	reminder *Reminder
	runMu    sync.Mutex
	stopped  bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewTracker 创建计时器；需调用 Start 启动提醒轮询
func NewTracker(session Session, deps Deps, opts Options) *Tracker {
	opts = opts.withDefaults()
	if deps.Publisher == nil {
		deps.Publisher = nopPublisher{}
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Tracker{
		session:   session,
		entries:   deps.Entries,
		pauses:    deps.Pauses,
		pub:       deps.Publisher,
		clock:     deps.Clock,
		opts:      opts,
		logger:    deps.Logger.With(zap.String("user_id", session.UserID)),
		loading:   session.UserID != "",
		visible:   true,
		lastSeen:  deps.Clock.Now(),
		lease:     deps.Lease,
		leaseHeld: deps.Lease == nil,
		reminder:  NewReminder(opts.ChimeMinutes, opts.IdleReminderInterval, opts.Location),
	}
}

// Session 返回计时器所属会话
func (t *Tracker) Session() Session {
	return t.session
}

// Touch 记录一次用户活动，用于空闲回收
func (t *Tracker) Touch() {
	now := t.clock.Now()
	t.mu.Lock()
	t.lastSeen = now
	t.mu.Unlock()
}

// LastSeen 最近一次用户活动时间
func (t *Tracker) LastSeen() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastSeen
}

// ── 读取 ──

// Snapshot 返回当前状态，已用时长每次重新计算
func (t *Tracker) Snapshot() State {
	now := t.clock.Now()
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stateLocked(now)
}

func (t *Tracker) stateLocked(now time.Time) State {
	st := State{
		Phase:   PhaseIdle,
		Loading: t.loading,
		Visible: t.visible,
	}
	if t.active != nil {
		entry := *t.active
		st.Active = &entry
		st.Elapsed = ElapsedSeconds(entry.ClockIn, now)
		st.Phase = PhaseRunning
		if entry.Status == model.TimeEntryStatusPaused {
			st.Phase = PhasePaused
		}
	}
	if t.zombie != nil {
		entry := *t.zombie
		st.Zombie = newZombieInfo(&entry, now, t.opts.FixSuggestion)
	}
	return st
}

func (t *Tracker) current() *model.TimeEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.active == nil {
		return nil
	}
	entry := *t.active
	return &entry
}

// FetchActive 从存储拉取进行中的记录并执行僵尸检测
func (t *Tracker) FetchActive(ctx context.Context) State {
	t.cmdMu.Lock()
	t.fetchActive(ctx)
	t.cmdMu.Unlock()

	t.publishState(ctx)
	return t.Snapshot()
}

func (t *Tracker) fetchActive(ctx context.Context) {
	if t.session.UserID == "" {
		return
	}

	t.mu.Lock()
	t.loading = true
	t.mu.Unlock()

	entry, err := t.entries.GetOpenByUser(ctx, t.session.UserID)
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.loading = false

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		t.active = nil
		t.zombie = nil
	case err != nil:
		// 查询失败（含多条未结束记录）按空闲处理，下一次开始计时的清扫会修复数据
		t.logger.Error("查询进行中的计时记录失败，按空闲处理", zap.Error(err))
		t.active = nil
	case IsZombie(entry, now, t.opts.ZombieThreshold):
		t.logger.Warn("检测到长时间未结束的计时，等待用户确认",
			zap.String("entry_id", entry.ID),
			zap.Time("clock_in", entry.ClockIn),
		)
		t.active = nil
		t.zombie = entry
	default:
		t.active = entry
		t.zombie = nil
	}
}

// ── 指令 ──

// ClockIn 开始计时
// 顺序：结束本地未结束记录 → 清扫库中遗留记录 → 插入新记录 → 采用新记录
func (t *Tracker) ClockIn(ctx context.Context, target Target) (*model.TimeEntry, error) {
	if t.session.UserID == "" || t.session.OrganizationID == "" {
		t.logger.Error("开始计时失败：缺少用户或组织上下文",
			zap.String("organization_id", t.session.OrganizationID),
		)
		return nil, ErrContextMissing
	}

	t.cmdMu.Lock()
	entry, err := t.clockIn(ctx, target)
	t.cmdMu.Unlock()

	t.publishState(ctx)
	return entry, err
}

func (t *Tracker) clockIn(ctx context.Context, target Target) (*model.TimeEntry, error) {
	if cur := t.current(); cur != nil {
		if _, err := t.clockOut(ctx); err != nil {
			t.logger.Warn("开始计时前结束当前记录失败，交由清扫处理",
				zap.String("entry_id", cur.ID),
				zap.Error(err),
			)
		}
	}

	t.closeOrphans(ctx)

	now := t.clock.Now()
	entry := &model.TimeEntry{
		UserID:         t.session.UserID,
		OrganizationID: t.session.OrganizationID,
		ClockIn:        now,
		Date:           dateOf(now),
		Status:         model.TimeEntryStatusActive,
	}
	if target.Project != nil {
		entry.ProjectID = optionalID(target.Project.ProjectID)
	}
	if target.Task != nil {
		entry.TaskID = optionalID(target.Task.TaskID)
	}
	if err := t.entries.Create(ctx, entry); err != nil {
		t.logger.Error("创建计时记录失败", zap.Error(err))
		return nil, err
	}
	// 插入不写关联，快照直接沿用已校验的项目与任务
	entry.Project = target.Project
	entry.Task = target.Task

	t.mu.Lock()
	t.active = entry
	t.zombie = nil
	t.mu.Unlock()

	t.logger.Info("开始计时",
		zap.String("entry_id", entry.ID),
		zap.Stringp("project_id", entry.ProjectID),
	)
	cp := *entry
	return &cp, nil
}

// CloseOrphans 清扫：结束该用户所有 active/paused 记录，返回成功结束的条数
func (t *Tracker) CloseOrphans(ctx context.Context) int {
	t.cmdMu.Lock()
	n := t.closeOrphans(ctx)
	t.cmdMu.Unlock()

	if n > 0 {
		t.publishState(ctx)
	}
	return n
}

func (t *Tracker) closeOrphans(ctx context.Context) int {
	orphans, err := t.entries.ListOpenByUser(ctx, t.session.UserID)
	if err != nil {
		t.logger.Error("查询遗留计时记录失败", zap.Error(err))
		return 0
	}

	now := t.clock.Now()
	closed := 0
	for _, o := range orphans {
		end := now
		if end.Before(o.ClockIn) {
			end = o.ClockIn
		}
		hours := HoursBetween(o.ClockIn, end)
		if err := t.entries.Complete(ctx, o.ID, end, hours); err != nil {
			t.logger.Warn("结束遗留计时记录失败", zap.String("entry_id", o.ID), zap.Error(err))
			continue
		}
		closed++

		t.mu.Lock()
		if t.active != nil && t.active.ID == o.ID {
			t.active = nil
		}
		if t.zombie != nil && t.zombie.ID == o.ID {
			t.zombie = nil
		}
		t.mu.Unlock()
	}

	if closed > 0 {
		t.logger.Info("已清扫遗留计时记录", zap.Int("count", closed))
	}
	return closed
}

// ClockOut 结束当前计时；无记录时为空操作，返回 0 小时
func (t *Tracker) ClockOut(ctx context.Context) (float64, error) {
	t.cmdMu.Lock()
	cur := t.current()
	hours, err := t.clockOut(ctx)
	t.cmdMu.Unlock()

	if err != nil || cur == nil {
		return hours, err
	}
	t.notify(ctx, clockOutNotification(hours))
	t.publishState(ctx)
	return hours, nil
}

func (t *Tracker) clockOut(ctx context.Context) (float64, error) {
	cur := t.current()
	if cur == nil {
		return 0, nil
	}

	now := t.clock.Now()
	hours := HoursBetween(cur.ClockIn, now)
	if err := t.entries.Complete(ctx, cur.ID, now, hours); err != nil {
		t.logger.Error("结束计时失败", zap.String("entry_id", cur.ID), zap.Error(err))
		return 0, err
	}

	t.mu.Lock()
	if t.active != nil && t.active.ID == cur.ID {
		t.active = nil
	}
	t.mu.Unlock()

	t.logger.Info("结束计时", zap.String("entry_id", cur.ID), zap.Float64("total_hours", hours))
	return hours, nil
}

// TogglePause 在 active 与 paused 之间切换；无记录时为空操作
func (t *Tracker) TogglePause(ctx context.Context) (*model.TimeEntry, error) {
	t.cmdMu.Lock()
	entry, err := t.togglePause(ctx)
	t.cmdMu.Unlock()

	if err != nil || entry == nil {
		return entry, err
	}
	t.publishState(ctx)
	return entry, nil
}

func (t *Tracker) togglePause(ctx context.Context) (*model.TimeEntry, error) {
	cur := t.current()
	if cur == nil {
		return nil, nil
	}

	next := model.TimeEntryStatusPaused
	if cur.Status == model.TimeEntryStatusPaused {
		next = model.TimeEntryStatusActive
	}

	if next == model.TimeEntryStatusPaused {
		pause := &model.Pause{
			TimeEntryID: cur.ID,
			StartTime:   t.clock.Now(),
			Type:        model.PauseTypeBreak,
		}
		if err := t.pauses.Create(ctx, pause); err != nil {
			t.logger.Warn("写入暂停记录失败", zap.String("entry_id", cur.ID), zap.Error(err))
		}
	}

	updated, err := t.entries.UpdateStatus(ctx, cur.ID, next)
	if err != nil {
		t.logger.Error("切换暂停状态失败", zap.String("entry_id", cur.ID), zap.Error(err))
		return nil, err
	}
	// RETURNING 不带关联，沿用本地已加载的项目信息
	if updated.Project == nil {
		updated.Project = cur.Project
	}

	t.mu.Lock()
	t.active = updated
	t.mu.Unlock()

	cp := *updated
	return &cp, nil
}

// KeepZombie 用户确认仍在工作：待决记录转为当前记录
func (t *Tracker) KeepZombie(ctx context.Context) (*model.TimeEntry, error) {
	t.cmdMu.Lock()
	t.mu.Lock()
	z := t.zombie
	if z != nil {
		t.active = z
		t.zombie = nil
	}
	t.mu.Unlock()
	t.cmdMu.Unlock()

	if z == nil {
		return nil, ErrNoPendingZombie
	}
	t.logger.Info("用户保留长时间计时", zap.String("entry_id", z.ID))
	t.publishState(ctx)
	cp := *z
	return &cp, nil
}

// FixZombie 以用户给定的结束时间关闭待决记录，随后重新拉取
func (t *Tracker) FixZombie(ctx context.Context, end time.Time) (float64, error) {
	t.cmdMu.Lock()
	hours, err := t.fixZombie(ctx, end)
	if err == nil {
		t.fetchActive(ctx)
	}
	t.cmdMu.Unlock()

	if err != nil {
		return 0, err
	}
	t.publishState(ctx)
	return hours, nil
}

func (t *Tracker) fixZombie(ctx context.Context, end time.Time) (float64, error) {
	t.mu.RLock()
	z := t.zombie
	t.mu.RUnlock()
	if z == nil {
		return 0, ErrNoPendingZombie
	}
	if end.Before(z.ClockIn) {
		return 0, ErrInvalidCorrection
	}

	hours := HoursBetween(z.ClockIn, end)
	if err := t.entries.Complete(ctx, z.ID, end, hours); err != nil {
		t.logger.Error("修正遗忘计时失败", zap.String("entry_id", z.ID), zap.Error(err))
		return 0, err
	}

	t.mu.Lock()
	if t.zombie != nil && t.zombie.ID == z.ID {
		t.zombie = nil
	}
	t.mu.Unlock()

	t.logger.Info("已修正遗忘计时",
		zap.String("entry_id", z.ID),
		zap.Time("clock_out", end),
		zap.Float64("total_hours", hours),
	)
	return hours, nil
}

// SetVisibility 记录客户端可见性；恢复可见时立即推送重新计算的状态
func (t *Tracker) SetVisibility(ctx context.Context, visible bool) State {
	t.mu.Lock()
	t.visible = visible
	t.mu.Unlock()

	if visible {
		t.publishState(ctx)
	}
	return t.Snapshot()
}

// ── 提醒轮询 ──

// Start 启动提醒轮询；ctx 取消或调用 Stop 后退出
func (t *Tracker) Start(ctx context.Context) {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	if t.stopped || t.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(ctx)
}

// Stop 停止轮询并等待协程退出，可重复调用；停止后不可再 Start
func (t *Tracker) Stop() {
	t.runMu.Lock()
	if t.stopped {
		t.runMu.Unlock()
		return
	}
	t.stopped = true
	cancel, done := t.cancel, t.done
	t.runMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (t *Tracker) run(ctx context.Context) {
	defer close(t.done)

	ticker := time.NewTicker(t.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

func (t *Tracker) tick(ctx context.Context) {
	now := t.clock.Now()

	t.mu.RLock()
	in := TickInput{
		Now:     now,
		Running: t.active != nil && t.active.Status == model.TimeEntryStatusActive,
		Holding: t.active != nil,
		Visible: t.visible,
	}
	t.mu.RUnlock()

	out := t.reminder.Tick(in)
	if !t.holdsLease(ctx, now, len(out) > 0) {
		return
	}
	for _, n := range out {
		t.notify(ctx, n)
	}
}

// ── 发布 ──

func (t *Tracker) publishState(ctx context.Context) {
	st := t.Snapshot()
	t.publish(ctx, Event{Type: EventState, State: &st})
}

func (t *Tracker) notify(ctx context.Context, n Notification) {
	t.publish(ctx, Event{Type: EventNotification, Notification: &n})
}

func (t *Tracker) publish(ctx context.Context, ev Event) {
	ev.UserID = t.session.UserID
	ev.At = t.clock.Now()
	if err := t.pub.Publish(ctx, ev); err != nil {
		t.logger.Warn("推送计时事件失败", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}

func optionalID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
