package tracking

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"tempora/backend/internal/repository"
)

// Registry 每个已登录用户持有一个计时器
// 首次获取时执行初始拉取并启动提醒轮询；组织切换时替换旧计时器；
// 长时间无请求且无实时订阅的计时器由后台扫描回收。
type Registry struct {
	entries  repository.TimeEntryRepository
	pauses   repository.PauseRepository
	pub      Publisher
	clock    Clock
	lease    Lease
	presence Presence
	opts     Options
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	trackers map[string]*Tracker
	closed   bool
	sweeping bool
}

// NewRegistry 创建计时器注册表；deps.Logger 为空时使用 Nop
func NewRegistry(deps Deps, opts Options) *Registry {
	if deps.Publisher == nil {
		deps.Publisher = nopPublisher{}
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		entries:  deps.Entries,
		pauses:   deps.Pauses,
		pub:      deps.Publisher,
		clock:    deps.Clock,
		lease:    deps.Lease,
		presence: deps.Presence,
		opts:     opts.withDefaults(),
		logger:   deps.Logger,
		ctx:      ctx,
		cancel:   cancel,
		trackers: make(map[string]*Tracker),
	}
}

// Acquire 获取（必要时创建）会话对应的计时器，并记一次用户活动
func (r *Registry) Acquire(ctx context.Context, s Session) (*Tracker, error) {
	if s.UserID == "" {
		return nil, ErrContextMissing
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, context.Canceled
	}
	if t, ok := r.trackers[s.UserID]; ok {
		if t.session == s {
			r.mu.Unlock()
			t.Touch()
			if !t.claimLease(ctx) {
				// 其他实例处理过该用户的请求，本地状态需重新拉取
				t.FetchActive(ctx)
			}
			return t, nil
		}
		// 认证上下文变化：销毁旧计时器后重建
		delete(r.trackers, s.UserID)
		r.mu.Unlock()
		t.Stop()
		r.logger.Info("会话组织变更，重建计时器",
			zap.String("user_id", s.UserID),
			zap.String("organization_id", s.OrganizationID),
		)
		r.mu.Lock()
	}

	if t, ok := r.trackers[s.UserID]; ok && t.session == s {
		r.mu.Unlock()
		t.Touch()
		return t, nil
	}

	t := r.newTracker(s)
	// 初始拉取完成前持有指令锁，先到的指令排在其后
	t.cmdMu.Lock()
	r.trackers[s.UserID] = t
	r.mu.Unlock()

	t.claimLease(ctx)
	t.fetchActive(context.WithoutCancel(ctx))
	t.cmdMu.Unlock()

	t.Start(r.ctx)
	t.publishState(ctx)
	return t, nil
}

// Lookup 返回已存在的计时器，不会创建
func (r *Registry) Lookup(userID string) (*Tracker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trackers[userID]
	return t, ok
}

// Release 用户登出时停止并移除其计时器
func (r *Registry) Release(userID string) {
	r.mu.Lock()
	t, ok := r.trackers[userID]
	delete(r.trackers, userID)
	r.mu.Unlock()

	if ok {
		t.Stop()
		r.logger.Info("已释放计时器", zap.String("user_id", userID))
	}
}

// Len 当前持有的计时器数量
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trackers)
}

// ── 空闲回收 ──

// Sweep 回收超过 IdleTTL 无请求、且在本实例没有实时订阅的计时器，返回回收数量
func (r *Registry) Sweep() int {
	now := r.clock.Now()

	r.mu.Lock()
	var idle []*Tracker
	for userID, t := range r.trackers {
		if now.Sub(t.LastSeen()) < r.opts.IdleTTL {
			continue
		}
		if r.presence != nil && r.presence.SubscriberCount(userID) > 0 {
			continue
		}
		delete(r.trackers, userID)
		idle = append(idle, t)
	}
	r.mu.Unlock()

	for _, t := range idle {
		t.Stop()
	}
	if len(idle) > 0 {
		r.logger.Info("已回收空闲计时器", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// StartSweeper 启动后台回收扫描，Close 时退出；重复调用无效
func (r *Registry) StartSweeper() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.sweeping {
		return
	}
	r.sweeping = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.opts.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				r.Sweep()
			}
		}
	}()
}

// Close 停止回收扫描与所有计时器，服务关闭时调用
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	trackers := r.trackers
	r.trackers = make(map[string]*Tracker)
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	for _, t := range trackers {
		t.Stop()
	}
	r.logger.Info("计时器注册表已关闭", zap.Int("released", len(trackers)))
}

func (r *Registry) newTracker(s Session) *Tracker {
	return NewTracker(s, Deps{
		Entries:   r.entries,
		Pauses:    r.pauses,
		Publisher: r.pub,
		Clock:     r.clock,
		Logger:    r.logger,
		Lease:     r.lease,
	}, r.opts)
}
