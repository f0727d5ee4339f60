package tracking

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Lease 多实例部署下用户计时器的归属租约（pkg/redis.Leases 实现）
// 同一用户可能在多个实例上各有一个计时器，只有持有租约的那个发出提醒。
type Lease interface {
	// Claim 强制取得租约，返回此前是否已由本实例持有
	Claim(ctx context.Context, userID string, ttl time.Duration) (bool, error)
	// Hold 本实例持有时续期；租约空闲时顺带取得。返回是否持有
	Hold(ctx context.Context, userID string, ttl time.Duration) (bool, error)
}

// Presence 用户在本实例的实时订阅数（notify.Hub 实现）
type Presence interface {
	SubscriberCount(userID string) int
}

// claimLease 用户请求落到本实例时抢占租约
// 返回 false 表示此前由其他实例持有，本地状态可能已过期
func (t *Tracker) claimLease(ctx context.Context) bool {
	if t.lease == nil {
		return true
	}
	now := t.clock.Now()

	t.leaseMu.Lock()
	defer t.leaseMu.Unlock()

	wasHeld, err := t.lease.Claim(ctx, t.session.UserID, t.opts.LeaseTTL)
	if err != nil {
		// Redis 不可用时退化为单实例行为
		t.logger.Warn("抢占计时器租约失败，按本实例持有处理", zap.Error(err))
		t.leaseHeld = true
		t.leaseCheckedAt = now
		return true
	}
	t.leaseHeld = true
	t.leaseCheckedAt = now
	return wasHeld
}

// holdsLease tick 时判断是否持有租约
// 有提醒要发时必查；否则每 LeaseTTL/3 续期一次
func (t *Tracker) holdsLease(ctx context.Context, now time.Time, pending bool) bool {
	if t.lease == nil {
		return true
	}

	t.leaseMu.Lock()
	defer t.leaseMu.Unlock()

	if !pending && now.Sub(t.leaseCheckedAt) < t.opts.LeaseTTL/3 {
		return t.leaseHeld
	}

	held, err := t.lease.Hold(ctx, t.session.UserID, t.opts.LeaseTTL)
	t.leaseCheckedAt = now
	if err != nil {
		t.logger.Warn("续期计时器租约失败，沿用上次结果", zap.Error(err))
		return t.leaseHeld
	}
	if held != t.leaseHeld {
		t.logger.Debug("计时器租约归属变化", zap.Bool("held", held))
	}
	t.leaseHeld = held
	return held
}
