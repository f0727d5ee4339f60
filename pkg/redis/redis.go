package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tempora/backend/config"
)

// Client Redis 客户端封装
// 用于 Token 黑名单、接口限流、计时器归属租约，以及计时事件的跨实例发布/订阅
type Client struct {
	rdb    *goredis.Client
	logger *zap.Logger
}

// NewClient 创建 Redis 连接并执行 Ping 健康检查
func NewClient(cfg *config.RedisConfig, logger *zap.Logger) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}

	logger.Info("Redis 连接成功", zap.String("addr", cfg.Addr))

	return &Client{rdb: rdb, logger: logger}, nil
}

// ── Token 黑名单 ──

const blacklistPrefix = "token:blacklist:"

// BlacklistToken 将 JWT ID 加入黑名单，TTL 与 Token 剩余有效期一致
func (c *Client) BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil // Token 已过期，无需加入黑名单
	}
	return c.rdb.Set(ctx, blacklistPrefix+jti, "1", ttl).Err()
}

// IsBlacklisted 检查 JWT ID 是否在黑名单中
func (c *Client) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	n, err := c.rdb.Exists(ctx, blacklistPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ── 滑动窗口限流 ──

// CheckRateLimit 以有序集合实现滑动窗口计数，返回本次请求是否放行
func (c *Client) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	member := strconv.FormatInt(now.UnixNano(), 10)
	windowStart := strconv.FormatInt(now.Add(-window).UnixNano(), 10)

	pipe := c.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", windowStart)
	pipe.ZAdd(ctx, key, goredis.Z{Score: float64(now.UnixNano()), Member: member})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	return card.Val() <= int64(limit), nil
}

// ── 发布 / 订阅 ──

// Message 订阅收到的消息
type Message struct {
	Channel string
	Payload []byte
}

// Publish 向频道发布一条消息
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	return c.rdb.Publish(ctx, channel, payload).Err()
}

// PSubscribe 按模式订阅频道，返回消息通道与关闭函数
// ctx 取消或调用关闭函数后消息通道随之关闭
func (c *Client) PSubscribe(ctx context.Context, pattern string) (<-chan Message, func() error, error) {
	pubsub := c.rdb.PSubscribe(ctx, pattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("订阅 %s 失败: %w", pattern, err)
	}

	out := make(chan Message, 64)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			select {
			case out <- Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, pubsub.Close, nil
}

// ── 计时器归属租约 ──

const leasePrefix = "tempora:lease:"

// renewScript 仅当租约仍属于调用方时续期
var renewScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Leases 以实例标识为值的用户租约，多实例部署时决定由哪个实例发出提醒
type Leases struct {
	rdb   *goredis.Client
	owner string
}

// Leases 返回以 owner 为实例标识的租约操作集
func (c *Client) Leases(owner string) *Leases {
	return &Leases{rdb: c.rdb, owner: owner}
}

// Claim 强制取得租约，返回此前是否已由本实例持有
func (l *Leases) Claim(ctx context.Context, userID string, ttl time.Duration) (bool, error) {
	prev, err := l.rdb.SetArgs(ctx, leasePrefix+userID, l.owner, goredis.SetArgs{TTL: ttl, Get: true}).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return prev == l.owner, nil
}

// Hold 租约空闲时取得；由本实例持有时续期。返回是否持有
func (l *Leases) Hold(ctx context.Context, userID string, ttl time.Duration) (bool, error) {
	key := leasePrefix + userID
	ok, err := l.rdb.SetNX(ctx, key, l.owner, ttl).Result()
	if err != nil || ok {
		return ok, err
	}
	n, err := renewScript.Run(ctx, l.rdb, []string{key}, l.owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Close 关闭 Redis 连接
func (c *Client) Close() error {
	return c.rdb.Close()
}
