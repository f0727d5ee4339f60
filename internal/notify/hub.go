package notify

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"go.uber.org/zap"

	"tempora/backend/internal/tracking"
	"tempora/backend/pkg/redis"
)

const (
	channelPrefix = "tempora:events:"
	bufferSize    = 16
)

// Channel 返回用户的实时事件频道名
func Channel(userID string) string {
	return channelPrefix + userID
}

// Broker 跨实例消息通道，由 pkg/redis.Client 实现
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	PSubscribe(ctx context.Context, pattern string) (<-chan redis.Message, func() error, error)
}

// Hub 实时事件分发中心
// 有 Redis 时经 PUBLISH 广播，由每个实例唯一的 PSUBSCRIBE 循环分发给本地订阅者；
// Redis 不可用时退化为进程内直接投递。
type Hub struct {
	broker Broker
	logger *zap.Logger

	mu   sync.RWMutex
	subs map[string]map[uint64]chan tracking.Event
	seq  uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub 创建分发中心；broker 为 nil 时仅做进程内投递
func NewHub(broker Broker, logger *zap.Logger) *Hub {
	return &Hub{
		broker: broker,
		logger: logger,
		subs:   make(map[string]map[uint64]chan tracking.Event),
	}
}

// Start 订阅 Redis 频道并启动分发循环；无 Redis 时直接返回
func (h *Hub) Start(ctx context.Context) error {
	if h.broker == nil {
		h.logger.Warn("未配置 Redis，实时事件仅在本实例内分发")
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	msgs, closeSub, err := h.broker.PSubscribe(ctx, channelPrefix+"*")
	if err != nil {
		cancel()
		return err
	}

	h.cancel = cancel
	h.done = make(chan struct{})
	go func() {
		defer close(h.done)
		defer func() { _ = closeSub() }()
		h.loop(ctx, msgs)
	}()

	h.logger.Info("实时事件订阅已启动", zap.String("pattern", channelPrefix+"*"))
	return nil
}

func (h *Hub) loop(ctx context.Context, msgs <-chan redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var ev tracking.Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				h.logger.Warn("实时事件解析失败", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			h.deliver(strings.TrimPrefix(msg.Channel, channelPrefix), ev)
		}
	}
}

// Publish 发布事件，实现 tracking.Publisher
func (h *Hub) Publish(ctx context.Context, ev tracking.Event) error {
	if h.broker == nil {
		h.deliver(ev.UserID, ev)
		return nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := h.broker.Publish(ctx, Channel(ev.UserID), payload); err != nil {
		// 广播失败时至少保证本实例的订阅者能收到
		h.deliver(ev.UserID, ev)
		return err
	}
	return nil
}

// Subscribe 订阅用户的实时事件，返回事件通道与取消函数
// 消费过慢时新事件会被丢弃，不阻塞发布者
func (h *Hub) Subscribe(userID string) (<-chan tracking.Event, func()) {
	ch := make(chan tracking.Event, bufferSize)

	h.mu.Lock()
	h.seq++
	id := h.seq
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[uint64]chan tracking.Event)
	}
	h.subs[userID][id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			set, ok := h.subs[userID]
			if !ok {
				return
			}
			// Close 可能已先行关闭该通道
			if _, live := set[id]; live {
				delete(set, id)
				close(ch)
			}
			if len(set) == 0 {
				delete(h.subs, userID)
			}
		})
	}
	return ch, cancel
}

// SubscriberCount 用户当前在本实例的订阅数
func (h *Hub) SubscriberCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

func (h *Hub) deliver(userID string, ev tracking.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs[userID] {
		select {
		case ch <- ev:
		default:
			h.logger.Debug("订阅者消费过慢，丢弃事件",
				zap.String("user_id", userID),
				zap.String("type", string(ev.Type)),
			)
		}
	}
}

// Close 停止分发循环并关闭所有订阅通道，事件流随之结束
func (h *Hub) Close() {
	if h.cancel != nil {
		h.cancel()
		<-h.done
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, set := range h.subs {
		for id, ch := range set {
			close(ch)
			delete(set, id)
		}
		delete(h.subs, userID)
	}
}
