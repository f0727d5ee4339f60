package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"tempora/backend/internal/tracking"
	"tempora/backend/pkg/redis"
)

// ── 内存 Broker ──

type memBroker struct {
	mu         sync.Mutex
	out        chan redis.Message
	published  int
	publishErr error
}

func newMemBroker() *memBroker {
	return &memBroker{out: make(chan redis.Message, 64)}
}

func (b *memBroker) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published++
	b.out <- redis.Message{Channel: channel, Payload: payload}
	return nil
}

func (b *memBroker) PSubscribe(_ context.Context, pattern string) (<-chan redis.Message, func() error, error) {
	if !strings.HasSuffix(pattern, "*") {
		return nil, nil, errors.New("unexpected pattern")
	}
	return b.out, func() error { return nil }, nil
}

func receive(t *testing.T, ch <-chan tracking.Event) tracking.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("等待事件超时")
		return tracking.Event{}
	}
}

func assertEmpty(t *testing.T, ch <-chan tracking.Event) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("不应收到事件，实际收到 %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

// ── 进程内模式 ──

func TestHub_LocalDelivery(t *testing.T) {
	h := NewHub(nil, zap.NewNop())
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start 应成功: %v", err)
	}
	defer h.Close()

	mine, cancelMine := h.Subscribe("user-1")
	defer cancelMine()
	other, cancelOther := h.Subscribe("user-2")
	defer cancelOther()

	err := h.Publish(context.Background(), tracking.Event{
		Type:   tracking.EventNotification,
		UserID: "user-1",
		Notification: &tracking.Notification{
			Cue: tracking.CueChime, Title: "整点报时",
		},
	})
	if err != nil {
		t.Fatalf("Publish 应成功: %v", err)
	}

	ev := receive(t, mine)
	if ev.Notification == nil || ev.Notification.Cue != tracking.CueChime {
		t.Errorf("收到的事件内容错误: %+v", ev)
	}
	assertEmpty(t, other)
}

func TestHub_CancelClosesChannel(t *testing.T) {
	h := NewHub(nil, zap.NewNop())

	ch, cancel := h.Subscribe("user-1")
	if h.SubscriberCount("user-1") != 1 {
		t.Fatal("应有 1 个订阅者")
	}
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("取消后通道应关闭")
	}
	if h.SubscriberCount("user-1") != 0 {
		t.Error("取消后不应再有订阅者")
	}
}

func TestHub_CloseEndsSubscriptions(t *testing.T) {
	h := NewHub(nil, zap.NewNop())

	a, cancelA := h.Subscribe("user-1")
	b, _ := h.Subscribe("user-2")
	h.Close()

	if _, ok := <-a; ok {
		t.Error("关闭后 user-1 的通道应关闭")
	}
	if _, ok := <-b; ok {
		t.Error("关闭后 user-2 的通道应关闭")
	}
	// 关闭后再取消不应 panic
	cancelA()
	if h.SubscriberCount("user-1") != 0 {
		t.Error("关闭后不应再有订阅者")
	}
}

func TestHub_SlowSubscriberDropsEvents(t *testing.T) {
	h := NewHub(nil, zap.NewNop())
	ch, cancel := h.Subscribe("user-1")
	defer cancel()

	for i := 0; i < bufferSize+10; i++ {
		_ = h.Publish(context.Background(), tracking.Event{Type: tracking.EventState, UserID: "user-1"})
	}

	if len(ch) != bufferSize {
		t.Errorf("缓冲区应被填满且不阻塞，期望 %d，实际 %d", bufferSize, len(ch))
	}
}

// ── Redis 模式 ──

func TestHub_BrokerRoundTrip(t *testing.T) {
	broker := newMemBroker()
	h := NewHub(broker, zap.NewNop())
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start 应成功: %v", err)
	}
	defer h.Close()

	ch, cancel := h.Subscribe("user-1")
	defer cancel()

	state := tracking.State{Phase: tracking.PhaseRunning, Elapsed: 42, Visible: true}
	err := h.Publish(context.Background(), tracking.Event{
		Type:   tracking.EventState,
		UserID: "user-1",
		State:  &state,
	})
	if err != nil {
		t.Fatalf("Publish 应成功: %v", err)
	}

	ev := receive(t, ch)
	if ev.State == nil || ev.State.Phase != tracking.PhaseRunning || ev.State.Elapsed != 42 {
		t.Errorf("经 Broker 转发的状态错误: %+v", ev.State)
	}
	if broker.published != 1 {
		t.Errorf("应经 Broker 发布 1 次，实际 %d", broker.published)
	}
}

func TestHub_BrokerFailureFallsBackLocally(t *testing.T) {
	broker := newMemBroker()
	broker.publishErr = errors.New("redis down")
	h := NewHub(broker, zap.NewNop())
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start 应成功: %v", err)
	}
	defer h.Close()

	ch, cancel := h.Subscribe("user-1")
	defer cancel()

	err := h.Publish(context.Background(), tracking.Event{Type: tracking.EventState, UserID: "user-1"})
	if err == nil {
		t.Error("Broker 失败时应返回错误")
	}
	if ev := receive(t, ch); ev.Type != tracking.EventState {
		t.Errorf("本地订阅者仍应收到事件，实际 %+v", ev)
	}
}

func TestChannel(t *testing.T) {
	if got := Channel("abc"); got != "tempora:events:abc" {
		t.Errorf("频道名错误: %s", got)
	}
}
