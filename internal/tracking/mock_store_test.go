package tracking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"tempora/backend/internal/model"
	"tempora/backend/internal/repository"
	pkgerrors "tempora/backend/pkg/errors"
)

// ── Mock TimeEntryRepository ──

type mockEntryRepo struct {
	mu      sync.Mutex
	entries map[string]*model.TimeEntry
	seq     int

	// 故障注入
	errGetOpen  error
	errListOpen error
	errCreate   error
	errComplete error
	errUpdate   error

	completeCalls int
}

func newMockEntryRepo() *mockEntryRepo {
	return &mockEntryRepo{entries: make(map[string]*model.TimeEntry)}
}

// seed 绕过状态机直接写入一条记录（模拟其他设备或历史遗留）
func (m *mockEntryRepo) seed(userID, status string, clockIn time.Time) *model.TimeEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	e := &model.TimeEntry{
		ID:             fmt.Sprintf("seed-%d", m.seq),
		UserID:         userID,
		OrganizationID: "org-1",
		ClockIn:        clockIn,
		Date:           dateOf(clockIn),
		Status:         status,
	}
	m.entries[e.ID] = e
	cp := *e
	return &cp
}

func (m *mockEntryRepo) get(id string) *model.TimeEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil
	}
	cp := *e
	return &cp
}

func (m *mockEntryRepo) openCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.UserID == userID && e.IsOpen() {
			n++
		}
	}
	return n
}

func (m *mockEntryRepo) all() []model.TimeEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.TimeEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClockIn.After(out[j].ClockIn) })
	return out
}

func (m *mockEntryRepo) GetOpenByUser(_ context.Context, userID string) (*model.TimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errGetOpen != nil {
		return nil, m.errGetOpen
	}
	var found []*model.TimeEntry
	for _, e := range m.entries {
		if e.UserID == userID && e.IsOpen() {
			found = append(found, e)
		}
	}
	switch len(found) {
	case 0:
		return nil, gorm.ErrRecordNotFound
	case 1:
		cp := *found[0]
		return &cp, nil
	default:
		return nil, pkgerrors.ErrMultipleRows
	}
}

func (m *mockEntryRepo) ListOpenByUser(_ context.Context, userID string) ([]model.TimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errListOpen != nil {
		return nil, m.errListOpen
	}
	var out []model.TimeEntry
	for _, e := range m.entries {
		if e.UserID == userID && e.IsOpen() {
			out = append(out, model.TimeEntry{ID: e.ID, ClockIn: e.ClockIn})
		}
	}
	return out, nil
}

func (m *mockEntryRepo) Create(_ context.Context, entry *model.TimeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errCreate != nil {
		return m.errCreate
	}
	m.seq++
	entry.ID = fmt.Sprintf("entry-%d", m.seq)
	cp := *entry
	m.entries[entry.ID] = &cp
	return nil
}

func (m *mockEntryRepo) Complete(_ context.Context, id string, clockOut time.Time, totalHours float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completeCalls++
	if m.errComplete != nil {
		return m.errComplete
	}
	e, ok := m.entries[id]
	if !ok {
		return pkgerrors.ErrNoRowsAffected
	}
	e.ClockOut = &clockOut
	e.Status = model.TimeEntryStatusCompleted
	e.TotalHours = &totalHours
	return nil
}

func (m *mockEntryRepo) UpdateStatus(_ context.Context, id, status string) (*model.TimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errUpdate != nil {
		return nil, m.errUpdate
	}
	e, ok := m.entries[id]
	if !ok {
		return nil, pkgerrors.ErrNoRowsAffected
	}
	e.Status = status
	cp := *e
	return &cp, nil
}

func (m *mockEntryRepo) ListByUser(_ context.Context, userID string, offset, limit int) ([]model.TimeEntry, int64, error) {
	var mine []model.TimeEntry
	for _, e := range m.all() {
		if e.UserID == userID {
			mine = append(mine, e)
		}
	}
	total := int64(len(mine))
	if offset >= len(mine) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(mine) {
		end = len(mine)
	}
	return mine[offset:end], total, nil
}

func (m *mockEntryRepo) ListForReport(_ context.Context, filter repository.ReportFilter) ([]model.TimeEntry, error) {
	var out []model.TimeEntry
	for _, e := range m.all() {
		if e.OrganizationID == filter.OrganizationID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ── Mock PauseRepository ──

type mockPauseRepo struct {
	mu     sync.Mutex
	pauses []model.Pause
	err    error
}

func (m *mockPauseRepo) Create(_ context.Context, pause *model.Pause) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	pause.ID = fmt.Sprintf("pause-%d", len(m.pauses)+1)
	m.pauses = append(m.pauses, *pause)
	return nil
}

func (m *mockPauseRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pauses)
}

// ── 事件记录 ──

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) notifications(cue Cue) []Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Notification
	for _, ev := range p.events {
		if ev.Type == EventNotification && ev.Notification.Cue == cue {
			out = append(out, *ev.Notification)
		}
	}
	return out
}

func (p *recordingPublisher) stateCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Type == EventState {
			n++
		}
	}
	return n
}

// ── 可控时钟 ──

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// ── 内存租约 ──

// memLeaseStore 模拟多个实例共享的租约存储，忽略 TTL
type memLeaseStore struct {
	mu     sync.Mutex
	owners map[string]string // key: user_id, value: 实例标识
}

func newMemLeaseStore() *memLeaseStore {
	return &memLeaseStore{owners: make(map[string]string)}
}

func (s *memLeaseStore) lease(instance string) *memLease {
	return &memLease{store: s, instance: instance}
}

func (s *memLeaseStore) owner(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owners[userID]
}

func (s *memLeaseStore) expire(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.owners, userID)
}

type memLease struct {
	store    *memLeaseStore
	instance string
}

func (l *memLease) Claim(_ context.Context, userID string, _ time.Duration) (bool, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	prev := l.store.owners[userID]
	l.store.owners[userID] = l.instance
	return prev == l.instance, nil
}

func (l *memLease) Hold(_ context.Context, userID string, _ time.Duration) (bool, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	prev, ok := l.store.owners[userID]
	if !ok {
		l.store.owners[userID] = l.instance
		return true, nil
	}
	return prev == l.instance, nil
}

// ── 订阅数 ──

type fakePresence struct {
	mu   sync.Mutex
	subs map[string]int
}

func (p *fakePresence) set(userID string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subs == nil {
		p.subs = make(map[string]int)
	}
	p.subs[userID] = n
}

func (p *fakePresence) SubscriberCount(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subs[userID]
}
