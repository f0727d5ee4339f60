package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"tempora/backend/internal/model"
	"tempora/backend/internal/repository"
	pkgerrors "tempora/backend/pkg/errors"
)

// ── Mock UserRepository ──

type mockUserRepo struct {
	users map[string]*model.User // key: user_id
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) add(u *model.User) {
	m.users[u.UserID] = u
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// ── Mock OrganizationRepository ──

type mockOrgRepo struct {
	members []model.OrganizationMember // 按加入顺序
}

func (m *mockOrgRepo) GetMembership(_ context.Context, organizationID, userID string) (*model.OrganizationMember, error) {
	for i := range m.members {
		if m.members[i].OrganizationID == organizationID && m.members[i].UserID == userID {
			mem := m.members[i]
			return &mem, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockOrgRepo) ListMemberships(_ context.Context, userID string) ([]model.OrganizationMember, error) {
	var out []model.OrganizationMember
	for _, mem := range m.members {
		if mem.UserID == userID {
			out = append(out, mem)
		}
	}
	return out, nil
}

// ── Mock TimeEntryRepository ──

type mockTimeEntryRepo struct {
	mu      sync.Mutex
	entries []*model.TimeEntry
	seq     int

	lastFilter repository.ReportFilter
	err        error
}

func newMockTimeEntryRepo() *mockTimeEntryRepo {
	return &mockTimeEntryRepo{}
}

func (m *mockTimeEntryRepo) add(e *model.TimeEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		m.seq++
		e.ID = fmt.Sprintf("entry-%d", m.seq)
	}
	m.entries = append(m.entries, e)
}

func (m *mockTimeEntryRepo) find(id string) *model.TimeEntry {
	for _, e := range m.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (m *mockTimeEntryRepo) GetOpenByUser(_ context.Context, userID string) (*model.TimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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

func (m *mockTimeEntryRepo) ListOpenByUser(_ context.Context, userID string) ([]model.TimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TimeEntry
	for _, e := range m.entries {
		if e.UserID == userID && e.IsOpen() {
			out = append(out, model.TimeEntry{ID: e.ID, ClockIn: e.ClockIn})
		}
	}
	return out, nil
}

func (m *mockTimeEntryRepo) Create(_ context.Context, entry *model.TimeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.seq++
	entry.ID = fmt.Sprintf("entry-%d", m.seq)
	cp := *entry
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockTimeEntryRepo) Complete(_ context.Context, id string, clockOut time.Time, totalHours float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	e := m.find(id)
	if e == nil {
		return pkgerrors.ErrNoRowsAffected
	}
	e.ClockOut = &clockOut
	e.TotalHours = &totalHours
	e.Status = model.TimeEntryStatusCompleted
	return nil
}

func (m *mockTimeEntryRepo) UpdateStatus(_ context.Context, id, status string) (*model.TimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.find(id)
	if e == nil {
		return nil, pkgerrors.ErrNoRowsAffected
	}
	e.Status = status
	cp := *e
	return &cp, nil
}

func (m *mockTimeEntryRepo) ListByUser(_ context.Context, userID string, offset, limit int) ([]model.TimeEntry, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, 0, m.err
	}
	var mine []model.TimeEntry
	for _, e := range m.entries {
		if e.UserID == userID {
			mine = append(mine, *e)
		}
	}
	sort.Slice(mine, func(i, j int) bool { return mine[i].ClockIn.After(mine[j].ClockIn) })
	total := int64(len(mine))
	if offset >= len(mine) {
		return []model.TimeEntry{}, total, nil
	}
	end := offset + limit
	if end > len(mine) {
		end = len(mine)
	}
	return mine[offset:end], total, nil
}

func (m *mockTimeEntryRepo) ListForReport(_ context.Context, filter repository.ReportFilter) ([]model.TimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = filter
	if m.err != nil {
		return nil, m.err
	}
	var out []model.TimeEntry
	for _, e := range m.entries {
		if e.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.UserID != "" && e.UserID != filter.UserID {
			continue
		}
		if filter.ProjectID != "" && (e.ProjectID == nil || *e.ProjectID != filter.ProjectID) {
			continue
		}
		if filter.From != nil && e.ClockIn.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.ClockIn.After(*filter.To) {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClockIn.After(out[j].ClockIn) })
	return out, nil
}

// ── Mock PauseRepository ──

type mockPauseRepo struct{}

func (mockPauseRepo) Create(_ context.Context, _ *model.Pause) error { return nil }

// ── Mock TokenStore ──

type mockTokenStore struct {
	revoked map[string]time.Duration
}

func newMockTokenStore() *mockTokenStore {
	return &mockTokenStore{revoked: make(map[string]time.Duration)}
}

func (m *mockTokenStore) BlacklistToken(_ context.Context, jti string, ttl time.Duration) error {
	m.revoked[jti] = ttl
	return nil
}

func (m *mockTokenStore) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	_, ok := m.revoked[jti]
	return ok, nil
}

// ── Mock ProjectRepository ──

type mockProjectRepo struct {
	mu       sync.Mutex
	projects map[string]*model.Project // key: project_id
	tasks    map[string]*model.Task    // key: task_id
	seq      int
	err      error // 非 nil 时所有查询返回该错误
}

func newMockProjectRepo() *mockProjectRepo {
	return &mockProjectRepo{
		projects: make(map[string]*model.Project),
		tasks:    make(map[string]*model.Task),
	}
}

func (m *mockProjectRepo) addProject(p *model.Project) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ProjectID] = p
}

func (m *mockProjectRepo) addTask(t *model.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.TaskID] = t
}

func (m *mockProjectRepo) GetInOrganization(_ context.Context, organizationID, projectID string) (*model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.projects[projectID]
	if !ok || p.OrganizationID != organizationID {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockProjectRepo) List(_ context.Context, organizationID string, includeArchived bool) ([]model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []model.Project
	for _, p := range m.projects {
		if p.OrganizationID != organizationID {
			continue
		}
		if !includeArchived && p.IsArchived() {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockProjectRepo) Create(_ context.Context, p *model.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	p.ProjectID = fmt.Sprintf("project-%d", m.seq)
	cp := *p
	m.projects[p.ProjectID] = &cp
	return nil
}

func (m *mockProjectRepo) Update(_ context.Context, p *model.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.projects[p.ProjectID] = &cp
	return nil
}

func (m *mockProjectRepo) TaskStats(_ context.Context, projectIDs []string) (map[string]repository.TaskStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := make(map[string]repository.TaskStats)
	for _, id := range projectIDs {
		st := repository.TaskStats{ProjectID: id}
		for _, t := range m.tasks {
			if t.ProjectID != id {
				continue
			}
			st.TotalTasks++
			if t.Status == model.TaskStatusCompleted {
				st.CompletedTasks++
			}
			if t.EstimatedHours != nil {
				st.EstimatedHours += *t.EstimatedHours
			}
		}
		if st.TotalTasks > 0 {
			stats[id] = st
		}
	}
	return stats, nil
}

func (m *mockProjectRepo) GetTaskInProject(_ context.Context, projectID, taskID string) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	t, ok := m.tasks[taskID]
	if !ok || t.ProjectID != projectID {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockProjectRepo) ListTasks(_ context.Context, projectID string) ([]model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Task
	for _, t := range m.tasks {
		if t.ProjectID == projectID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID > out[j].TaskID })
	return out, nil
}

func (m *mockProjectRepo) CreateTask(_ context.Context, t *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t.TaskID = fmt.Sprintf("task-%d", m.seq)
	cp := *t
	m.tasks[t.TaskID] = &cp
	return nil
}

func (m *mockProjectRepo) UpdateTask(_ context.Context, t *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tasks[t.TaskID] = &cp
	return nil
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }
