package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"tempora/backend/internal/dto"
	"tempora/backend/internal/model"
	"tempora/backend/internal/repository"
	"tempora/backend/internal/tracking"
)

// TimerService 计时业务接口，每个调用都落到当前用户的计时器上
type TimerService interface {
	State(ctx context.Context, sess tracking.Session) (*dto.TimerStateResponse, error)
	Refresh(ctx context.Context, sess tracking.Session) (*dto.TimerStateResponse, error)
	ClockIn(ctx context.Context, sess tracking.Session, req *dto.ClockInRequest) (*dto.TimerStateResponse, error)
	ClockOut(ctx context.Context, sess tracking.Session) (*dto.ClockOutResponse, error)
	TogglePause(ctx context.Context, sess tracking.Session) (*dto.TimerStateResponse, error)
	SetVisibility(ctx context.Context, sess tracking.Session, visible bool) (*dto.TimerStateResponse, error)
	KeepZombie(ctx context.Context, sess tracking.Session) (*dto.TimerStateResponse, error)
	FixZombie(ctx context.Context, sess tracking.Session, end time.Time) (*dto.TimerStateResponse, error)
	// Subscribe 订阅用户实时事件；订阅前确保计时器已创建并完成初始拉取
	Subscribe(ctx context.Context, sess tracking.Session) (<-chan tracking.Event, func(), error)
}

type timerService struct {
	registry *tracking.Registry
	projects repository.ProjectRepository
	events   EventSource
	logger   *zap.Logger
}

// NewTimerService 创建 TimerService 实例
func NewTimerService(registry *tracking.Registry, projects repository.ProjectRepository, events EventSource, logger *zap.Logger) TimerService {
	return &timerService{registry: registry, projects: projects, events: events, logger: logger}
}

func (s *timerService) State(ctx context.Context, sess tracking.Session) (*dto.TimerStateResponse, error) {
	t, err := s.registry.Acquire(ctx, sess)
	if err != nil {
		return nil, err
	}
	return stateResponse(t.Snapshot()), nil
}

func (s *timerService) Refresh(ctx context.Context, sess tracking.Session) (*dto.TimerStateResponse, error) {
	t, err := s.registry.Acquire(ctx, sess)
	if err != nil {
		return nil, err
	}
	return stateResponse(t.FetchActive(ctx)), nil
}

func (s *timerService) ClockIn(ctx context.Context, sess tracking.Session, req *dto.ClockInRequest) (*dto.TimerStateResponse, error) {
	t, err := s.registry.Acquire(ctx, sess)
	if err != nil {
		return nil, err
	}

	// 组织缺失时交给计时器返回 ErrContextMissing
	var target tracking.Target
	if sess.OrganizationID != "" {
		project, task, err := resolveTarget(ctx, s.projects, sess.OrganizationID, req.ProjectID, req.TaskID)
		if err != nil {
			if !isProjectError(err) {
				s.logger.Error("校验计时项目失败", zap.String("project_id", req.ProjectID), zap.Error(err))
			}
			return nil, err
		}
		target = tracking.Target{Project: project, Task: task}
	}

	if _, err := t.ClockIn(ctx, target); err != nil {
		return nil, err
	}
	return stateResponse(t.Snapshot()), nil
}

func (s *timerService) ClockOut(ctx context.Context, sess tracking.Session) (*dto.ClockOutResponse, error) {
	t, err := s.registry.Acquire(ctx, sess)
	if err != nil {
		return nil, err
	}
	hours, err := t.ClockOut(ctx)
	if err != nil {
		return nil, err
	}
	return &dto.ClockOutResponse{
		TotalHours: hours,
		State:      *stateResponse(t.Snapshot()),
	}, nil
}

func (s *timerService) TogglePause(ctx context.Context, sess tracking.Session) (*dto.TimerStateResponse, error) {
	t, err := s.registry.Acquire(ctx, sess)
	if err != nil {
		return nil, err
	}
	if _, err := t.TogglePause(ctx); err != nil {
		return nil, err
	}
	return stateResponse(t.Snapshot()), nil
}

func (s *timerService) SetVisibility(ctx context.Context, sess tracking.Session, visible bool) (*dto.TimerStateResponse, error) {
	t, err := s.registry.Acquire(ctx, sess)
	if err != nil {
		return nil, err
	}
	return stateResponse(t.SetVisibility(ctx, visible)), nil
}

func (s *timerService) KeepZombie(ctx context.Context, sess tracking.Session) (*dto.TimerStateResponse, error) {
	t, err := s.registry.Acquire(ctx, sess)
	if err != nil {
		return nil, err
	}
	if _, err := t.KeepZombie(ctx); err != nil {
		return nil, err
	}
	return stateResponse(t.Snapshot()), nil
}

func (s *timerService) FixZombie(ctx context.Context, sess tracking.Session, end time.Time) (*dto.TimerStateResponse, error) {
	t, err := s.registry.Acquire(ctx, sess)
	if err != nil {
		return nil, err
	}
	if _, err := t.FixZombie(ctx, end.UTC()); err != nil {
		return nil, err
	}
	return stateResponse(t.Snapshot()), nil
}

func (s *timerService) Subscribe(ctx context.Context, sess tracking.Session) (<-chan tracking.Event, func(), error) {
	if _, err := s.registry.Acquire(ctx, sess); err != nil {
		return nil, nil, err
	}
	ch, cancel := s.events.Subscribe(sess.UserID)
	s.logger.Debug("实时事件订阅", zap.String("user_id", sess.UserID))
	return ch, cancel, nil
}

func isProjectError(err error) bool {
	return errors.Is(err, ErrProjectNotFound) ||
		errors.Is(err, ErrProjectArchived) ||
		errors.Is(err, ErrTaskNotInProject)
}

// ── 转换 ──

// StateResponse 将计时器快照转为响应结构（SSE 推送复用）
func StateResponse(st tracking.State) dto.TimerStateResponse {
	return *stateResponse(st)
}

func stateResponse(st tracking.State) *dto.TimerStateResponse {
	resp := &dto.TimerStateResponse{
		Phase:          string(st.Phase),
		ElapsedSeconds: st.Elapsed,
		IsLoading:      st.Loading,
		Visible:        st.Visible,
	}
	if st.Active != nil {
		entry := toTimeEntryResponse(st.Active)
		resp.ActiveEntry = &entry
	}
	if st.Zombie != nil {
		resp.Zombie = &dto.ZombieResponse{
			Entry:            toTimeEntryResponse(st.Zombie.Entry),
			HoursRunning:     st.Zombie.HoursRunning,
			SuggestedEndTime: st.Zombie.SuggestedEndTime,
		}
	}
	return resp
}

func toTimeEntryResponse(e *model.TimeEntry) dto.TimeEntryResponse {
	resp := dto.TimeEntryResponse{
		ID:         e.ID,
		ProjectID:  e.ProjectID,
		TaskID:     e.TaskID,
		ClockIn:    e.ClockIn,
		ClockOut:   e.ClockOut,
		Date:       e.Date.Format("2006-01-02"),
		Status:     e.Status,
		TotalHours: e.TotalHours,
		Notes:      e.Notes,
	}
	if e.Project != nil {
		resp.ProjectName = e.Project.Name
		if e.Project.Color != nil {
			resp.ProjectColor = *e.Project.Color
		}
	}
	if e.Task != nil {
		resp.TaskName = e.Task.Name
	}
	return resp
}
