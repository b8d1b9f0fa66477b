package services

import (
	"context"
	"fmt"
	"time"

	"task-manager/api/internal/models"
	"task-manager/api/internal/query"
	"task-manager/api/internal/repositories"
	"task-manager/api/internal/validation"
)

// TaskService is what the HTTP layer talks to. Lookups and mutations of a
// missing task fail with repositories.ErrTaskNotFound; bad input fails with
// *validation.Error.
type TaskService interface {
	ListTasks(ctx context.Context, params query.Params) ([]models.Task, error)
	GetTask(ctx context.Context, id int64) (models.Task, error)
	CreateTask(ctx context.Context, req models.TaskRequest) (models.Task, error)
	UpdateTask(ctx context.Context, id int64, req models.TaskRequest) (models.Task, error)
	UpdateTaskStatus(ctx context.Context, id int64, req models.StatusRequest) (models.Task, error)
	ToggleTaskStatus(ctx context.Context, id int64) (models.Task, error)
	DeleteTask(ctx context.Context, id int64) error
	GetStats(ctx context.Context) (query.Summary, error)
}

type BasicTaskService struct {
	repo repositories.TaskRepository
	now  func() time.Time
}

func NewTaskService(repo repositories.TaskRepository) *BasicTaskService {
	return &BasicTaskService{repo: repo, now: time.Now}
}

func (s *BasicTaskService) ListTasks(ctx context.Context, params query.Params) ([]models.Task, error) {
	tasks, err := s.repo.ListActive(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (s *BasicTaskService) GetTask(ctx context.Context, id int64) (models.Task, error) {
	return s.repo.GetActive(ctx, id)
}

func (s *BasicTaskService) CreateTask(ctx context.Context, req models.TaskRequest) (models.Task, error) {
	in, err := validation.ValidateTask(req)
	if err != nil {
		return models.Task{}, err
	}
	return s.repo.Insert(ctx, in)
}

// UpdateTask reports a missing task before looking at the body.
func (s *BasicTaskService) UpdateTask(ctx context.Context, id int64, req models.TaskRequest) (models.Task, error) {
	if _, err := s.repo.GetActive(ctx, id); err != nil {
		return models.Task{}, err
	}

	in, err := validation.ValidateTask(req)
	if err != nil {
		return models.Task{}, err
	}
	return s.repo.Replace(ctx, id, in)
}

func (s *BasicTaskService) UpdateTaskStatus(ctx context.Context, id int64, req models.StatusRequest) (models.Task, error) {
	if _, err := s.repo.GetActive(ctx, id); err != nil {
		return models.Task{}, err
	}

	status, err := validation.ValidateStatus(req.Status)
	if err != nil {
		return models.Task{}, err
	}
	return s.repo.PatchStatus(ctx, id, status)
}

// ToggleTaskStatus flips Done to Todo and anything else to Done.
func (s *BasicTaskService) ToggleTaskStatus(ctx context.Context, id int64) (models.Task, error) {
	task, err := s.repo.GetActive(ctx, id)
	if err != nil {
		return models.Task{}, err
	}
	return s.repo.PatchStatus(ctx, id, task.Status.Toggle())
}

func (s *BasicTaskService) DeleteTask(ctx context.Context, id int64) error {
	return s.repo.SoftDelete(ctx, id)
}

func (s *BasicTaskService) GetStats(ctx context.Context) (query.Summary, error) {
	tasks, err := s.repo.ListActive(ctx, query.Params{})
	if err != nil {
		return query.Summary{}, fmt.Errorf("load task stats: %w", err)
	}
	return query.Summarize(tasks, s.now()), nil
}
