package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"task-manager/api/internal/cache"
	"task-manager/api/internal/logging"
	"task-manager/api/internal/models"
	"task-manager/api/internal/query"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

const (
	statsCacheKey   = "tasks_stats"
	listCachePrefix = "tasks:"
)

func taskCacheKey(id int64) string {
	return fmt.Sprintf("task:%d", id)
}

func listCacheKey(params query.Params) string {
	return listCachePrefix + params.Key()
}

func flightKey(key string, gen uint64) string {
	return fmt.Sprintf("%s@%d", key, gen)
}

type CacheTTLs struct {
	Task  time.Duration
	List  time.Duration
	Stats time.Duration
}

func DefaultCacheTTLs() CacheTTLs {
	return CacheTTLs{
		Task:  5 * time.Minute,
		List:  time.Minute,
		Stats: 30 * time.Second,
	}
}

// CachedTaskService decorates a TaskService with read-through caching.
// Cache failures are logged and never surface to the caller.
//
// Every mutation bumps generation before it invalidates. A value loaded from
// the wrapped service is only cached if the generation it was loaded under is
// still current, so a load that overlaps a delete cannot resurrect the task.
type CachedTaskService struct {
	taskService TaskService
	cache       cache.Cache
	ttl         CacheTTLs
	group       singleflight.Group
	generation  atomic.Uint64
	logger      *log.Logger
}

func NewCachedTaskService(taskService TaskService, c cache.Cache, ttl CacheTTLs, logger *log.Logger) *CachedTaskService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &CachedTaskService{
		taskService: taskService,
		cache:       c,
		ttl:         ttl,
		logger:      logger,
	}
}

func (s *CachedTaskService) ListTasks(ctx context.Context, params query.Params) ([]models.Task, error) {
	key := listCacheKey(params)

	gen := s.generation.Load()
	var cached []models.Task
	if s.lookup(ctx, key, &cached) {
		return cached, nil
	}

	// concurrent misses for the same listing share one load, but never one
	// that started before a mutation
	v, err, _ := s.group.Do(flightKey(key, gen), func() (interface{}, error) {
		tasks, err := s.taskService.ListTasks(context.WithoutCancel(ctx), params)
		if err != nil {
			return nil, err
		}
		s.storeAt(ctx, gen, key, tasks, s.ttl.List)
		return tasks, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]models.Task)), nil
}

func (s *CachedTaskService) GetTask(ctx context.Context, id int64) (models.Task, error) {
	key := taskCacheKey(id)

	gen := s.generation.Load()
	var cached models.Task
	if s.lookup(ctx, key, &cached) {
		return cached, nil
	}

	task, err := s.taskService.GetTask(ctx, id)
	if err != nil {
		return task, err
	}
	s.storeAt(ctx, gen, key, task, s.ttl.Task)
	return task, nil
}

func (s *CachedTaskService) GetStats(ctx context.Context) (query.Summary, error) {
	gen := s.generation.Load()
	var cached query.Summary
	if s.lookup(ctx, statsCacheKey, &cached) {
		return cached, nil
	}

	v, err, _ := s.group.Do(flightKey(statsCacheKey, gen), func() (interface{}, error) {
		summary, err := s.taskService.GetStats(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		s.storeAt(ctx, gen, statsCacheKey, summary, s.ttl.Stats)
		return summary, nil
	})
	if err != nil {
		return query.Summary{}, err
	}
	return v.(query.Summary), nil
}

func (s *CachedTaskService) CreateTask(ctx context.Context, req models.TaskRequest) (models.Task, error) {
	task, err := s.taskService.CreateTask(ctx, req)
	if err != nil {
		return task, err
	}
	gen := s.invalidate(ctx, task.ID)
	s.storeAt(ctx, gen, taskCacheKey(task.ID), task, s.ttl.Task)
	return task, nil
}

func (s *CachedTaskService) UpdateTask(ctx context.Context, id int64, req models.TaskRequest) (models.Task, error) {
	task, err := s.taskService.UpdateTask(ctx, id, req)
	if err != nil {
		return task, err
	}
	gen := s.invalidate(ctx, id)
	s.storeAt(ctx, gen, taskCacheKey(id), task, s.ttl.Task)
	return task, nil
}

func (s *CachedTaskService) UpdateTaskStatus(ctx context.Context, id int64, req models.StatusRequest) (models.Task, error) {
	task, err := s.taskService.UpdateTaskStatus(ctx, id, req)
	if err != nil {
		return task, err
	}
	gen := s.invalidate(ctx, id)
	s.storeAt(ctx, gen, taskCacheKey(id), task, s.ttl.Task)
	return task, nil
}

func (s *CachedTaskService) ToggleTaskStatus(ctx context.Context, id int64) (models.Task, error) {
	task, err := s.taskService.ToggleTaskStatus(ctx, id)
	if err != nil {
		return task, err
	}
	gen := s.invalidate(ctx, id)
	s.storeAt(ctx, gen, taskCacheKey(id), task, s.ttl.Task)
	return task, nil
}

func (s *CachedTaskService) DeleteTask(ctx context.Context, id int64) error {
	if err := s.taskService.DeleteTask(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// WarmCache preloads the default listing and the stats summary.
func (s *CachedTaskService) WarmCache(ctx context.Context) error {
	if _, err := s.ListTasks(ctx, query.Params{}); err != nil {
		return fmt.Errorf("warm task list: %w", err)
	}
	if _, err := s.GetStats(ctx); err != nil {
		return fmt.Errorf("warm task stats: %w", err)
	}
	return nil
}

func (s *CachedTaskService) GetCacheStats() map[string]interface{} {
	return s.cache.Stats()
}

func (s *CachedTaskService) lookup(ctx context.Context, key string, dest interface{}) bool {
	err := s.cache.Get(ctx, key, dest)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("cache read failed", "key", key, "err", err)
	}
	return false
}

// storeAt writes value unless a mutation has run since gen was read. A
// mutation that lands during the write evicts the key again.
func (s *CachedTaskService) storeAt(ctx context.Context, gen uint64, key string, value interface{}, ttl time.Duration) {
	if s.generation.Load() != gen {
		return
	}
	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		s.logger.Warn("cache write failed", "key", key, "err", err)
	}
	if s.generation.Load() != gen {
		if err := s.cache.Delete(ctx, key); err != nil {
			s.logger.Warn("cache invalidation failed", "key", key, "err", err)
		}
	}
}

// invalidate drops everything a change to task id can affect and returns the
// new generation.
func (s *CachedTaskService) invalidate(ctx context.Context, id int64) uint64 {
	gen := s.generation.Add(1)
	if err := s.cache.Delete(ctx, taskCacheKey(id), statsCacheKey); err != nil {
		s.logger.Warn("cache invalidation failed", "task_id", id, "err", err)
	}
	if err := s.cache.DeletePattern(ctx, listCachePrefix+"*"); err != nil {
		s.logger.Warn("cache invalidation failed", "pattern", listCachePrefix+"*", "err", err)
	}
	return gen
}
