package repositories

import (
	"context"
	"errors"
	"fmt"

	"task-manager/api/internal/models"
	"task-manager/api/internal/query"

	"gorm.io/gorm"
)

// ErrTaskNotFound is returned when a task does not exist or is soft-deleted.
var ErrTaskNotFound = errors.New("task not found")

// TaskRepository is the persistence contract the service layer depends on.
// Every operation except Insert fails with ErrTaskNotFound for missing or
// soft-deleted rows.
type TaskRepository interface {
	ListActive(ctx context.Context, params query.Params) ([]models.Task, error)
	GetActive(ctx context.Context, id int64) (models.Task, error)
	Insert(ctx context.Context, in models.TaskCreate) (models.Task, error)
	Replace(ctx context.Context, id int64, in models.TaskCreate) (models.Task, error)
	PatchStatus(ctx context.Context, id int64, status models.Status) (models.Task, error)
	SoftDelete(ctx context.Context, id int64) error
}

type GormTaskRepository struct {
	db    *gorm.DB
	clock *Clock
}

func NewGormTaskRepository(db *gorm.DB, clock *Clock) *GormTaskRepository {
	if clock == nil {
		clock = NewClock(nil)
	}
	return &GormTaskRepository{db: db, clock: clock}
}

func (r *GormTaskRepository) active(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Task{}).Where("is_deleted = ?", false)
}

// ListActive pushes the filters into SQL and orders rows by id, then sorts in
// memory so ordering never depends on the store's collation.
func (r *GormTaskRepository) ListActive(ctx context.Context, params query.Params) ([]models.Task, error) {
	tx := r.active(ctx)
	if params.Status != nil {
		tx = tx.Where("status = ?", *params.Status)
	}
	if params.Priority != nil {
		tx = tx.Where("priority = ?", *params.Priority)
	}
	if params.Category != "" {
		tx = tx.Where("category = ?", params.Category)
	}

	var tasks []models.Task
	if err := tx.Order("id ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	query.Sort(tasks, params.SortBy)
	return tasks, nil
}

func (r *GormTaskRepository) GetActive(ctx context.Context, id int64) (models.Task, error) {
	var task models.Task
	err := r.active(ctx).Where("id = ?", id).First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Task{}, ErrTaskNotFound
		}
		return models.Task{}, fmt.Errorf("failed to get task %d: %w", id, err)
	}
	return task, nil
}

func (r *GormTaskRepository) Insert(ctx context.Context, in models.TaskCreate) (models.Task, error) {
	now := r.clock.Now()
	task := models.Task{
		Title:       in.Title,
		Description: in.Description,
		DueDate:     in.DueDate,
		Priority:    in.Priority,
		Status:      in.Status,
		Category:    in.Category,
		IsDeleted:   false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := r.db.WithContext(ctx).Create(&task).Error; err != nil {
		return models.Task{}, fmt.Errorf("failed to create task: %w", err)
	}
	return task, nil
}

func (r *GormTaskRepository) Replace(ctx context.Context, id int64, in models.TaskCreate) (models.Task, error) {
	err := r.update(ctx, id, map[string]interface{}{
		"title":       in.Title,
		"description": in.Description,
		"due_date":    in.DueDate,
		"priority":    in.Priority,
		"status":      in.Status,
		"category":    in.Category,
	})
	if err != nil {
		return models.Task{}, err
	}
	return r.GetActive(ctx, id)
}

func (r *GormTaskRepository) PatchStatus(ctx context.Context, id int64, status models.Status) (models.Task, error) {
	if err := r.update(ctx, id, map[string]interface{}{"status": status}); err != nil {
		return models.Task{}, err
	}
	return r.GetActive(ctx, id)
}

func (r *GormTaskRepository) SoftDelete(ctx context.Context, id int64) error {
	return r.update(ctx, id, map[string]interface{}{"is_deleted": true})
}

// update is a single conditional UPDATE; the store serializes concurrent
// writers to the same row and the last one wins.
func (r *GormTaskRepository) update(ctx context.Context, id int64, fields map[string]interface{}) error {
	fields["updated_at"] = r.clock.Now()

	result := r.active(ctx).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("failed to update task %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}
