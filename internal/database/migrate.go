package database

import (
	"context"
	"fmt"
	"time"

	"task-manager/api/internal/models"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Task{}); err != nil {
		return fmt.Errorf("failed to migrate tasks: %w", err)
	}
	return nil
}

// Seed inserts the sample tasks when the table is empty. It reports how many
// rows were written.
func Seed(ctx context.Context, db *gorm.DB, now time.Time) (int, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&models.Task{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	tasks := sampleTasks(now.UTC())
	if err := db.WithContext(ctx).Create(&tasks).Error; err != nil {
		return 0, fmt.Errorf("failed to seed tasks: %w", err)
	}
	return len(tasks), nil
}

func sampleTasks(now time.Time) []models.Task {
	days := func(n int) time.Time { return now.AddDate(0, 0, n) }
	str := func(s string) *string { return &s }
	due := func(n int) *time.Time { t := days(n); return &t }

	return []models.Task{
		{
			Title:       "Setup project repository",
			Description: str("Initialize Git repository and create basic project structure"),
			Priority:    models.PriorityHigh,
			Status:      models.StatusDone,
			Category:    str("DevOps"),
			DueDate:     due(-1),
			CreatedAt:   days(-5),
			UpdatedAt:   days(-1),
		},
		{
			Title:       "Design database schema",
			Description: str("Create ERD for the task management system"),
			Priority:    models.PriorityHigh,
			Status:      models.StatusInProgress,
			Category:    str("Backend"),
			DueDate:     due(2),
			CreatedAt:   days(-4),
			UpdatedAt:   now,
		},
		{
			Title:       "Implement API endpoints",
			Description: str("Create RESTful endpoints for CRUD operations"),
			Priority:    models.PriorityHigh,
			Status:      models.StatusTodo,
			Category:    str("Backend"),
			DueDate:     due(5),
			CreatedAt:   days(-3),
			UpdatedAt:   days(-3),
		},
	}
}
