package models

import (
	"time"
)

// Task is the only persisted entity. Rows are never hard-deleted; IsDeleted
// hides them from every normal read.
type Task struct {
	ID          int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	Title       string     `json:"title" gorm:"size:200;not null"`
	Description *string    `json:"description" gorm:"size:1000"`
	DueDate     *time.Time `json:"dueDate" gorm:"index"`
	Priority    Priority   `json:"priority" gorm:"type:varchar(16);not null"`
	Status      Status     `json:"status" gorm:"type:varchar(16);not null;index"`
	Category    *string    `json:"category" gorm:"size:50"`
	IsDeleted   bool       `json:"isDeleted" gorm:"not null;default:false;index"`
	CreatedAt   time.Time  `json:"createdAt" gorm:"not null;autoCreateTime:false"`
	UpdatedAt   time.Time  `json:"updatedAt" gorm:"not null;autoUpdateTime:false"`
}

func (Task) TableName() string {
	return "tasks"
}

// TaskCreate is a validated, normalized set of mutable task fields. It is
// used both for inserts and for full replacement.
type TaskCreate struct {
	Title       string
	Description *string
	DueDate     *time.Time
	Priority    Priority
	Status      Status
	Category    *string
}
