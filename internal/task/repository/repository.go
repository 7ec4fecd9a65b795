package repository

import (
	"time"

	"leadmail-backend/internal/task/domain"
)

// TaskRepository defines the interface for task data access
type TaskRepository interface {
	Create(task *domain.Task) error
	FindByID(id string) (*domain.Task, error)
	FindByUserID(userID string, status *domain.TaskStatus, limit, offset int) ([]*domain.Task, int64, error)
	Update(task *domain.Task) error
	Delete(id string) error

	// FindPendingReminders returns tasks where reminder_at <= now,
	// reminder_sent is false and the task is not completed
	FindPendingReminders(now time.Time) ([]*domain.Task, error)
	MarkReminderSent(id string) error
}
