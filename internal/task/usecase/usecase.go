package usecase

import (
	"context"
	"time"

	"leadmail-backend/internal/task/domain"
	"leadmail-backend/pkg/ai"
)

// TaskUsecase defines the interface for task business logic
type TaskUsecase interface {
	// CreateTask creates a new task manually
	CreateTask(userID, title, description string, dueDate, reminderAt *string, priority string) (*domain.Task, error)

	// CreateFollowUpTask opens a task from an AI call summary or extraction
	CreateFollowUpTask(userID, title, description string, dueDate *time.Time, priority string) error

	// GetTaskByID retrieves a task by ID (with ownership check)
	GetTaskByID(userID, taskID string) (*domain.Task, error)

	// GetUserTasks retrieves all tasks for a user with optional status filter
	GetUserTasks(userID string, status *string, limit, offset int) ([]*domain.Task, int64, error)

	// UpdateTask updates an existing task
	UpdateTask(userID, taskID string, updates TaskUpdateRequest) (*domain.Task, error)

	// DeleteTask deletes a task
	DeleteTask(userID, taskID string) error

	// ExtractTasksFromText uses AI to pull action items out of free text
	ExtractTasksFromText(ctx context.Context, userID, text string) ([]*domain.Task, error)

	// SetGeneratorService sets the AI service for task extraction
	SetGeneratorService(svc ai.GeneratorService)
}

// TaskUpdateRequest represents the fields that can be updated
type TaskUpdateRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	Status      *string `json:"status,omitempty"`
	ReminderAt  *string `json:"reminder_at,omitempty"`
}
