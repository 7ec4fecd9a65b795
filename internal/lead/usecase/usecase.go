package usecase

import (
	"context"
	"time"

	"leadmail-backend/internal/lead/domain"
	leaddto "leadmail-backend/internal/lead/dto"
	"leadmail-backend/pkg/ai"
)

// LeadUsecase defines the interface for lead business logic
type LeadUsecase interface {
	CreateLead(userID string, req *leaddto.CreateLeadRequest) (*domain.Lead, error)
	GetLeadByID(userID, leadID string) (*domain.Lead, error)
	GetUserLeads(userID string, status *string, limit, offset int) ([]*domain.Lead, int64, error)
	UpdateLead(userID, leadID string, req *leaddto.UpdateLeadRequest) (*domain.Lead, error)
	DeleteLead(userID, leadID string) error

	// LogCall stores a call transcript with its AI summary. When the summary
	// flags a follow-up, a task is created through the TaskCreator.
	LogCall(ctx context.Context, userID, leadID string, req *leaddto.LogCallRequest) (*domain.CallLog, error)
	GetCallLogs(userID, leadID string) ([]*domain.CallLog, error)

	SetGeneratorService(svc ai.GeneratorService)
	SetTaskCreator(creator TaskCreator)
}

// TaskCreator lets the lead module open follow-up tasks without importing
// the task package directly.
type TaskCreator interface {
	CreateFollowUpTask(userID, title, description string, dueDate *time.Time, priority string) error
}
