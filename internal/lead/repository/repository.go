package repository

import (
	"leadmail-backend/internal/lead/domain"
)

// LeadRepository defines persistence operations for leads and their call logs
type LeadRepository interface {
	Create(lead *domain.Lead) error
	FindByID(id string) (*domain.Lead, error)
	FindByUserID(userID string, status *domain.LeadStatus, limit, offset int) ([]*domain.Lead, int64, error)
	Update(lead *domain.Lead) error
	Delete(id string) error

	AddCallLog(log *domain.CallLog) error
	GetCallLogs(leadID string) ([]*domain.CallLog, error)
}
