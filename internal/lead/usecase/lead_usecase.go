package usecase

import (
	"context"
	"errors"
	"log"

	"leadmail-backend/internal/lead/domain"
	leaddto "leadmail-backend/internal/lead/dto"
	"leadmail-backend/internal/lead/repository"
	"leadmail-backend/pkg/ai"
	"leadmail-backend/pkg/apperrors"
)

// leadUsecase implements LeadUsecase interface
type leadUsecase struct {
	leadRepo    repository.LeadRepository
	aiService   ai.GeneratorService
	taskCreator TaskCreator
}

// NewLeadUsecase creates a new instance of leadUsecase
func NewLeadUsecase(leadRepo repository.LeadRepository) LeadUsecase {
	return &leadUsecase{
		leadRepo: leadRepo,
	}
}

func (u *leadUsecase) SetGeneratorService(svc ai.GeneratorService) {
	u.aiService = svc
}

func (u *leadUsecase) SetTaskCreator(creator TaskCreator) {
	u.taskCreator = creator
}

func (u *leadUsecase) CreateLead(userID string, req *leaddto.CreateLeadRequest) (*domain.Lead, error) {
	lead := &domain.Lead{
		UserID:  userID,
		Name:    req.Name,
		Company: req.Company,
		Email:   req.Email,
		Phone:   req.Phone,
		Notes:   req.Notes,
		Status:  domain.LeadStatusNew,
	}

	if err := u.leadRepo.Create(lead); err != nil {
		return nil, err
	}

	return lead, nil
}

func (u *leadUsecase) GetLeadByID(userID, leadID string) (*domain.Lead, error) {
	lead, err := u.leadRepo.FindByID(leadID)
	if err != nil {
		return nil, err
	}
	if lead == nil {
		return nil, errors.New("lead not found")
	}
	if lead.UserID != userID {
		return nil, errors.New("unauthorized")
	}
	return lead, nil
}

func (u *leadUsecase) GetUserLeads(userID string, status *string, limit, offset int) ([]*domain.Lead, int64, error) {
	var statusFilter *domain.LeadStatus
	if status != nil && *status != "" {
		s := domain.LeadStatus(*status)
		statusFilter = &s
	}
	return u.leadRepo.FindByUserID(userID, statusFilter, limit, offset)
}

func (u *leadUsecase) UpdateLead(userID, leadID string, req *leaddto.UpdateLeadRequest) (*domain.Lead, error) {
	lead, err := u.GetLeadByID(userID, leadID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		lead.Name = *req.Name
	}
	if req.Company != nil {
		lead.Company = *req.Company
	}
	if req.Email != nil {
		lead.Email = *req.Email
	}
	if req.Phone != nil {
		lead.Phone = *req.Phone
	}
	if req.Status != nil {
		lead.Status = domain.LeadStatus(*req.Status)
	}
	if req.Notes != nil {
		lead.Notes = *req.Notes
	}

	if err := u.leadRepo.Update(lead); err != nil {
		return nil, err
	}

	return lead, nil
}

func (u *leadUsecase) DeleteLead(userID, leadID string) error {
	lead, err := u.GetLeadByID(userID, leadID)
	if err != nil {
		return err
	}
	return u.leadRepo.Delete(lead.ID)
}

func (u *leadUsecase) LogCall(ctx context.Context, userID, leadID string, req *leaddto.LogCallRequest) (*domain.CallLog, error) {
	lead, err := u.GetLeadByID(userID, leadID)
	if err != nil {
		return nil, err
	}

	callLog := &domain.CallLog{
		LeadID:     lead.ID,
		UserID:     userID,
		Transcript: req.Transcript,
	}

	if u.aiService != nil {
		summary, err := u.aiService.SummarizeCallLog(ctx, req.Transcript)
		if err != nil {
			// Generation failure keeps the raw transcript on file
			if errors.Is(err, apperrors.ErrGenerationFailed) {
				log.Printf("[LeadUsecase] Call summary generation failed for lead %s: %v", leadID, err)
			} else {
				return nil, err
			}
		} else {
			callLog.Summary = summary.Summary
			if summary.HasTask && u.taskCreator != nil {
				if err := u.taskCreator.CreateFollowUpTask(userID, summary.TaskTitle, summary.TaskDescription, summary.TaskDueDate, string(summary.TaskPriority)); err != nil {
					log.Printf("[LeadUsecase] Failed to create follow-up task for lead %s: %v", leadID, err)
				}
			}
		}
	}

	if err := u.leadRepo.AddCallLog(callLog); err != nil {
		return nil, err
	}

	return callLog, nil
}

func (u *leadUsecase) GetCallLogs(userID, leadID string) ([]*domain.CallLog, error) {
	lead, err := u.GetLeadByID(userID, leadID)
	if err != nil {
		return nil, err
	}
	return u.leadRepo.GetCallLogs(lead.ID)
}
