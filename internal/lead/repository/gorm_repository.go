package repository

import (
	"errors"
	"time"

	"leadmail-backend/internal/lead/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// gormLeadRepository implements LeadRepository using GORM
type gormLeadRepository struct {
	db *gorm.DB
}

// NewGormLeadRepository creates a new GORM-based LeadRepository
func NewGormLeadRepository(db *gorm.DB) LeadRepository {
	return &gormLeadRepository{db: db}
}

func (r *gormLeadRepository) Create(lead *domain.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	if lead.Status == "" {
		lead.Status = domain.LeadStatusNew
	}
	lead.CreatedAt = time.Now()
	lead.UpdatedAt = time.Now()
	return r.db.Create(lead).Error
}

func (r *gormLeadRepository) FindByID(id string) (*domain.Lead, error) {
	var lead domain.Lead
	err := r.db.Where("id = ?", id).First(&lead).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &lead, nil
}

func (r *gormLeadRepository) FindByUserID(userID string, status *domain.LeadStatus, limit, offset int) ([]*domain.Lead, int64, error) {
	var leads []*domain.Lead
	var total int64

	query := r.db.Model(&domain.Lead{}).Where("user_id = ?", userID)

	if status != nil {
		query = query.Where("status = ?", *status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("updated_at DESC").
		Limit(limit).Offset(offset).Find(&leads).Error

	return leads, total, err
}

func (r *gormLeadRepository) Update(lead *domain.Lead) error {
	lead.UpdatedAt = time.Now()
	return r.db.Save(lead).Error
}

func (r *gormLeadRepository) Delete(id string) error {
	return r.db.Delete(&domain.Lead{}, "id = ?", id).Error
}

func (r *gormLeadRepository) AddCallLog(log *domain.CallLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	log.CreatedAt = time.Now()
	return r.db.Create(log).Error
}

func (r *gormLeadRepository) GetCallLogs(leadID string) ([]*domain.CallLog, error) {
	var logs []*domain.CallLog
	err := r.db.Where("lead_id = ?", leadID).Order("created_at DESC").Find(&logs).Error
	return logs, err
}
