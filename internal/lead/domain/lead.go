package domain

import "time"

// LeadStatus represents where a lead sits in the outreach pipeline
type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusReplied   LeadStatus = "replied"
	LeadStatusQualified LeadStatus = "qualified"
	LeadStatusLost      LeadStatus = "lost"
)

// Lead represents a prospect tracked by a user
type Lead struct {
	ID        string     `json:"id" gorm:"primaryKey"`
	UserID    string     `json:"user_id" gorm:"index;not null"`
	Name      string     `json:"name" gorm:"not null"`
	Company   string     `json:"company,omitempty"`
	Email     string     `json:"email" gorm:"index"`
	Phone     string     `json:"phone,omitempty"`
	Status    LeadStatus `json:"status" gorm:"default:new"`
	Notes     string     `json:"notes,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CallLog represents one recorded call against a lead, with its AI summary
type CallLog struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	LeadID     string    `json:"lead_id" gorm:"index;not null"`
	UserID     string    `json:"user_id" gorm:"index;not null"`
	Transcript string    `json:"transcript"`
	Summary    string    `json:"summary"`
	CreatedAt  time.Time `json:"created_at"`
}
