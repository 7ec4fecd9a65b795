package dto

// CreateLeadRequest represents the request body for creating a lead
type CreateLeadRequest struct {
	Name    string `json:"name" binding:"required"`
	Company string `json:"company"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Notes   string `json:"notes"`
}

// UpdateLeadRequest represents the fields that can be updated on a lead
type UpdateLeadRequest struct {
	Name    *string `json:"name,omitempty"`
	Company *string `json:"company,omitempty"`
	Email   *string `json:"email,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Status  *string `json:"status,omitempty"`
	Notes   *string `json:"notes,omitempty"`
}

// LogCallRequest represents the request body for recording a call against a lead
type LogCallRequest struct {
	Transcript string `json:"transcript" binding:"required"`
}
