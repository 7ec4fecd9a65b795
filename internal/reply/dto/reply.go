package dto

// SendOutreachRequest is the request body for sending an outreach email.
type SendOutreachRequest struct {
	To      string `json:"to" binding:"required,email"`
	Subject string `json:"subject" binding:"required"`
	Body    string `json:"body" binding:"required"`
}

// GenerateOutreachRequest asks the AI collaborator for an email draft.
type GenerateOutreachRequest struct {
	LeadName        string   `json:"lead_name" binding:"required"`
	LeadCompany     string   `json:"lead_company"`
	LeadEmail       string   `json:"lead_email"`
	LeadNotes       string   `json:"lead_notes"`
	Instruction     string   `json:"instruction"`
	AttachmentNames []string `json:"attachment_names"`
}
