package ai

import (
	"context"
	"time"
)

// LeadContext carries the lead fields the generator personalizes against.
type LeadContext struct {
	Name    string `json:"name"`
	Company string `json:"company"`
	Email   string `json:"email"`
	Notes   string `json:"notes,omitempty"`
}

// EmailDraft is the generated outreach email.
type EmailDraft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// CallSummary is the structured result of summarizing a call-log transcript.
type CallSummary struct {
	Summary         string     `json:"summary"`
	HasTask         bool       `json:"has_task"`
	TaskTitle       string     `json:"task_title,omitempty"`
	TaskDescription string     `json:"task_description,omitempty"`
	TaskDueDate     *time.Time `json:"task_due_date,omitempty"`
	TaskPriority    string     `json:"task_priority,omitempty"`
}

// TaskExtraction is one task pulled out of free text.
type TaskExtraction struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Priority    string     `json:"priority"`
}

// GeneratorService is the interface for the AI collaborator. All methods
// return apperrors.ErrGenerationFailed when the model's structured output is
// missing or malformed; callers abandon the operation, nothing is written.
// Implement this interface to add new providers (OpenAI, Gemini, Ollama, etc.)
type GeneratorService interface {
	GenerateOutreachEmail(ctx context.Context, lead LeadContext, instruction, senderName string, attachmentNames []string) (*EmailDraft, error)
	SummarizeCallLog(ctx context.Context, transcript string) (*CallSummary, error)
	ExtractTasks(ctx context.Context, text string, recipientNames []string) ([]TaskExtraction, error)
}

// ProviderType represents the AI provider type
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
)
