package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"leadmail-backend/pkg/apperrors"
)

// OpenAIService implements GeneratorService against any OpenAI-compatible
// chat-completions endpoint.
type OpenAIService struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewOpenAIService creates a new OpenAI-backed generator
func NewOpenAIService(baseURL, apiKey, model string) *OpenAIService {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIService{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// complete runs one chat completion and returns the raw model output
func (o *OpenAIService) complete(ctx context.Context, system, prompt string, temperature float64) (string, error) {
	payload := chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: temperature,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: openai request failed: %v", apperrors.ErrGenerationFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: openai API error (%d): %s", apperrors.ErrGenerationFailed, resp.StatusCode, string(respBody))
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("%w: failed to parse response: %v", apperrors.ErrGenerationFailed, err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", apperrors.ErrGenerationFailed)
	}

	return result.Choices[0].Message.Content, nil
}

// GenerateOutreachEmail implements GeneratorService
func (o *OpenAIService) GenerateOutreachEmail(ctx context.Context, lead LeadContext, instruction, senderName string, attachmentNames []string) (*EmailDraft, error) {
	attachments := "none"
	if len(attachmentNames) > 0 {
		attachments = strings.Join(attachmentNames, ", ")
	}

	prompt := fmt.Sprintf(`Write a short, personal B2B acquisition email.

LEAD:
- Name: %s
- Company: %s
- Email: %s
- Notes: %s

INSTRUCTION FROM SENDER: %s
SENDER NAME: %s
ATTACHMENTS MENTIONED: %s

Respond with ONLY a JSON object: {"subject": "...", "body": "..."}
The body is plain text, no HTML, signed with the sender name.`,
		lead.Name, lead.Company, lead.Email, lead.Notes, instruction, senderName, attachments)

	raw, err := o.complete(ctx, "You are an assistant that drafts concise business outreach emails.", prompt, 0.7)
	if err != nil {
		return nil, err
	}

	var draft EmailDraft
	if err := json.Unmarshal(extractJSON(raw), &draft); err != nil {
		return nil, fmt.Errorf("%w: malformed email draft: %v", apperrors.ErrGenerationFailed, err)
	}
	if draft.Subject == "" || draft.Body == "" {
		return nil, fmt.Errorf("%w: draft missing subject or body", apperrors.ErrGenerationFailed)
	}

	return &draft, nil
}

// SummarizeCallLog implements GeneratorService
func (o *OpenAIService) SummarizeCallLog(ctx context.Context, transcript string) (*CallSummary, error) {
	currentDate := time.Now().Format("2006-01-02")

	prompt := fmt.Sprintf(`Today is %s. Summarize the following sales call transcript and
decide whether it contains a concrete follow-up task.

Respond with ONLY a JSON object:
{"summary": "...", "has_task": true|false, "task_title": "...", "task_description": "...",
 "task_due_date": "2006-01-02T15:04:05Z or null", "task_priority": "high|medium|low"}

TRANSCRIPT:
%s`, currentDate, transcript)

	raw, err := o.complete(ctx, "You are an assistant that summarizes sales calls.", prompt, 0.3)
	if err != nil {
		return nil, err
	}

	var summary CallSummary
	if err := json.Unmarshal(extractJSON(raw), &summary); err != nil {
		return nil, fmt.Errorf("%w: malformed call summary: %v", apperrors.ErrGenerationFailed, err)
	}
	if summary.Summary == "" {
		return nil, fmt.Errorf("%w: call summary missing summary text", apperrors.ErrGenerationFailed)
	}

	return &summary, nil
}

// ExtractTasks implements GeneratorService
func (o *OpenAIService) ExtractTasks(ctx context.Context, text string, recipientNames []string) ([]TaskExtraction, error) {
	currentDate := time.Now().Format("2006-01-02")

	prompt := fmt.Sprintf(`Today is %s. Extract actionable tasks from the text below.
Recipients in scope: %s

Respond with ONLY a JSON object:
{"has_tasks": true|false, "tasks": [{"title": "...", "description": "...",
 "due_date": "2006-01-02T15:04:05Z or null", "priority": "high|medium|low"}]}

TEXT:
%s`, currentDate, strings.Join(recipientNames, ", "), text)

	raw, err := o.complete(ctx, "You are an assistant that extracts tasks from notes.", prompt, 0.3)
	if err != nil {
		return nil, err
	}

	var result struct {
		HasTasks bool             `json:"has_tasks"`
		Tasks    []TaskExtraction `json:"tasks"`
	}
	if err := json.Unmarshal(extractJSON(raw), &result); err != nil {
		return nil, fmt.Errorf("%w: malformed task extraction: %v", apperrors.ErrGenerationFailed, err)
	}
	if !result.HasTasks {
		return nil, nil
	}

	return result.Tasks, nil
}

// extractJSON strips markdown fences and surrounding prose that models wrap
// around their JSON output.
func extractJSON(raw string) []byte {
	s := strings.TrimSpace(raw)
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return []byte(s)
	}
	var end int
	if s[start] == '{' {
		end = strings.LastIndex(s, "}")
	} else {
		end = strings.LastIndex(s, "]")
	}
	if end <= start {
		return []byte(s)
	}
	return []byte(s[start : end+1])
}
