package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"leadmail-backend/pkg/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// completionServer replies with a fixed model output for every completion
func completionServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"subject":"s"}`, `{"subject":"s"}`},
		{"fenced", "```json\n{\"subject\":\"s\"}\n```", `{"subject":"s"}`},
		{"fenced no language", "```\n{\"subject\":\"s\"}\n```", `{"subject":"s"}`},
		{"surrounding prose", `Here you go: {"subject":"s"} hope that helps`, `{"subject":"s"}`},
		{"array", `tasks: [{"title":"t"}]`, `[{"title":"t"}]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.JSONEq(t, tc.want, string(extractJSON(tc.in)))
		})
	}
}

func TestGenerateOutreachEmail(t *testing.T) {
	srv := completionServer(t, "```json\n{\"subject\":\"Quick intro\",\"body\":\"Hi Jane\"}\n```")
	defer srv.Close()

	svc := NewOpenAIService(srv.URL, "test-key", "gpt-4o-mini")
	draft, err := svc.GenerateOutreachEmail(context.Background(), LeadContext{Name: "Jane"}, "be brief", "Sam", nil)
	require.NoError(t, err)
	assert.Equal(t, "Quick intro", draft.Subject)
	assert.Equal(t, "Hi Jane", draft.Body)
}

func TestGenerateOutreachEmailMalformedOutput(t *testing.T) {
	srv := completionServer(t, "I cannot produce JSON today")
	defer srv.Close()

	svc := NewOpenAIService(srv.URL, "test-key", "")
	_, err := svc.GenerateOutreachEmail(context.Background(), LeadContext{Name: "Jane"}, "", "Sam", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsGenerationFailed(err))
}

func TestGenerateOutreachEmailUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	svc := NewOpenAIService(srv.URL, "test-key", "")
	_, err := svc.GenerateOutreachEmail(context.Background(), LeadContext{}, "", "Sam", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsGenerationFailed(err))
}

func TestSummarizeCallLog(t *testing.T) {
	srv := completionServer(t, `{"summary":"Client wants a demo","has_task":true,"task_title":"Schedule demo","task_description":"Demo next week","task_due_date":null,"task_priority":"high"}`)
	defer srv.Close()

	svc := NewOpenAIService(srv.URL, "test-key", "")
	summary, err := svc.SummarizeCallLog(context.Background(), "call transcript")
	require.NoError(t, err)
	assert.Equal(t, "Client wants a demo", summary.Summary)
	assert.True(t, summary.HasTask)
	assert.Equal(t, "Schedule demo", summary.TaskTitle)
}

func TestExtractTasksNoneFound(t *testing.T) {
	srv := completionServer(t, `{"has_tasks":false,"tasks":[]}`)
	defer srv.Close()

	svc := NewOpenAIService(srv.URL, "test-key", "")
	tasks, err := svc.ExtractTasks(context.Background(), "nothing actionable here", nil)
	require.NoError(t, err)
	assert.Nil(t, tasks)
}

func TestExtractTasks(t *testing.T) {
	srv := completionServer(t, `{"has_tasks":true,"tasks":[{"title":"Send proposal","description":"","due_date":null,"priority":"medium"}]}`)
	defer srv.Close()

	svc := NewOpenAIService(srv.URL, "test-key", "")
	tasks, err := svc.ExtractTasks(context.Background(), "send them the proposal", []string{"Jane"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Send proposal", tasks[0].Title)
}
