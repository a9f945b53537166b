package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kailas-cloud/ragmail/internal/domain"
)

type capturedRequest struct {
	Model           string `json:"model"`
	Input           string `json:"input"`
	Instructions    string `json:"instructions"`
	MaxOutputTokens int    `json:"max_output_tokens"`
}

func responseBody(text string) map[string]any {
	return map[string]any{
		"id":         "resp_1",
		"object":     "response",
		"created_at": 1700000000,
		"status":     "completed",
		"model":      "gpt-4.1-2025-04-14",
		"output": []map[string]any{{
			"type":   "message",
			"id":     "msg_1",
			"status": "completed",
			"role":   "assistant",
			"content": []map[string]any{{
				"type":        "output_text",
				"text":        text,
				"annotations": []any{},
			}},
		}},
		"parallel_tool_calls": true,
		"tool_choice":         "auto",
		"tools":               []any{},
		"usage": map[string]any{
			"input_tokens":          120,
			"input_tokens_details":  map[string]int{"cached_tokens": 0},
			"output_tokens":         15,
			"output_tokens_details": map[string]int{"reasoning_tokens": 0},
			"total_tokens":          135,
		},
	}
}

func newServer(t *testing.T, status int, body any, got *capturedRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/responses" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got != nil {
			if err := json.NewDecoder(r.Body).Decode(got); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
}

func TestGenerate_SendsInstructionsAndInput(t *testing.T) {
	var req capturedRequest
	server := newServer(t, http.StatusOK, responseBody("You get 20 days of paid leave."), &req)
	defer server.Close()

	gen := NewGenerator(&Config{APIKey: "k", BaseURL: server.URL + "/", Model: "gpt-4.1", MaxTokens: 512})
	out, err := gen.Generate(context.Background(), "<user_query>leave?</user_query>", "You are an HR assistant.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if req.Model != "gpt-4.1" || req.Input != "<user_query>leave?</user_query>" {
		t.Errorf("request = %+v", req)
	}
	if req.Instructions != "You are an HR assistant." {
		t.Errorf("instructions = %q", req.Instructions)
	}
	if req.MaxOutputTokens != 512 {
		t.Errorf("max_output_tokens = %d, want 512", req.MaxOutputTokens)
	}
	if out.Text != "You get 20 days of paid leave." {
		t.Errorf("text = %q", out.Text)
	}
	if out.InputTokens != 120 || out.OutputTokens != 15 {
		t.Errorf("usage = %d/%d", out.InputTokens, out.OutputTokens)
	}
	if out.Model != "gpt-4.1-2025-04-14" {
		t.Errorf("model = %q", out.Model)
	}
}

func TestGenerate_EmptyOutput(t *testing.T) {
	server := newServer(t, http.StatusOK, responseBody(""), nil)
	defer server.Close()

	gen := NewGenerator(&Config{APIKey: "k", BaseURL: server.URL + "/", Model: "gpt-4.1"})
	_, err := gen.Generate(context.Background(), "q", "sys")
	if !errors.Is(err, domain.ErrGenerationService) {
		t.Fatalf("expected ErrGenerationService, got %v", err)
	}
}

func TestGenerate_APIError(t *testing.T) {
	body := map[string]any{"error": map[string]any{
		"message": "The model `gpt-x` does not exist",
		"type":    "invalid_request_error",
		"code":    "model_not_found",
	}}
	server := newServer(t, http.StatusNotFound, body, nil)
	defer server.Close()

	gen := NewGenerator(&Config{APIKey: "k", BaseURL: server.URL + "/", Model: "gpt-x"})
	_, err := gen.Generate(context.Background(), "q", "sys")
	if !errors.Is(err, domain.ErrGenerationService) {
		t.Fatalf("expected ErrGenerationService, got %v", err)
	}
}
