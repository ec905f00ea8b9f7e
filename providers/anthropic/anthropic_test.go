package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pipelines "github.com/neuromechanist/openwebui-piplines"
)

func TestProviderSynthesize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("Expected /messages, got %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("Expected x-api-key test-key, got %s", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("Expected anthropic-version 2023-06-01, got %s", r.Header.Get("anthropic-version"))
		}

		var req messagesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		if req.Model != "claude-3-5-sonnet-20241022" {
			t.Errorf("Expected default model, got %s", req.Model)
		}
		if req.System != "sys" {
			t.Errorf("Expected system field 'sys', got %q", req.System)
		}
		if req.MaxTokens != 4096 || req.Temperature != 0.7 {
			t.Errorf("Unexpected sampling: max_tokens=%d temperature=%f", req.MaxTokens, req.Temperature)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" || req.Messages[0].Content != "prompt" {
			t.Errorf("Unexpected messages: %v", req.Messages)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"content": [{"type": "text", "text": "answer [1]"}],
			"usage": {"input_tokens": 12, "output_tokens": 3}
		}`))
	}))
	defer server.Close()

	provider := New(Config{APIKey: "test-key", BaseURL: server.URL})

	resp, err := provider.Synthesize(context.Background(), "sys", "prompt")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if resp.Content != "answer [1]" {
		t.Errorf("Expected 'answer [1]', got '%s'", resp.Content)
	}
	if resp.Usage.Total != 15 {
		t.Errorf("Expected 15 total tokens, got %d", resp.Usage.Total)
	}
}

func TestProviderReadsHeaderSourcePerCall(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("x-api-key"))
		w.Write([]byte(`{"content": [{"type": "text", "text": "ok"}]}`))
	}))
	defer server.Close()

	headers := http.Header{"X-Api-Key": {"first"}}
	provider := New(Config{Headers: pipelines.StaticHeaders(headers), BaseURL: server.URL})

	if _, err := provider.Synthesize(context.Background(), "", "p"); err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	headers.Set("X-Api-Key", "second")
	if _, err := provider.Synthesize(context.Background(), "", "p"); err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	if len(seen) != 2 || seen[0] != "first" || seen[1] != "second" {
		t.Errorf("Expected keys [first second], got %v", seen)
	}
}

func TestProviderErrorHandling(t *testing.T) {
	tests := []struct {
		name         string
		statusCode   int
		responseBody string
		kind         pipelines.ErrorKind
		contains     []string
	}{
		{
			name:         "Server error",
			statusCode:   http.StatusInternalServerError,
			responseBody: "boom",
			kind:         pipelines.KindUpstreamAPI,
			contains:     []string{"anthropic", "500", "boom"},
		},
		{
			name:         "Empty content",
			statusCode:   http.StatusOK,
			responseBody: `{"content": []}`,
			kind:         pipelines.KindMalformedResponse,
			contains:     []string{"content[0].text"},
		},
		{
			name:         "Missing text",
			statusCode:   http.StatusOK,
			responseBody: `{"content": [{"type": "tool_use"}]}`,
			kind:         pipelines.KindMalformedResponse,
		},
		{
			name:         "Choices shape is not accepted",
			statusCode:   http.StatusOK,
			responseBody: `{"choices": [{"message": {"content": "x"}}]}`,
			kind:         pipelines.KindMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)
				w.Write([]byte(tt.responseBody))
			}))
			defer server.Close()

			provider := New(Config{APIKey: "test-key", BaseURL: server.URL})

			_, err := provider.Synthesize(context.Background(), "sys", "test")
			if err == nil {
				t.Fatal("Expected error but got none")
			}
			if got := pipelines.KindOf(err); got != tt.kind {
				t.Errorf("Expected kind %s, got %s (%v)", tt.kind, got, err)
			}
			for _, want := range tt.contains {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("Expected error containing '%s', got '%s'", want, err.Error())
				}
			}
		})
	}
}

func TestProviderShape(t *testing.T) {
	provider := New(Config{})
	if provider.Shape() != "content[0].text" {
		t.Errorf("Unexpected shape %s", provider.Shape())
	}
	if provider.Name() != "anthropic" {
		t.Errorf("Unexpected name %s", provider.Name())
	}
}
