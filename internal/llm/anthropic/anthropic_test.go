package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jkaninda/busara/internal/llm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatch(t *testing.T) {
	var gotReq apiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != messagesPath {
			t.Errorf("path = %q, want %q", r.URL.Path, messagesPath)
		}
		if r.Header.Get("X-API-Key") != "test-key" {
			t.Errorf("missing API key header")
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)

		_ = json.NewEncoder(w).Encode(apiResponse{
			Content:    []apiContentBlock{{Type: "text", Text: "bonjour"}},
			StopReason: "end_turn",
			Usage:      apiUsage{InputTokens: 10, OutputTokens: 3},
		})
	}))
	defer server.Close()

	c := NewClient("test-key", "claude-test", testLogger(), WithBaseURL(server.URL))

	handle, err := c.EnsureAgent(context.Background(), llm.AgentSpec{
		Name:         "Translator",
		Instructions: "Translate to French.",
	})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	result, err := c.Dispatch(context.Background(), handle, "hello")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !result.Success || result.Response != "bonjour" {
		t.Errorf("result = %+v, want success bonjour", result)
	}

	if gotReq.System != "Translate to French." {
		t.Errorf("system prompt = %q", gotReq.System)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Content != "hello" {
		t.Errorf("messages = %+v", gotReq.Messages)
	}
}

func TestDispatch_UnknownHandle(t *testing.T) {
	c := NewClient("k", "m", testLogger())
	if _, err := c.Dispatch(context.Background(), "ghost", "hi"); err == nil {
		t.Fatal("expected error for unknown handle")
	}
}

func TestDispatch_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient("k", "m", testLogger(), WithBaseURL(server.URL))
	handle, _ := c.EnsureAgent(context.Background(), llm.AgentSpec{Name: "A", Instructions: "i"})

	if _, err := c.Dispatch(context.Background(), handle, "hi"); err == nil {
		t.Fatal("expected transport error on non-200 response")
	}
}

func TestEnsureAgent_RequiresName(t *testing.T) {
	c := NewClient("k", "m", testLogger())
	if _, err := c.EnsureAgent(context.Background(), llm.AgentSpec{}); err == nil {
		t.Fatal("expected error for unnamed spec")
	}
}
