package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/koscakluka/ema-referrals/core/llms"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient("test-key", "test-model", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
}

func TestPromptReturnsCandidateText(t *testing.T) {
	var captured requestBody
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/test-model:generateContent" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("expected api key header, got %q", got)
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Nathan Aldrin - from Aldrin Tax"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":5,"totalTokenCount":8}}`)
	})

	response, err := client.Prompt(context.Background(), "find me a tax attorney", llms.WithInstructions("be brief"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if response.Content != "Nathan Aldrin - from Aldrin Tax" {
		t.Fatalf("unexpected content %q", response.Content)
	}
	if response.FinishReason != "STOP" {
		t.Fatalf("expected STOP finish reason, got %q", response.FinishReason)
	}
	if response.Usage == nil || response.Usage.TotalTokens != 8 {
		t.Fatalf("expected usage total 8, got %+v", response.Usage)
	}
	if captured.SystemInstruction == nil || captured.SystemInstruction.Parts[0].Text != "be brief" {
		t.Fatalf("expected system instruction to be sent, got %+v", captured.SystemInstruction)
	}
	if len(captured.Contents) != 1 || captured.Contents[0].Parts[0].Text != "find me a tax attorney" {
		t.Fatalf("expected prompt as the only content, got %+v", captured.Contents)
	}
}

func TestPromptNonOKReturnsAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`)
	})

	_, err := client.Prompt(context.Background(), "hello")
	var apiErr *llms.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusForbidden || !apiErr.IsAuthError() {
		t.Fatalf("expected auth error status, got %d", apiErr.StatusCode)
	}
	if apiErr.Message != "API key not valid" {
		t.Fatalf("expected parsed message, got %q", apiErr.Message)
	}
}

func TestPromptWithoutAPIKeyFailsBeforeNetwork(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	defer server.Close()

	client := NewClient("", "", WithBaseURL(server.URL))
	if _, err := client.Prompt(context.Background(), "hello"); !errors.Is(err, llms.ErrMissingAPIKey) {
		t.Fatalf("expected missing api key error, got %v", err)
	}
	if called {
		t.Fatalf("expected no request without an api key")
	}
}

func TestPromptWithStreamYieldsFragments(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/test-model:streamGenerateContent" || r.URL.Query().Get("alt") != "sse" {
			t.Errorf("unexpected request %q", r.URL.String())
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"I found \"}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"two partners.\"}]},\"finishReason\":\"STOP\"}],\"usageMetadata\":{\"totalTokenCount\":4}}\n\n")
	})

	var fragments []string
	content, err := llms.CollectContent(context.Background(), client.PromptWithStream(context.Background(), "hello"), func(fragment string) {
		fragments = append(fragments, fragment)
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if content != "I found two partners." {
		t.Fatalf("unexpected content %q", content)
	}
	if strings.Join(fragments, "|") != "I found |two partners." {
		t.Fatalf("unexpected fragments %v", fragments)
	}
}

func TestPromptWithStreamMalformedChunkFails(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"ok\"}]}}]}\n\n")
		fmt.Fprint(w, "data: {not json\n\n")
	})

	_, err := llms.CollectContent(context.Background(), client.PromptWithStream(context.Background(), "hello"), nil)
	if err == nil {
		t.Fatalf("expected malformed chunk to fail the stream")
	}
}

func TestToRequestBodyMapsHistoryRoles(t *testing.T) {
	body := toRequestBody("next", llms.PromptOptions{History: []llms.Message{
		{Role: llms.MessageRoleUser, Content: "first"},
		{Role: llms.MessageRoleAssistant, Content: "answer"},
	}})

	if len(body.Contents) != 3 {
		t.Fatalf("expected three contents, got %d", len(body.Contents))
	}
	if body.Contents[1].Role != "model" {
		t.Fatalf("expected assistant mapped to model, got %q", body.Contents[1].Role)
	}
	if body.GenerationConfig != nil {
		t.Fatalf("expected no generation config without overrides")
	}
}
