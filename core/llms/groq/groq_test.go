package groq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/koscakluka/ema-referrals/core/llms"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient("test-key", "test-model", WithURL(server.URL), WithHTTPClient(server.Client()))
}

func TestPromptWithStreamStopsAtDone(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body requestBody
		_ = json.NewDecoder(r.Body).Decode(&body)
		if !body.Stream {
			t.Errorf("expected streaming request")
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Jenny \"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Johansen\"},\"finish_reason\":\"stop\"}],\"x_groq\":{\"usage\":{\"total_tokens\":7}}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ignored\"}}]}\n\n")
	})

	var usage *llms.Usage
	var content string
	for chunk, err := range client.PromptWithStream(context.Background(), "hello").Chunks(context.Background()) {
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		switch c := chunk.(type) {
		case llms.StreamContentChunk:
			content += c.Content()
		case llms.StreamUsageChunk:
			u := c.Usage()
			usage = &u
		}
	}

	if content != "Jenny Johansen" {
		t.Fatalf("unexpected content %q", content)
	}
	if usage == nil || usage.TotalTokens != 7 {
		t.Fatalf("expected usage from x_groq, got %+v", usage)
	}
}

func TestPromptNonOKReturnsAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited"}}`)
	})

	_, err := client.Prompt(context.Background(), "hello")
	var apiErr *llms.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if !apiErr.IsRateLimited() || apiErr.Message != "rate limited" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

type partnerList struct {
	NetworkPartners  []string `json:"networkPartners"`
	ExternalPartners []string `json:"externalPartners"`
}

func TestPromptJSONSchemaDecodesFencedAnswer(t *testing.T) {
	var captured requestBody
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		answer := "```json\n{\"networkPartners\":[\"Nathan Aldrin\"],\"externalPartners\":[]}\n```"
		encoded, _ := json.Marshal(answer)
		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%s}}]}`, encoded)
	})

	output, err := PromptJSONSchema[partnerList](context.Background(), client, "extract")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(output.NetworkPartners) != 1 || output.NetworkPartners[0] != "Nathan Aldrin" {
		t.Fatalf("unexpected output %+v", output)
	}
	if captured.ResponseFormat == nil || captured.ResponseFormat.JSONSchema == nil {
		t.Fatalf("expected json schema response format to be sent")
	}
	if captured.ResponseFormat.JSONSchema.Name != "partnerList" {
		t.Fatalf("expected schema named after output type, got %q", captured.ResponseFormat.JSONSchema.Name)
	}
}

func TestToMessagesOrdersSystemHistoryPrompt(t *testing.T) {
	messages := toMessages("system", []llms.Message{{Role: llms.MessageRoleAssistant, Content: "earlier"}}, "now")

	if len(messages) != 3 {
		t.Fatalf("expected three messages, got %d", len(messages))
	}
	if messages[0].Role != messageRoleSystem || messages[1].Role != messageRoleAssistant || messages[2].Role != messageRoleUser {
		t.Fatalf("unexpected roles %+v", messages)
	}
}
