package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/koscakluka/ema-referrals/core/llms"
)

type inputMessage struct {
	Type    string      `json:"type"`
	Role    messageRole `json:"role"`
	Content string      `json:"content"`
}

type messageRole string

const (
	messageRoleDeveloper messageRole = "developer"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"

	messageTypeMessage = "message"
)

// toInput sends instructions with the developer role, which the Responses
// API uses in place of a system prompt.
func toInput(instructions string, history []llms.Message, prompt string) []inputMessage {
	input := []inputMessage{}
	if instructions != "" {
		input = append(input, inputMessage{
			Type:    messageTypeMessage,
			Role:    messageRoleDeveloper,
			Content: instructions,
		})
	}
	for _, msg := range history {
		role := messageRoleUser
		if msg.Role == llms.MessageRoleAssistant {
			role = messageRoleAssistant
		}
		input = append(input, inputMessage{Type: messageTypeMessage, Role: role, Content: msg.Content})
	}
	return append(input, inputMessage{Type: messageTypeMessage, Role: messageRoleUser, Content: prompt})
}

type requestBody struct {
	Model           string         `json:"model"`
	Input           []inputMessage `json:"input"`
	Stream          bool           `json:"stream"`
	Temperature     *float64       `json:"temperature,omitempty"`
	MaxOutputTokens int            `json:"max_output_tokens,omitempty"`
}

// responseBody is the response object returned by a blocking call and
// carried by the response.completed stream event.
type responseBody struct {
	Status            string `json:"status"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Output []outputItem `json:"output"`
	Usage  *usageBody   `json:"usage"`
}

type outputItem struct {
	Type    string `json:"type"`
	Content []struct {
		Type    string `json:"type"`
		Text    string `json:"text"`
		Refusal string `json:"refusal"`
	} `json:"content"`
}

// text joins the output text of every message item. A refusal counts as the
// answer so the caller can still speak it.
func (r *responseBody) text() string {
	var text strings.Builder
	for _, item := range r.Output {
		if item.Type != messageTypeMessage {
			continue
		}
		for _, content := range item.Content {
			switch content.Type {
			case "output_text":
				text.WriteString(content.Text)
			case "refusal":
				text.WriteString(content.Refusal)
			}
		}
	}
	return text.String()
}

func (r *responseBody) finishReason() string {
	if r.IncompleteDetails != nil && r.IncompleteDetails.Reason != "" {
		return r.IncompleteDetails.Reason
	}
	return r.Status
}

type usageBody struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

func (u *usageBody) toUsage() *llms.Usage {
	if u == nil {
		return nil
	}
	return &llms.Usage{
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		TotalTokens:  u.TotalTokens,
	}
}

func (c *Client) newRequest(ctx context.Context, reqBody requestBody) (*http.Request, error) {
	if c.apiKey == "" {
		return nil, llms.ErrMissingAPIKey
	}

	requestBodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.organization != "" {
		req.Header.Set("OpenAI-Organization", c.organization)
	}
	if c.project != "" {
		req.Header.Set("OpenAI-Project", c.project)
	}
	requestCounter.Add(ctx, 1)
	return req, nil
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func parseAPIError(resp *http.Response) error {
	apiErr := &llms.APIError{StatusCode: resp.StatusCode, Provider: provider, Message: resp.Status}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return apiErr
	}

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		apiErr.Message = parsed.Error.Message
	} else if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
		apiErr.Message = trimmed
	}
	return apiErr
}
