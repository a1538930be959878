package groq

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

type message struct {
	Role    messageRole `json:"role"`
	Content string      `json:"content"`
}

type messageRole string

const (
	messageRoleSystem    messageRole = "system"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
)

func toMessages(instructions string, history []llms.Message, prompt string) []message {
	messages := []message{}
	if instructions != "" {
		messages = append(messages, message{
			Role:    messageRoleSystem,
			Content: instructions,
		})
	}
	for _, msg := range history {
		role := messageRoleUser
		if msg.Role == llms.MessageRoleAssistant {
			role = messageRoleAssistant
		}
		messages = append(messages, message{Role: role, Content: msg.Content})
	}
	return append(messages, message{Role: messageRoleUser, Content: prompt})
}

type requestBody struct {
	Model          string              `json:"model"`
	Messages       []message           `json:"messages"`
	Stream         bool                `json:"stream"`
	Temperature    *float64            `json:"temperature,omitempty"`
	MaxTokens      int                 `json:"max_completion_tokens,omitempty"`
	ResponseFormat *ChatResponseFormat `json:"response_format,omitempty"`
}

type usageBody struct {
	QueueTime        float64 `json:"queue_time"`
	PromptTokens     int     `json:"prompt_tokens"`
	PromptTime       float64 `json:"prompt_time"`
	CompletionTokens int     `json:"completion_tokens"`
	CompletionTime   float64 `json:"completion_time"`
	TotalTokens      int     `json:"total_tokens"`
	TotalTime        float64 `json:"total_time"`
}

func (u *usageBody) toUsage() *llms.Usage {
	if u == nil {
		return nil
	}
	return &llms.Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
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
	requestCounter.Add(ctx, 1)
	return req, nil
}

func parseAPIError(resp *http.Response) error {
	apiErr := &llms.APIError{StatusCode: resp.StatusCode, Provider: provider, Message: resp.Status}
	errorBody, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return apiErr
	}

	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(errorBody, &parsed); err == nil && parsed.Error.Message != "" {
		apiErr.Message = parsed.Error.Message
	} else if trimmed := strings.TrimSpace(string(errorBody)); trimmed != "" {
		apiErr.Message = trimmed
	}
	return apiErr
}
