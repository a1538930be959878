package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/koscakluka/ema-referrals/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Prompt sends a single generateContent request and returns the complete
// answer.
func (c *Client) Prompt(ctx context.Context, prompt string, opts ...llms.PromptOption) (*llms.Response, error) {
	ctx, span := tracer.Start(ctx, "prompt llm")
	defer span.End()
	span.SetAttributes(attribute.String("request.model", c.model))

	response, err := c.prompt(ctx, prompt, llms.NewPromptOptions(c.defaults, opts...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if response.Usage != nil {
		span.SetAttributes(attribute.Int("usage.input", response.Usage.InputTokens))
		span.SetAttributes(attribute.Int("usage.output", response.Usage.OutputTokens))
		span.SetAttributes(attribute.Int("usage.total", response.Usage.TotalTokens))
	}
	return response, nil
}

func (c *Client) prompt(ctx context.Context, prompt string, options llms.PromptOptions) (*llms.Response, error) {
	req, err := c.newRequest(ctx, "generateContent", prompt, options, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp)
	}

	var body responseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}
	if body.Error != nil && body.Error.Message != "" {
		return nil, &llms.APIError{StatusCode: body.Error.Code, Message: body.Error.Message, Provider: provider}
	}

	text := body.text()
	if text == "" {
		return nil, llms.ErrEmptyResponse
	}

	response := &llms.Response{Content: text, Usage: body.usage()}
	if reason := body.finishReason(); reason != nil {
		response.FinishReason = *reason
	}
	return response, nil
}

func (c *Client) newRequest(ctx context.Context, method string, prompt string, options llms.PromptOptions, query url.Values) (*http.Request, error) {
	if c.apiKey == "" {
		return nil, llms.ErrMissingAPIKey
	}

	requestBodyBytes, err := json.Marshal(toRequestBody(prompt, options))
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:%s", c.baseURL, c.model, method)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(requestBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	return req, nil
}
