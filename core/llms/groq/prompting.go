package groq

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/koscakluka/ema-referrals/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type completionResponseBody struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Usage *usageBody `json:"usage"`
}

func (c *Client) Prompt(ctx context.Context, prompt string, opts ...llms.PromptOption) (*llms.Response, error) {
	ctx, span := tracer.Start(ctx, "prompt llm")
	defer span.End()
	span.SetAttributes(attribute.String("request.model", c.model))

	options := llms.NewPromptOptions(c.defaults, opts...)
	body, err := c.complete(ctx, requestBody{
		Model:       c.model,
		Messages:    toMessages(options.Instructions, options.History, prompt),
		Temperature: options.Temperature,
		MaxTokens:   options.MaxOutputTokens,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if len(body.Choices) == 0 || body.Choices[0].Message.Content == "" {
		return nil, llms.ErrEmptyResponse
	}

	return &llms.Response{
		Content:      body.Choices[0].Message.Content,
		FinishReason: body.Choices[0].FinishReason,
		Usage:        body.Usage.toUsage(),
	}, nil
}

func (c *Client) complete(ctx context.Context, reqBody requestBody) (*completionResponseBody, error) {
	req, err := c.newRequest(ctx, reqBody)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// TODO: Retry on 429 and 503 using the retry-after header
		return nil, parseAPIError(resp)
	}

	var body completionResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("error unmarshalling response: %w", err)
	}
	return &body, nil
}
