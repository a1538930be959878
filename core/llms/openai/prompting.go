package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/koscakluka/ema-referrals/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

func (c *Client) Prompt(ctx context.Context, prompt string, opts ...llms.PromptOption) (*llms.Response, error) {
	ctx, span := tracer.Start(ctx, "prompt llm")
	defer span.End()
	span.SetAttributes(attribute.String("request.model", c.model))

	options := llms.NewPromptOptions(c.defaults, opts...)
	body, err := c.respond(ctx, requestBody{
		Model:           c.model,
		Input:           toInput(options.Instructions, options.History, prompt),
		Temperature:     options.Temperature,
		MaxOutputTokens: options.MaxOutputTokens,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	content := body.text()
	if content == "" {
		return nil, llms.ErrEmptyResponse
	}

	return &llms.Response{
		Content:      content,
		FinishReason: body.finishReason(),
		Usage:        body.Usage.toUsage(),
	}, nil
}

func (c *Client) respond(ctx context.Context, reqBody requestBody) (*responseBody, error) {
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
		return nil, parseAPIError(resp)
	}

	var body responseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("error unmarshalling response: %w", err)
	}
	return &body, nil
}
