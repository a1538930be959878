package groq

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/koscakluka/ema-referrals/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func (c *Client) PromptWithStream(_ context.Context, prompt string, opts ...llms.PromptOption) llms.Stream {
	options := llms.NewPromptOptions(c.defaults, opts...)
	return &Stream{
		client: c,
		body: requestBody{
			Model:       c.model,
			Messages:    toMessages(options.Instructions, options.History, prompt),
			Stream:      true,
			Temperature: options.Temperature,
			MaxTokens:   options.MaxOutputTokens,
		},
	}
}

type Stream struct {
	client *Client
	body   requestBody
}

type streamingResponseBody struct {
	Choices []struct {
		Delta struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason,omitempty"`
	} `json:"choices"`
	XGroq *struct {
		Usage *usageBody `json:"usage"`
	} `json:"x_groq,omitempty"`
	Usage *usageBody `json:"usage"`
}

func (s *Stream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	requestToFirstTokenTime := time.Time{}
	setRequestToFirstTokenTime := func(span trace.Span) {
		if requestToFirstTokenTime.IsZero() {
			return
		}
		span.SetAttributes(attribute.Float64("response.request_to_first_token_time", time.Since(requestToFirstTokenTime).Seconds()))
		span.AddEvent("received first chunk")
		requestToFirstTokenTime = time.Time{}
	}

	return func(yield func(llms.StreamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", s.body.Model))

		fail := func(err error) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield(nil, err)
		}

		req, err := s.client.newRequest(ctx, s.body)
		if err != nil {
			fail(err)
			return
		}

		span.SetAttributes(attribute.String("request.url", req.URL.String()))
		requestToFirstTokenTime = time.Now()
		span.AddEvent("request started")
		resp, err := s.client.httpClient.Do(req)
		if err != nil {
			fail(fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
		if resp.StatusCode != http.StatusOK {
			err := parseAPIError(resp)
			logger.WarnContext(ctx, "groq stream rejected", "status", resp.StatusCode, "error", err)
			fail(err)
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			chunk := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), chunkPrefix))
			if len(chunk) == 0 {
				continue
			}
			setRequestToFirstTokenTime(span)

			if chunk == endMessage {
				break
			}

			var responseBody streamingResponseBody
			if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
				fail(fmt.Errorf("error unmarshalling JSON: %w", err))
				return
			}

			var finishReason *string
			if len(responseBody.Choices) > 0 {
				finishReason = responseBody.Choices[0].FinishReason
				if content := responseBody.Choices[0].Delta.Content; content != "" {
					if !yield(StreamContentChunk{finishReason: finishReason, content: content}, nil) {
						return
					}
				}
			}

			usage := responseBody.Usage
			if usage == nil && responseBody.XGroq != nil {
				usage = responseBody.XGroq.Usage
			}
			if usage != nil {
				span.SetAttributes(attribute.Int("usage.input", usage.PromptTokens))
				span.SetAttributes(attribute.Int("usage.output", usage.CompletionTokens))
				span.SetAttributes(attribute.Int("usage.total", usage.TotalTokens))
				span.SetAttributes(attribute.Float64("usage.queue_time", usage.QueueTime))
				span.SetAttributes(attribute.Float64("usage.total_time", usage.TotalTime))

				if !yield(StreamUsageChunk{finishReason: finishReason, usage: *usage.toUsage()}, nil) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			fail(fmt.Errorf("error reading streamed response: %w", err))
		}
	}
}

type StreamContentChunk struct {
	finishReason *string
	content      string
}

func (s StreamContentChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamContentChunk) Content() string {
	return s.content
}

type StreamUsageChunk struct {
	finishReason *string
	usage        llms.Usage
}

func (s StreamUsageChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamUsageChunk) Usage() llms.Usage {
	return s.usage
}
