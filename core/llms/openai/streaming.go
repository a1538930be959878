package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/koscakluka/ema-referrals/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrResponseFailed is returned when the stream reports a failed response
// after the request itself was accepted.
var ErrResponseFailed = errors.New("openai response failed")

func (c *Client) PromptWithStream(_ context.Context, prompt string, opts ...llms.PromptOption) llms.Stream {
	options := llms.NewPromptOptions(c.defaults, opts...)
	return &Stream{
		client: c,
		body: requestBody{
			Model:           c.model,
			Input:           toInput(options.Instructions, options.History, prompt),
			Stream:          true,
			Temperature:     options.Temperature,
			MaxOutputTokens: options.MaxOutputTokens,
		},
	}
}

type Stream struct {
	client *Client
	body   requestBody
}

type streamingEventType string

const (
	streamingEventOutputTextDelta    streamingEventType = "response.output_text.delta"
	streamingEventResponseCompleted  streamingEventType = "response.completed"
	streamingEventResponseIncomplete streamingEventType = "response.incomplete"
	streamingEventResponseFailed     streamingEventType = "response.failed"
	streamingEventError              streamingEventType = "error"
)

type streamingEvent struct {
	Type     streamingEventType `json:"type"`
	Delta    string             `json:"delta"`
	Response *responseBody      `json:"response"`
	// Set on error events only.
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *streamingEvent) err() error {
	message := e.Message
	if e.Response != nil && e.Response.Error != nil {
		message = e.Response.Error.Message
	}
	if message == "" {
		return ErrResponseFailed
	}
	return fmt.Errorf("%w: %s", ErrResponseFailed, message)
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
			logger.WarnContext(ctx, "openai stream rejected", "status", resp.StatusCode, "error", err)
			fail(err)
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			// The event name is repeated in the payload type.
			if len(line) == 0 || strings.HasPrefix(line, eventPrefix) {
				continue
			}
			chunk := strings.TrimSpace(strings.TrimPrefix(line, chunkPrefix))
			if chunk == endMessage {
				break
			}
			setRequestToFirstTokenTime(span)

			var event streamingEvent
			if err := json.Unmarshal([]byte(chunk), &event); err != nil {
				fail(fmt.Errorf("error unmarshalling JSON: %w", err))
				return
			}

			switch event.Type {
			case streamingEventOutputTextDelta:
				if event.Delta == "" {
					continue
				}
				if !yield(StreamContentChunk{content: event.Delta}, nil) {
					return
				}

			case streamingEventResponseCompleted, streamingEventResponseIncomplete:
				if event.Response == nil {
					return
				}
				finishReason := event.Response.finishReason()
				span.SetAttributes(attribute.String("response.finish_reason", finishReason))
				if usage := event.Response.Usage; usage != nil {
					span.SetAttributes(attribute.Int("usage.input", usage.InputTokens))
					span.SetAttributes(attribute.Int("usage.output", usage.OutputTokens))
					span.SetAttributes(attribute.Int("usage.total", usage.TotalTokens))
					yield(StreamUsageChunk{finishReason: &finishReason, usage: *usage.toUsage()}, nil)
				}
				return

			case streamingEventResponseFailed, streamingEventError:
				fail(event.err())
				return
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
