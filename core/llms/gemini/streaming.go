package gemini

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/koscakluka/ema-referrals/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PromptWithStream prepares a streamGenerateContent request. Nothing is sent
// until the returned stream is ranged over.
func (c *Client) PromptWithStream(_ context.Context, prompt string, opts ...llms.PromptOption) llms.Stream {
	return &Stream{
		client:  c,
		prompt:  prompt,
		options: llms.NewPromptOptions(c.defaults, opts...),
	}
}

type Stream struct {
	client  *Client
	prompt  string
	options llms.PromptOptions
}

func (s *Stream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", s.client.model))

		fail := func(err error) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield(nil, err)
		}

		req, err := s.client.newRequest(ctx, "streamGenerateContent", s.prompt, s.options, url.Values{"alt": {"sse"}})
		if err != nil {
			fail(err)
			return
		}

		requestStart := time.Now()
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
			logger.WarnContext(ctx, "gemini stream rejected", "status", resp.StatusCode, "error", err)
			fail(err)
			return
		}

		firstChunk := true
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, chunkPrefix) {
				continue
			}
			chunk := strings.TrimSpace(strings.TrimPrefix(line, chunkPrefix))
			if len(chunk) == 0 {
				continue
			}
			if firstChunk {
				recordFirstToken(span, requestStart)
				firstChunk = false
			}

			var body responseBody
			if err := json.Unmarshal([]byte(chunk), &body); err != nil {
				fail(fmt.Errorf("error unmarshalling JSON: %w", err))
				return
			}
			if body.Error != nil && body.Error.Message != "" {
				fail(&llms.APIError{StatusCode: body.Error.Code, Message: body.Error.Message, Provider: provider})
				return
			}

			finishReason := body.finishReason()
			if text := body.text(); text != "" {
				if !yield(StreamContentChunk{finishReason: finishReason, content: text}, nil) {
					return
				}
			}
			if usage := body.usage(); usage != nil && finishReason != nil {
				span.SetAttributes(attribute.Int("usage.total", usage.TotalTokens))
				if !yield(StreamUsageChunk{finishReason: finishReason, usage: *usage}, nil) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			fail(fmt.Errorf("error reading streamed response: %w", err))
		}
	}
}

func recordFirstToken(span trace.Span, requestStart time.Time) {
	span.SetAttributes(attribute.Float64("response.request_to_first_token_time", time.Since(requestStart).Seconds()))
	span.AddEvent("received first chunk")
}

type StreamContentChunk struct {
	finishReason *string
	content      string
}

func (s StreamContentChunk) FinishReason() *string { return s.finishReason }
func (s StreamContentChunk) Content() string       { return s.content }

type StreamUsageChunk struct {
	finishReason *string
	usage        llms.Usage
}

func (s StreamUsageChunk) FinishReason() *string { return s.finishReason }
func (s StreamUsageChunk) Usage() llms.Usage     { return s.usage }
