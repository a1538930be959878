package llms

import "context"

type Stream interface {
	Chunks(context.Context) func(func(StreamChunk, error) bool)
}

type StreamChunk interface {
	FinishReason() *string
}

type StreamContentChunk interface {
	StreamChunk
	Content() string
}

type StreamUsageChunk interface {
	StreamChunk
	Usage() Usage
}

type Usage struct {
	// InputTokens represents the number of input tokens.
	InputTokens int
	// OutputTokens represents the number of output tokens.
	OutputTokens int
	// TotalTokens represents the total number of tokens used.
	TotalTokens int
}

// CollectContent drains stream and joins every content chunk. onContent, when
// set, receives each fragment in arrival order.
func CollectContent(ctx context.Context, stream Stream, onContent func(string)) (string, error) {
	var content []byte
	for chunk, err := range stream.Chunks(ctx) {
		if err != nil {
			return string(content), err
		}
		if contentChunk, ok := chunk.(StreamContentChunk); ok && contentChunk.Content() != "" {
			content = append(content, contentChunk.Content()...)
			if onContent != nil {
				onContent(contentChunk.Content())
			}
		}
	}
	return string(content), nil
}
