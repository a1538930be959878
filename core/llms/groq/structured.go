package groq

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/koscakluka/ema-referrals/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PromptJSONSchema asks the model to answer with JSON matching the schema
// reflected from T and decodes the answer into a new T.
func PromptJSONSchema[T any](ctx context.Context, c *Client, prompt string, opts ...llms.PromptOption) (*T, error) {
	ctx, span := tracer.Start(ctx, "prompt llm structured")
	defer span.End()

	options := llms.NewPromptOptions(c.defaults, opts...)

	// TODO: Implement a custom reflector that only satisfies the subset of
	// jsonschema used by groq
	reflector := jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	outputType := reflect.TypeFor[T]()
	schema := reflector.ReflectFromType(outputType)

	reqBody := requestBody{
		Model:       c.model,
		Messages:    toMessages(options.Instructions, options.History, prompt),
		Temperature: options.Temperature,
		MaxTokens:   options.MaxOutputTokens,
		ResponseFormat: &ChatResponseFormat{
			Type: "json_schema",
			JSONSchema: &JSONSchema{
				Name:   outputType.Name(),
				Schema: *schema,
				Strict: true,
			},
		},
	}

	span.SetAttributes(attribute.String("request.model", c.model))
	schemaString, _ := schema.MarshalJSON()
	span.SetAttributes(attribute.String("request.schema", string(schemaString)))

	fail := func(err error) (*T, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	body, err := c.complete(ctx, reqBody)
	if err != nil {
		return fail(err)
	}
	if len(body.Choices) == 0 {
		return fail(llms.ErrEmptyResponse)
	}

	content := body.Choices[0].Message.Content
	split := strings.Split(content, "```")
	if len(split) > 1 {
		content = strings.TrimPrefix(strings.TrimSpace(split[1]), "json")
	}

	var output T
	if err := json.Unmarshal([]byte(content), &output); err != nil {
		return fail(fmt.Errorf("error unmarshalling response: %w", err))
	}

	return &output, nil
}

type ChatResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

type JSONSchema struct {
	// Name is the name of the chat completion response format json
	// schema.
	//
	// it is used to further identify the schema in the response.
	Name string `json:"name"`
	// Description is the description of the chat completion
	// response format json schema.
	Description string `json:"description,omitempty"`
	// Schema is the schema of the chat completion response format
	// json schema.
	Schema jsonschema.Schema `json:"schema"`
	// Strict determines whether to enforce the schema upon the
	// generated content.
	Strict bool `json:"strict"`
}
