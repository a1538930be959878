package openai

import (
	"net/http"
	"os"

	"github.com/koscakluka/ema-referrals/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	provider = "openai"

	DefaultURL   = "https://api.openai.com/v1/responses"
	DefaultModel = "gpt-4.1-mini"

	eventPrefix = "event:"
	chunkPrefix = "data:"
	// Compatible gateways end the stream with a chat-completions style marker.
	endMessage = "[DONE]"
)

// Client talks to the OpenAI Responses API.
type Client struct {
	apiKey string
	model  string
	url    string

	organization string
	project      string

	httpClient *http.Client
	defaults   llms.PromptOptions
}

type ClientOption func(*Client)

func WithURL(url string) ClientOption {
	return func(c *Client) { c.url = url }
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithOrganization sets the OpenAI-Organization and OpenAI-Project headers.
// Empty values are not sent.
func WithOrganization(organization, project string) ClientOption {
	return func(c *Client) {
		c.organization = organization
		c.project = project
	}
}

func WithDefaultPromptOptions(opts ...llms.PromptOption) ClientOption {
	return func(c *Client) { c.defaults = llms.NewPromptOptions(c.defaults, opts...) }
}

// NewClient creates a Responses API client. An empty apiKey falls back to
// OPENAI_API_KEY.
func NewClient(apiKey string, model string, opts ...ClientOption) *Client {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if model == "" {
		model = DefaultModel
	}

	client := &Client{
		apiKey: apiKey,
		model:  model,
		url:    DefaultURL,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *Client) Model() string { return c.model }

func (c *Client) HasAPIKey() bool { return c.apiKey != "" }
