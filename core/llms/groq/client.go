package groq

import (
	"net/http"
	"os"

	"github.com/koscakluka/ema-referrals/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	provider = "groq"

	DefaultURL   = "https://api.groq.com/openai/v1/chat/completions"
	DefaultModel = "llama-3.3-70b-versatile"

	endMessage  = "[DONE]"
	chunkPrefix = "data:"
)

type Client struct {
	apiKey string
	model  string
	url    string

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

func WithDefaultPromptOptions(opts ...llms.PromptOption) ClientOption {
	return func(c *Client) { c.defaults = llms.NewPromptOptions(c.defaults, opts...) }
}

// NewClient creates a Groq chat completions client. An empty apiKey falls
// back to GROQ_API_KEY.
func NewClient(apiKey string, model string, opts ...ClientOption) *Client {
	if apiKey == "" {
		apiKey = os.Getenv("GROQ_API_KEY")
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
