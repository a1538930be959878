package gemini

import (
	"net/http"
	"os"

	"github.com/koscakluka/ema-referrals/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	provider = "gemini"

	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-2.0-flash"

	chunkPrefix = "data:"
)

type Client struct {
	apiKey  string
	model   string
	baseURL string

	httpClient *http.Client
	defaults   llms.PromptOptions
}

type ClientOption func(*Client)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.baseURL = baseURL }
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithDefaultPromptOptions sets options applied to every prompt before the
// per-call ones.
func WithDefaultPromptOptions(opts ...llms.PromptOption) ClientOption {
	return func(c *Client) { c.defaults = llms.NewPromptOptions(c.defaults, opts...) }
}

// NewClient creates a Gemini client. An empty apiKey falls back to the
// GEMINI_API_KEY environment variable; requests fail with
// [llms.ErrMissingAPIKey] when neither is set.
func NewClient(apiKey string, model string, opts ...ClientOption) *Client {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if model == "" {
		model = DefaultModel
	}

	client := &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: DefaultBaseURL,
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
