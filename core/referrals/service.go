package referrals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/koscakluka/ema-referrals/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultInstructions is the fixed prefix sent ahead of every transcript.
const DefaultInstructions = "You are a referral assistant for financial-services professionals. " +
	"Answer the request below with referral partner suggestions. " +
	"List each partner from the user's network on its own line as \"<Name> - from <Company>\". " +
	"When you suggest someone outside the network, introduce them with \"I also found <Name>\". " +
	"Keep the answer short enough to be read aloud."

const defaultExtractionTimeout = 5 * time.Second

var (
	ErrEmptyQuery      = errors.New("query is empty")
	ErrNoModel         = errors.New("no model configured")
	ErrIncompleteQuery = errors.New("query was not answered")
)

// Model answers a prompt in one blocking call.
type Model interface {
	Prompt(ctx context.Context, prompt string, opts ...llms.PromptOption) (*llms.Response, error)
}

// StreamingModel can also stream its answer.
type StreamingModel interface {
	Model
	PromptWithStream(ctx context.Context, prompt string, opts ...llms.PromptOption) llms.Stream
}

type keyedModel interface {
	HasAPIKey() bool
}

type Service struct {
	model        Model
	extractor    Extractor
	instructions string
	timeout      time.Duration
}

type Option func(*Service)

func WithModel(model Model) Option {
	return func(s *Service) { s.model = model }
}

func WithExtractor(extractor Extractor) Option {
	return func(s *Service) { s.extractor = extractor }
}

func WithInstructions(instructions string) Option {
	return func(s *Service) { s.instructions = instructions }
}

// WithTimeout bounds a single model call. Zero leaves the call bounded only
// by the caller's context.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Service) { s.timeout = timeout }
}

func NewService(opts ...Option) *Service {
	s := &Service{instructions: DefaultInstructions}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsModelAvailable reports whether queries can reach a remote model at all.
func (s *Service) IsModelAvailable() bool {
	if s == nil || s.model == nil {
		return false
	}
	if keyed, ok := s.model.(keyedModel); ok {
		return keyed.HasAPIKey()
	}
	return true
}

// Ask answers query and never fails. When the model streams and onPartial is
// set, onPartial receives the full answer text accumulated so far after each
// fragment. Any model failure is answered by [Fallback] instead, which is
// never reported through onPartial.
func (s *Service) Ask(ctx context.Context, query string, onPartial func(text string)) Result {
	ctx, span := tracer.Start(ctx, "ask referral query")
	defer span.End()

	result, err := s.ask(ctx, query, onPartial)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WarnContext(ctx, "referral query answered by fallback", "error", err)
		result = Fallback(query)
	}

	span.SetAttributes(
		attribute.String("response.origin", string(result.Origin)),
		attribute.Int("response.network_partners", len(result.Data.NetworkPartners)),
		attribute.Int("response.external_partners", len(result.Data.ExternalPartners)),
	)
	return result
}

func (s *Service) ask(ctx context.Context, query string, onPartial func(text string)) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, ErrEmptyQuery
	}
	if s == nil || s.model == nil {
		return Result{}, ErrNoModel
	}
	if !s.IsModelAvailable() {
		return Result{}, llms.ErrMissingAPIKey
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	prompt := query
	if s.instructions != "" {
		prompt = s.instructions + "\n\n" + query
	}

	var (
		text string
		err  error
	)
	if streamingModel, ok := s.model.(StreamingModel); ok && onPartial != nil {
		text, err = s.askStreaming(ctx, streamingModel, prompt, onPartial)
	} else {
		text, err = s.askBlocking(ctx, prompt)
	}
	if err != nil {
		return Result{}, err
	}
	if ctx.Err() != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrIncompleteQuery, ctx.Err())
	}

	return Result{Text: text, Data: s.extract(ctx, text), Origin: OriginModel}, nil
}

func (s *Service) askBlocking(ctx context.Context, prompt string) (string, error) {
	response, err := s.model.Prompt(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to prompt model: %w", err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", llms.ErrEmptyResponse
	}
	return response.Content, nil
}

func (s *Service) askStreaming(ctx context.Context, model StreamingModel, prompt string, onPartial func(string)) (string, error) {
	var accumulated strings.Builder
	_, err := llms.CollectContent(ctx, model.PromptWithStream(ctx, prompt), func(fragment string) {
		accumulated.WriteString(fragment)
		onPartial(accumulated.String())
	})
	if err != nil {
		return "", fmt.Errorf("failed to stream model answer: %w", err)
	}
	if strings.TrimSpace(accumulated.String()) == "" {
		return "", llms.ErrEmptyResponse
	}
	return accumulated.String(), nil
}

func (s *Service) extract(ctx context.Context, text string) *Data {
	data := Extract(text)
	if !data.IsEmpty() || s.extractor == nil {
		return data
	}

	ctx, cancel := context.WithTimeout(ctx, defaultExtractionTimeout)
	defer cancel()
	extracted, err := s.extractor.Extract(ctx, text)
	if err != nil {
		logger.DebugContext(ctx, "secondary extraction failed", "error", err)
		return data
	}
	if extracted == nil {
		return data
	}
	if extracted.NetworkPartners == nil {
		extracted.NetworkPartners = []Partner{}
	}
	if extracted.ExternalPartners == nil {
		extracted.ExternalPartners = []Partner{}
	}
	return extracted
}
