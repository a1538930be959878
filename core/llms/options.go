package llms

type PromptOptions struct {
	// Instructions are sent as the system prompt when the provider supports
	// one and prepended to the prompt otherwise.
	Instructions string
	// History is sent before the prompt, oldest first.
	History []Message
	// Temperature is left to the provider default when nil.
	Temperature *float64
	// MaxOutputTokens is left to the provider default when zero.
	MaxOutputTokens int
}

type PromptOption func(*PromptOptions)

func WithInstructions(instructions string) PromptOption {
	return func(o *PromptOptions) { o.Instructions = instructions }
}

func WithHistory(history ...Message) PromptOption {
	return func(o *PromptOptions) { o.History = append([]Message(nil), history...) }
}

func WithTemperature(temperature float64) PromptOption {
	return func(o *PromptOptions) { o.Temperature = &temperature }
}

func WithMaxOutputTokens(maxOutputTokens int) PromptOption {
	return func(o *PromptOptions) { o.MaxOutputTokens = maxOutputTokens }
}

// NewPromptOptions applies opts over defaults.
func NewPromptOptions(defaults PromptOptions, opts ...PromptOption) PromptOptions {
	options := defaults
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
