package speechtotext

// RecognitionOptions configure a single recognizer session.
type RecognitionOptions struct {
	// Language is a BCP 47 tag, empty leaves the recognizer default.
	Language       string
	InterimResults bool
	Continuous     bool
}

// RecognitionCallbacks receive the events of one recognizer session.
type RecognitionCallbacks struct {
	OnResult func(transcript string, isFinal bool)
	OnError  func(err error)
	// OnEnd fires once per session, both after Stop and after the platform
	// ended the session on its own.
	OnEnd func()
}

type StartOptions struct {
	RecognitionOptions

	ResultCallback func(transcript string, isFinal bool)
	ErrorCallback  func(err error)
	EndCallback    func()
}

type StartOption func(*StartOptions)

func WithLanguage(language string) StartOption {
	return func(o *StartOptions) { o.Language = language }
}

func WithInterimResults(interimResults bool) StartOption {
	return func(o *StartOptions) { o.InterimResults = interimResults }
}

func WithContinuous(continuous bool) StartOption {
	return func(o *StartOptions) { o.Continuous = continuous }
}

// WithResultCallback registers a callback for interim and final transcripts.
func WithResultCallback(callback func(transcript string, isFinal bool)) StartOption {
	return func(o *StartOptions) { o.ResultCallback = callback }
}

// WithErrorCallback registers a callback for recognition errors. Non-fatal
// errors do not end continuous capture.
func WithErrorCallback(callback func(err error)) StartOption {
	return func(o *StartOptions) { o.ErrorCallback = callback }
}

// WithEndCallback registers a callback for the true end of capture, one that
// is not followed by an automatic restart.
func WithEndCallback(callback func()) StartOption {
	return func(o *StartOptions) { o.EndCallback = callback }
}

func newStartOptions(opts ...StartOption) StartOptions {
	options := StartOptions{
		ResultCallback: func(string, bool) {},
		ErrorCallback:  func(error) {},
		EndCallback:    func() {},
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.ResultCallback == nil {
		options.ResultCallback = func(string, bool) {}
	}
	if options.ErrorCallback == nil {
		options.ErrorCallback = func(error) {}
	}
	if options.EndCallback == nil {
		options.EndCallback = func() {}
	}
	return options
}
