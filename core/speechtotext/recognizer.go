package speechtotext

import "context"

// Recognizer is a platform speech recognition backend. It runs at most one
// session at a time, starting a new one replaces the previous session.
//
// Callbacks must not be invoked from within Start or Stop.
type Recognizer interface {
	Start(ctx context.Context, options RecognitionOptions, callbacks RecognitionCallbacks) error
	Stop() error
}

type capabilityProber interface {
	IsSupported() bool
}
