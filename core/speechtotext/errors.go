package speechtotext

import (
	"errors"
	"fmt"
)

var (
	ErrNotSupported = errors.New("speech recognition is not supported")
	ErrNotStarted   = errors.New("speech recognition is not started")
)

type ErrorCode string

const (
	ErrorNoSpeech           ErrorCode = "no-speech"
	ErrorAborted            ErrorCode = "aborted"
	ErrorAudioCapture       ErrorCode = "audio-capture"
	ErrorNetwork            ErrorCode = "network"
	ErrorNotAllowed         ErrorCode = "not-allowed"
	ErrorServiceNotAllowed  ErrorCode = "service-not-allowed"
	ErrorLanguageNotSupport ErrorCode = "language-not-supported"
)

// RecognitionError is a failure reported by a recognizer. Only fatal errors
// end continuous capture.
type RecognitionError struct {
	Code  ErrorCode
	Fatal bool
	Err   error
}

func (e *RecognitionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("speech recognition error: %s", e.Code)
	}
	return fmt.Sprintf("speech recognition error: %s: %v", e.Code, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// IsFatal reports whether err should end capture.
func IsFatal(err error) bool {
	var recognitionErr *RecognitionError
	if errors.As(err, &recognitionErr) {
		return recognitionErr.Fatal
	}
	return false
}

// NewRecognitionError classifies err under code. Permission and capture
// device problems are always fatal.
func NewRecognitionError(code ErrorCode, err error) *RecognitionError {
	fatal := false
	switch code {
	case ErrorNotAllowed, ErrorServiceNotAllowed, ErrorAudioCapture, ErrorLanguageNotSupport:
		fatal = true
	}
	return &RecognitionError{Code: code, Fatal: fatal, Err: err}
}
