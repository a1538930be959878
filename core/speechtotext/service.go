package speechtotext

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultRestartDelay = 100 * time.Millisecond
	DefaultMaxRestarts  = 5
)

// Service keeps speech capture alive for as long as the caller wants it.
//
// Platform recognizers end sessions on their own (silence timeouts, dropped
// sockets). In continuous mode the Service restarts them until Stop is called,
// a fatal error arrives or the restart budget runs out. Callbacks from a
// session that has been superseded are dropped.
type Service struct {
	recognizer Recognizer

	restartDelay time.Duration
	maxRestarts  int

	shouldBeListening atomic.Bool

	mu       sync.Mutex
	ctx      context.Context
	options  StartOptions
	session  uint64
	active   bool
	restarts int
}

type ServiceOption func(*Service)

// WithRestartDelay sets the pause before a spontaneously ended session is
// restarted.
func WithRestartDelay(delay time.Duration) ServiceOption {
	return func(s *Service) { s.restartDelay = delay }
}

// WithMaxRestarts bounds consecutive restarts that produced no results. A
// negative value disables the bound.
func WithMaxRestarts(maxRestarts int) ServiceOption {
	return func(s *Service) { s.maxRestarts = maxRestarts }
}

func NewService(recognizer Recognizer, opts ...ServiceOption) *Service {
	s := &Service{
		recognizer:   recognizer,
		restartDelay: DefaultRestartDelay,
		maxRestarts:  DefaultMaxRestarts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsSupported reports whether a recognizer is available on this platform.
func (s *Service) IsSupported() bool {
	if s == nil || s.recognizer == nil {
		return false
	}
	if prober, ok := s.recognizer.(capabilityProber); ok {
		return prober.IsSupported()
	}
	return true
}

// IsListening reports whether the caller currently wants capture to run.
func (s *Service) IsListening() bool {
	if s == nil {
		return false
	}
	return s.shouldBeListening.Load()
}

// Start begins capture. It is a no-op while capture is already running. When
// the platform is unavailable the failure is logged and ErrNotSupported is
// returned, the callbacks are not invoked.
func (s *Service) Start(ctx context.Context, opts ...StartOption) error {
	if !s.IsSupported() {
		logger.Warn("speech recognition is not supported, ignoring start")
		return ErrNotSupported
	}

	s.mu.Lock()
	if s.shouldBeListening.Load() {
		s.mu.Unlock()
		return nil
	}

	s.shouldBeListening.Store(true)
	s.ctx = context.WithoutCancel(ctx)
	s.options = newStartOptions(opts...)
	s.restarts = 0
	err := s.startSessionLocked()
	if err != nil {
		s.shouldBeListening.Store(false)
	}
	s.mu.Unlock()

	if err != nil {
		logger.Error("failed to start speech recognition", "error", err)
		return fmt.Errorf("failed to start speech recognition: %w", err)
	}
	return nil
}

// Stop ends capture. Results already in flight may still be delivered, and
// the end callback fires once the platform confirms the session ended.
func (s *Service) Stop() error {
	if s == nil || s.recognizer == nil {
		return nil
	}

	s.mu.Lock()
	wasListening := s.shouldBeListening.Swap(false)
	active := s.active
	onEnd := s.options.EndCallback
	s.mu.Unlock()

	if !active {
		// Between a spontaneous end and its restart nothing will report the
		// end, so report it here.
		if wasListening && onEnd != nil {
			onEnd()
		}
		return nil
	}

	if err := s.recognizer.Stop(); err != nil && !errors.Is(err, ErrNotStarted) {
		return fmt.Errorf("failed to stop speech recognition: %w", err)
	}
	return nil
}

func (s *Service) startSessionLocked() error {
	s.session++
	session := s.session
	options := s.options

	callbacks := RecognitionCallbacks{
		OnResult: func(transcript string, isFinal bool) {
			if !s.isCurrent(session) {
				return
			}
			s.mu.Lock()
			s.restarts = 0
			s.mu.Unlock()
			options.ResultCallback(transcript, isFinal)
		},
		OnError: func(err error) {
			if !s.isCurrent(session) {
				return
			}
			if IsFatal(err) {
				s.shouldBeListening.Store(false)
			}
			options.ErrorCallback(err)
		},
		OnEnd: func() { s.handleEnd(session) },
	}

	if err := s.recognizer.Start(s.ctx, options.RecognitionOptions, callbacks); err != nil {
		return err
	}
	s.active = true
	return nil
}

func (s *Service) isCurrent(session uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session == session
}

func (s *Service) handleEnd(session uint64) {
	s.mu.Lock()
	if s.session != session {
		s.mu.Unlock()
		return
	}
	s.active = false

	if s.shouldBeListening.Load() && s.options.Continuous {
		s.mu.Unlock()
		time.AfterFunc(s.restartDelay, func() { s.restart(session) })
		return
	}

	s.shouldBeListening.Store(false)
	onEnd := s.options.EndCallback
	s.mu.Unlock()
	onEnd()
}

func (s *Service) restart(session uint64) {
	s.mu.Lock()
	if s.session != session || !s.shouldBeListening.Load() {
		s.mu.Unlock()
		return
	}

	s.restarts++
	if s.maxRestarts >= 0 && s.restarts > s.maxRestarts {
		logger.Warn("speech recognition restart budget exhausted", "restarts", s.restarts-1)
		s.shouldBeListening.Store(false)
		onEnd := s.options.EndCallback
		s.mu.Unlock()
		onEnd()
		return
	}

	err := s.startSessionLocked()
	failedSession := s.session
	onError := s.options.ErrorCallback
	s.mu.Unlock()

	if err != nil {
		logger.Warn("failed to restart speech recognition", "error", err)
		if IsFatal(err) {
			s.shouldBeListening.Store(false)
			onError(err)
		}
		s.handleEnd(failedSession)
	}
}
