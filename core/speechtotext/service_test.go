package speechtotext

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type stubRecognizer struct {
	mu          sync.Mutex
	sessions    []RecognitionCallbacks
	options     []RecognitionOptions
	stops       int
	startErr    error
	unsupported bool

	started chan struct{}
}

func newStubRecognizer() *stubRecognizer {
	return &stubRecognizer{started: make(chan struct{}, 16)}
}

func (r *stubRecognizer) Start(_ context.Context, options RecognitionOptions, callbacks RecognitionCallbacks) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.sessions = append(r.sessions, callbacks)
	r.options = append(r.options, options)
	r.started <- struct{}{}
	return nil
}

func (r *stubRecognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return nil
}

func (r *stubRecognizer) IsSupported() bool { return !r.unsupported }

func (r *stubRecognizer) session(i int) RecognitionCallbacks {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[i]
}

func (r *stubRecognizer) startCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *stubRecognizer) awaitStart(t *testing.T) {
	t.Helper()
	select {
	case <-r.started:
	case <-time.After(time.Second):
		t.Fatalf("expected recognizer session to start")
	}
}

type endRecorder struct {
	ends chan struct{}
}

func newEndRecorder() *endRecorder { return &endRecorder{ends: make(chan struct{}, 16)} }

func (r *endRecorder) callback() { r.ends <- struct{}{} }

func (r *endRecorder) await(t *testing.T) {
	t.Helper()
	select {
	case <-r.ends:
	case <-time.After(time.Second):
		t.Fatalf("expected end callback")
	}
}

func (r *endRecorder) expectNone(t *testing.T) {
	t.Helper()
	select {
	case <-r.ends:
		t.Fatalf("expected no end callback")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStartIsNoopWhileListening(t *testing.T) {
	recognizer := newStubRecognizer()
	service := NewService(recognizer)

	if err := service.Start(context.Background(), WithContinuous(true)); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	recognizer.awaitStart(t)
	if err := service.Start(context.Background()); err != nil {
		t.Fatalf("expected second start to be a no-op, got %v", err)
	}

	if got := recognizer.startCount(); got != 1 {
		t.Fatalf("expected 1 recognizer session, got %d", got)
	}
	if !service.IsListening() {
		t.Fatalf("expected service to be listening")
	}
}

func TestStartWithoutPlatformSupport(t *testing.T) {
	recognizer := newStubRecognizer()
	recognizer.unsupported = true
	service := NewService(recognizer)

	if err := service.Start(context.Background()); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}
	if got := recognizer.startCount(); got != 0 {
		t.Fatalf("expected no recognizer sessions, got %d", got)
	}
	if service.IsListening() {
		t.Fatalf("expected service not to be listening")
	}
}

func TestNilServiceIsNotSupported(t *testing.T) {
	var service *Service
	if service.IsSupported() {
		t.Fatalf("expected nil service to be unsupported")
	}
	if err := service.Stop(); err != nil {
		t.Fatalf("expected nil service stop to be a no-op, got %v", err)
	}
}

func TestStartFailureClearsListening(t *testing.T) {
	recognizer := newStubRecognizer()
	recognizer.startErr = &RecognitionError{Code: ErrorNetwork, Fatal: true}
	service := NewService(recognizer)

	err := service.Start(context.Background())
	var recognitionErr *RecognitionError
	if !errors.As(err, &recognitionErr) || recognitionErr.Code != ErrorNetwork {
		t.Fatalf("expected network recognition error, got %v", err)
	}
	if service.IsListening() {
		t.Fatalf("expected service not to be listening after failed start")
	}
}

func TestContinuousCaptureRestartsAfterSpontaneousEnd(t *testing.T) {
	recognizer := newStubRecognizer()
	ends := newEndRecorder()
	service := NewService(recognizer, WithRestartDelay(time.Millisecond))

	if err := service.Start(context.Background(),
		WithContinuous(true),
		WithLanguage("en-US"),
		WithEndCallback(ends.callback),
	); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	recognizer.awaitStart(t)

	recognizer.session(0).OnEnd()
	recognizer.awaitStart(t)
	ends.expectNone(t)

	if !service.IsListening() {
		t.Fatalf("expected service to keep listening after restart")
	}
	if got := recognizer.options[1].Language; got != "en-US" {
		t.Fatalf("expected restarted session to keep language en-US, got %q", got)
	}
}

func TestSingleShotCaptureEndsOnPlatformEnd(t *testing.T) {
	recognizer := newStubRecognizer()
	ends := newEndRecorder()
	service := NewService(recognizer, WithRestartDelay(time.Millisecond))

	if err := service.Start(context.Background(), WithEndCallback(ends.callback)); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	recognizer.awaitStart(t)

	recognizer.session(0).OnEnd()
	ends.await(t)

	if service.IsListening() {
		t.Fatalf("expected service to stop listening")
	}
	if got := recognizer.startCount(); got != 1 {
		t.Fatalf("expected no restart, got %d sessions", got)
	}
}

func TestStopEndsCaptureWithoutRestart(t *testing.T) {
	recognizer := newStubRecognizer()
	ends := newEndRecorder()
	service := NewService(recognizer, WithRestartDelay(time.Millisecond))

	if err := service.Start(context.Background(), WithContinuous(true), WithEndCallback(ends.callback)); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	recognizer.awaitStart(t)

	if err := service.Stop(); err != nil {
		t.Fatalf("expected stop to succeed, got %v", err)
	}
	if service.IsListening() {
		t.Fatalf("expected listening flag cleared before the platform ends")
	}
	recognizer.session(0).OnEnd()
	ends.await(t)
	ends.expectNone(t)

	if got := recognizer.startCount(); got != 1 {
		t.Fatalf("expected no restart after stop, got %d sessions", got)
	}
	if recognizer.stops != 1 {
		t.Fatalf("expected recognizer to be stopped once, got %d", recognizer.stops)
	}
}

func TestResultsFromSupersededSessionAreDropped(t *testing.T) {
	recognizer := newStubRecognizer()
	results := make(chan string, 16)
	service := NewService(recognizer, WithRestartDelay(time.Millisecond))

	if err := service.Start(context.Background(),
		WithContinuous(true),
		WithResultCallback(func(transcript string, _ bool) { results <- transcript }),
	); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	recognizer.awaitStart(t)

	first := recognizer.session(0)
	first.OnEnd()
	recognizer.awaitStart(t)

	first.OnResult("stale", true)
	recognizer.session(1).OnResult("fresh", true)

	select {
	case got := <-results:
		if got != "fresh" {
			t.Fatalf("expected fresh result, got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a result")
	}
	select {
	case got := <-results:
		t.Fatalf("expected no further results, got %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFatalErrorEndsContinuousCapture(t *testing.T) {
	recognizer := newStubRecognizer()
	ends := newEndRecorder()
	errs := make(chan error, 4)
	service := NewService(recognizer, WithRestartDelay(time.Millisecond))

	if err := service.Start(context.Background(),
		WithContinuous(true),
		WithEndCallback(ends.callback),
		WithErrorCallback(func(err error) { errs <- err }),
	); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	recognizer.awaitStart(t)

	session := recognizer.session(0)
	session.OnError(NewRecognitionError(ErrorNotAllowed, errors.New("denied")))
	session.OnEnd()
	ends.await(t)

	select {
	case err := <-errs:
		if !IsFatal(err) {
			t.Fatalf("expected fatal error to be forwarded, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected error callback")
	}
	if got := recognizer.startCount(); got != 1 {
		t.Fatalf("expected no restart after fatal error, got %d sessions", got)
	}
}

func TestNonFatalErrorKeepsContinuousCapture(t *testing.T) {
	recognizer := newStubRecognizer()
	service := NewService(recognizer, WithRestartDelay(time.Millisecond))

	if err := service.Start(context.Background(), WithContinuous(true)); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	recognizer.awaitStart(t)

	session := recognizer.session(0)
	session.OnError(NewRecognitionError(ErrorNoSpeech, nil))
	session.OnEnd()
	recognizer.awaitStart(t)

	if !service.IsListening() {
		t.Fatalf("expected service to keep listening after non-fatal error")
	}
}

func TestRestartBudgetEndsCapture(t *testing.T) {
	recognizer := newStubRecognizer()
	ends := newEndRecorder()
	service := NewService(recognizer, WithRestartDelay(time.Millisecond), WithMaxRestarts(2))

	if err := service.Start(context.Background(), WithContinuous(true), WithEndCallback(ends.callback)); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	recognizer.awaitStart(t)

	recognizer.session(0).OnEnd()
	recognizer.awaitStart(t)
	recognizer.session(1).OnEnd()
	recognizer.awaitStart(t)
	recognizer.session(2).OnEnd()
	ends.await(t)

	if got := recognizer.startCount(); got != 3 {
		t.Fatalf("expected 3 sessions before giving up, got %d", got)
	}
	if service.IsListening() {
		t.Fatalf("expected service to stop listening once the budget is spent")
	}
}

func TestStopBetweenSessionsReportsEnd(t *testing.T) {
	recognizer := newStubRecognizer()
	ends := newEndRecorder()
	service := NewService(recognizer, WithRestartDelay(time.Hour))

	if err := service.Start(context.Background(), WithContinuous(true), WithEndCallback(ends.callback)); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	recognizer.awaitStart(t)

	recognizer.session(0).OnEnd()
	ends.expectNone(t)

	if err := service.Stop(); err != nil {
		t.Fatalf("expected stop to succeed, got %v", err)
	}
	ends.await(t)
	if recognizer.stops != 0 {
		t.Fatalf("expected no platform stop without an active session, got %d", recognizer.stops)
	}
}
