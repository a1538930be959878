package orchestration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-referrals/core/conversations"
	"github.com/koscakluka/ema-referrals/core/referrals"
	"github.com/koscakluka/ema-referrals/core/speechtotext"
	"github.com/koscakluka/ema-referrals/core/texttospeech"
)

type stubCapture struct {
	mu          sync.Mutex
	unsupported bool
	startErr    error
	options     speechtotext.StartOptions
	starts      int
	stops       int
}

func (c *stubCapture) Start(_ context.Context, opts ...speechtotext.StartOption) error {
	options := speechtotext.StartOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.options = options
	c.starts++
	return c.startErr
}

func (c *stubCapture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	return nil
}

func (c *stubCapture) IsSupported() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.unsupported
}

func (c *stubCapture) session() speechtotext.StartOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.options
}

func (c *stubCapture) result(transcript string, isFinal bool) {
	c.session().ResultCallback(transcript, isFinal)
}

func (c *stubCapture) fail(err error) {
	c.session().ErrorCallback(err)
}

func (c *stubCapture) end() {
	c.session().EndCallback()
}

func (c *stubCapture) startCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts
}

type stubOutput struct {
	mu          sync.Mutex
	unsupported bool
	spoken      []string
	stops       int
	profile     texttospeech.VoiceProfile
	speakFn     func(ctx context.Context, text string) error
	onStop      func()
}

func (s *stubOutput) Speak(ctx context.Context, text string, opts ...texttospeech.SpeakOption) error {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	speakFn := s.speakFn
	s.mu.Unlock()

	if speakFn != nil {
		return speakFn(ctx, text)
	}
	return nil
}

func (s *stubOutput) Stop() {
	s.mu.Lock()
	s.stops++
	onStop := s.onStop
	s.mu.Unlock()

	if onStop != nil {
		onStop()
	}
}

func (s *stubOutput) IsSupported() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.unsupported
}

func (s *stubOutput) Profile() texttospeech.VoiceProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

func (s *stubOutput) SetProfile(profile texttospeech.VoiceProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = profile
}

func (s *stubOutput) Voices() []texttospeech.Voice {
	return []texttospeech.Voice{{Name: "aura-luna-en", Locale: "en-US"}}
}

func (s *stubOutput) spokenTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

type stubQuery struct {
	askFn func(ctx context.Context, query string, onPartial func(string)) referrals.Result
}

func (q *stubQuery) Ask(ctx context.Context, query string, onPartial func(string)) referrals.Result {
	if q.askFn != nil {
		return q.askFn(ctx, query, onPartial)
	}

	answer := "answer to " + query
	onPartial(answer[:len(answer)/2])
	onPartial(answer)
	return referrals.Result{Text: answer, Origin: referrals.OriginModel}
}

// blockingQuery answers only after release is closed or ctx is done.
func blockingQuery(started chan<- string, release <-chan struct{}) *stubQuery {
	return &stubQuery{askFn: func(ctx context.Context, query string, _ func(string)) referrals.Result {
		started <- query
		select {
		case <-release:
			return referrals.Result{Text: "late answer", Origin: referrals.OriginModel}
		case <-ctx.Done():
			return referrals.Fallback(query)
		}
	}}
}

type testRig struct {
	orchestrator *Orchestrator
	capture      *stubCapture
	output       *stubOutput
	states       chan conversations.State
}

func newTestRig(t *testing.T, opts ...OrchestratorOption) *testRig {
	t.Helper()

	rig := &testRig{
		capture: &stubCapture{},
		output:  &stubOutput{},
		states:  make(chan conversations.State, 64),
	}
	opts = append([]OrchestratorOption{
		WithSpeechCapture(rig.capture),
		WithSpeechOutput(rig.output),
		WithQueryService(&stubQuery{}),
	}, opts...)

	rig.orchestrator = NewOrchestrator(opts...)
	rig.orchestrator.OnStateChange(func(_, current conversations.State) {
		rig.states <- current
	})
	t.Cleanup(rig.orchestrator.Close)
	return rig
}

// awaitState waits until the conversation reports want, skipping any
// intermediate states.
func (r *testRig) awaitState(t *testing.T, want conversations.State) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case state := <-r.states:
			if state == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for state %s, current state %s", want, r.orchestrator.State())
		}
	}
}

func (r *testRig) drainStates() []conversations.State {
	var states []conversations.State
	for {
		select {
		case state := <-r.states:
			states = append(states, state)
		default:
			return states
		}
	}
}

func awaitSignal[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case value := <-ch:
		return value
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}
