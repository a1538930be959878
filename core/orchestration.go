package orchestration

import (
	"context"
	"sync"
	"time"

	"github.com/koscakluka/ema-referrals/core/conversations"
	"github.com/koscakluka/ema-referrals/core/referrals"
	"github.com/koscakluka/ema-referrals/core/texttospeech"
)

// Orchestrator runs one voice conversation: it listens, submits the
// transcript to the query service, speaks the answer and keeps the history.
//
// All methods are safe for concurrent use. Calls that do not match a valid
// transition from the current state are ignored.
type Orchestrator struct {
	mu sync.Mutex

	state      conversations.State
	mode       conversations.Mode
	language   string
	history    conversation
	transcript workingTranscript

	// listenSession identifies the active listening session. Capture
	// callbacks carrying any other value are stale.
	listenSession uint64
	listenTimer   *time.Timer
	turn          *activeTurn
	closed        bool

	capture speechCapture
	output  speechOutput
	query   QueryService

	queryTimeout       time.Duration
	speechTimeout      time.Duration
	listenTimeout      time.Duration
	spokenErrorMessage string

	events      eventBus
	baseContext context.Context
	stopHook    chan struct{}
	closeOnce   sync.Once
	workers     sync.WaitGroup
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		state:         conversations.StateIdle,
		mode:          conversations.ModePushToTalk,
		query:         referrals.NewService(),
		queryTimeout:  DefaultQueryTimeout,
		speechTimeout: DefaultSpeechTimeout,
		listenTimeout: DefaultListenTimeout,
		baseContext:   context.Background(),
	}

	for _, opt := range opts {
		opt(o)
	}

	o.stopHook = withContextCancelHook(o.baseContext, o.StopConversation)
	return o
}

// Close stops the conversation and waits for background turns to settle.
// The orchestrator ignores every call afterwards.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.StopConversation()

		o.mu.Lock()
		o.closed = true
		o.mu.Unlock()

		close(o.stopHook)
		o.workers.Wait()
	})
}

// IsSupported reports whether both speech capture and speech output are
// available.
func (o *Orchestrator) IsSupported() bool {
	return o.capture.IsSupported() && o.output.IsSupported()
}

func (o *Orchestrator) State() conversations.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) Mode() conversations.Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

// SetMode switches between push-to-talk and hands-free. It takes effect on
// the next submission.
func (o *Orchestrator) SetMode(mode conversations.Mode) {
	if _, ok := conversations.ParseMode(string(mode)); !ok {
		logger.Debug("ignoring unknown conversation mode", "mode", mode)
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.mode = mode
}

// Transcript returns the working transcript of the current listening session.
func (o *Orchestrator) Transcript() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.transcript.String()
}

// History returns a copy of the messages ordered oldest to newest.
func (o *Orchestrator) History() []conversations.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.history.snapshot()
}

func (o *Orchestrator) VoiceProfile() texttospeech.VoiceProfile {
	return o.output.Profile()
}

// SetVoiceProfile changes the default profile used for answers.
func (o *Orchestrator) SetVoiceProfile(profile texttospeech.VoiceProfile) {
	o.output.SetProfile(profile)
}

func (o *Orchestrator) Voices() []texttospeech.Voice {
	return o.output.Voices()
}
