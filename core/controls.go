package orchestration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/koscakluka/ema-referrals/core/conversations"
	"github.com/koscakluka/ema-referrals/core/events"
	"github.com/koscakluka/ema-referrals/core/speechtotext"
	"github.com/koscakluka/ema-referrals/core/texttospeech"
)

var ErrConversationBusy = errors.New("conversation is busy")

// StartListening begins a listening session. It is ignored unless the
// conversation is idle, and passes through idle when it is in the error
// state. On unsupported platforms it does nothing.
func (o *Orchestrator) StartListening() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	if o.state == conversations.StateError {
		o.transitionLocked(conversations.StateIdle)
	}
	if o.state != conversations.StateIdle {
		logger.Debug("ignoring start listening", "state", o.state)
		o.mu.Unlock()
		o.events.flush()
		return
	}
	if !o.IsSupported() {
		logger.Debug("ignoring start listening, speech is not supported")
		o.mu.Unlock()
		o.events.flush()
		return
	}

	o.listenSession++
	session := o.listenSession
	o.transcript.reset()
	o.transitionLocked(conversations.StateListening)
	if o.mode == conversations.ModePushToTalk && o.listenTimeout > 0 {
		o.listenTimer = time.AfterFunc(o.listenTimeout, func() {
			logger.Debug("listening timed out", "session", session)
			o.finishListening(session)
		})
	}
	language := o.language
	o.mu.Unlock()
	o.events.flush()

	// Cut anything playing outside a turn, such as a spoken error message,
	// before the microphone opens.
	o.output.Stop()

	err := o.capture.Start(o.baseContext,
		speechtotext.WithLanguage(language),
		speechtotext.WithInterimResults(true),
		speechtotext.WithContinuous(true),
		speechtotext.WithResultCallback(func(transcript string, isFinal bool) {
			o.handleTranscript(session, transcript, isFinal)
		}),
		speechtotext.WithErrorCallback(func(err error) {
			o.handleCaptureError(session, err, speechtotext.IsFatal(err))
		}),
		speechtotext.WithEndCallback(func() {
			o.finishListening(session)
		}),
	)
	if err != nil {
		o.handleCaptureError(session, fmt.Errorf("failed to start speech capture: %w", err), true)
		return
	}

	o.mu.Lock()
	superseded := o.listenSession != session
	o.mu.Unlock()
	if superseded {
		// Listening ended while capture was starting.
		o.capture.Stop()
	}
}

// StopListening ends the listening session. A non-empty transcript is
// submitted, otherwise the conversation returns to idle.
func (o *Orchestrator) StopListening() {
	o.mu.Lock()
	session := o.listenSession
	o.mu.Unlock()

	o.finishListening(session)
}

// StopConversation returns to idle from any state. It stops capture and
// speech, drops the working transcript and abandons the running turn.
// History is kept.
func (o *Orchestrator) StopConversation() {
	o.mu.Lock()
	o.leaveListeningLocked()
	o.transcript.reset()
	turn := o.turn
	o.turn = nil
	if turn != nil {
		o.events.publish(events.NewTurnCancelled(turn.id))
	}
	o.transitionLocked(conversations.StateIdle)
	o.mu.Unlock()
	o.events.flush()

	if turn != nil {
		turn.cancel()
	}
	o.capture.Stop()
	o.output.Stop()
}

// ClearHistory empties the message log without touching the current state.
func (o *Orchestrator) ClearHistory() {
	o.mu.Lock()
	o.history.clear()
	o.events.publish(events.NewHistoryCleared())
	o.mu.Unlock()
	o.events.flush()
}

// TestVoice speaks text with profile without changing the default profile.
// It is only allowed while the conversation is idle.
func (o *Orchestrator) TestVoice(ctx context.Context, text string, profile texttospeech.VoiceProfile) error {
	o.mu.Lock()
	state := o.state
	o.mu.Unlock()
	if state != conversations.StateIdle {
		return fmt.Errorf("failed to test voice while %s: %w", state, ErrConversationBusy)
	}

	return o.output.Speak(ctx, text, texttospeech.WithProfile(profile))
}

// finishListening submits or abandons the given listening session.
func (o *Orchestrator) finishListening(session uint64) {
	o.mu.Lock()
	if o.state != conversations.StateListening || session != o.listenSession {
		logger.Debug("ignoring stop listening", "state", o.state)
		o.mu.Unlock()
		return
	}

	turn := o.submitLocked()
	if turn == nil {
		o.leaveListeningLocked()
		o.transcript.reset()
		o.transitionLocked(conversations.StateIdle)
	}
	o.mu.Unlock()
	o.events.flush()

	o.capture.Stop()
	if turn != nil {
		o.startTurn(turn)
	}
}

func (o *Orchestrator) handleTranscript(session uint64, transcript string, isFinal bool) {
	o.mu.Lock()
	if o.state != conversations.StateListening || session != o.listenSession {
		o.mu.Unlock()
		return
	}

	if isFinal {
		o.transcript.commit(transcript)
	} else {
		o.transcript.setInterim(transcript)
	}
	o.events.publish(events.NewUserTranscriptUpdated(o.transcript.String(), isFinal))

	var turn *activeTurn
	if isFinal && o.mode == conversations.ModeHandsFree {
		turn = o.submitLocked()
	}
	o.mu.Unlock()
	o.events.flush()

	if turn != nil {
		o.capture.Stop()
		o.startTurn(turn)
	}
}

func (o *Orchestrator) handleCaptureError(session uint64, err error, fatal bool) {
	o.mu.Lock()
	if o.state != conversations.StateListening || session != o.listenSession {
		o.mu.Unlock()
		logger.Debug("dropping stale capture error", "error", err)
		return
	}

	o.events.publish(events.NewConversationError(events.ErrorSourceCapture, err, fatal))
	if fatal {
		o.leaveListeningLocked()
		o.transcript.reset()
		o.transitionLocked(conversations.StateError)
	}
	o.mu.Unlock()
	o.events.flush()

	if fatal {
		logger.Warn("speech capture failed", "error", err)
		o.capture.Stop()
	}
}

// leaveListeningLocked invalidates the listening session so late capture
// callbacks are dropped. o.mu must be held.
func (o *Orchestrator) leaveListeningLocked() {
	o.listenSession++
	if o.listenTimer != nil {
		o.listenTimer.Stop()
		o.listenTimer = nil
	}
}
