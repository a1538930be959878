package orchestration

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-referrals/core/conversations"
	"github.com/koscakluka/ema-referrals/core/events"
	"github.com/koscakluka/ema-referrals/core/referrals"
	"github.com/koscakluka/ema-referrals/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// activeTurn is one submitted transcript on its way to being answered and
// spoken. Completions of a turn that is no longer o.turn are ignored.
type activeTurn struct {
	id     string
	query  string
	ctx    context.Context
	cancel context.CancelFunc
}

// submitLocked commits the working transcript as a new turn and moves to
// processing. It returns nil when there is nothing to submit. o.mu must be
// held.
func (o *Orchestrator) submitLocked() *activeTurn {
	query := o.transcript.String()
	if query == "" {
		return nil
	}

	ctx, cancel := context.WithCancel(o.baseContext)
	turn := &activeTurn{
		id:     uuid.NewString(),
		query:  query,
		ctx:    ctx,
		cancel: cancel,
	}

	o.leaveListeningLocked()
	o.transcript.reset()
	o.turn = turn
	o.history.add(conversations.RoleUser, query, turn.id)
	o.events.publish(events.NewUserMessageSubmitted(turn.id, query))
	o.transitionLocked(conversations.StateProcessing)
	return turn
}

func (o *Orchestrator) startTurn(turn *activeTurn) {
	o.runWorker("turn", func(context.Context) error {
		o.runTurn(turn)
		return nil
	})
}

func (o *Orchestrator) isCurrentTurn(turn *activeTurn, state conversations.State) bool {
	return o.turn == turn && o.state == state
}

func (o *Orchestrator) runTurn(turn *activeTurn) {
	defer turn.cancel()

	ctx, span := tracer.Start(turn.ctx, "conversation turn",
		trace.WithAttributes(attribute.String("turn.id", turn.id)))
	defer span.End()

	queryCtx, cancelQuery := context.WithTimeout(ctx, o.queryTimeout)
	result := o.query.Ask(queryCtx, turn.query, func(text string) {
		o.handlePartialResponse(turn, text)
	})
	cancelQuery()
	span.SetAttributes(attribute.String("turn.origin", string(result.Origin)))

	speaking, ok := o.beginResponse(turn, result)
	if !ok {
		span.AddEvent("turn superseded before response")
		return
	}

	var speechErr error
	if speaking {
		speechCtx, cancelSpeech := context.WithTimeout(ctx, o.speechTimeout)
		speechErr = o.output.Speak(speechCtx, result.Text)
		cancelSpeech()
	}
	if speechErr != nil && !errors.Is(speechErr, texttospeech.ErrSpeechCancelled) {
		span.RecordError(speechErr)
		span.SetStatus(codes.Error, speechErr.Error())
	}

	o.finishTurn(turn, speaking, speechErr)
}

func (o *Orchestrator) handlePartialResponse(turn *activeTurn, text string) {
	o.mu.Lock()
	if !o.isCurrentTurn(turn, conversations.StateProcessing) {
		o.mu.Unlock()
		return
	}
	o.events.publish(events.NewAssistantResponseUpdated(turn.id, text))
	o.mu.Unlock()
	o.events.flush()
}

// beginResponse records the answer and moves to responding. It reports
// whether the answer will be spoken and whether the turn is still current.
func (o *Orchestrator) beginResponse(turn *activeTurn, result referrals.Result) (speaking bool, ok bool) {
	o.mu.Lock()
	if !o.isCurrentTurn(turn, conversations.StateProcessing) {
		o.mu.Unlock()
		logger.Debug("dropping stale query result", "turn", turn.id)
		return false, false
	}

	o.history.add(conversations.RoleAssistant, result.Text, turn.id)
	o.events.publish(events.NewAssistantResponseFinal(turn.id, result.Clone()))
	o.transitionLocked(conversations.StateResponding)

	speaking = o.output.IsSupported()
	if speaking {
		o.events.publish(events.NewAssistantSpeechStarted(turn.id))
	}
	o.mu.Unlock()
	o.events.flush()
	return speaking, true
}

// finishTurn returns to idle once the answer was spoken or failed to play.
// In hands-free mode a successful turn starts listening again.
func (o *Orchestrator) finishTurn(turn *activeTurn, spoke bool, speechErr error) {
	o.mu.Lock()
	if !o.isCurrentTurn(turn, conversations.StateResponding) {
		o.mu.Unlock()
		return
	}

	o.turn = nil
	if spoke {
		o.events.publish(events.NewAssistantSpeechEnded(turn.id, speechErr != nil))
	}
	if speechErr != nil {
		o.events.publish(events.NewConversationError(events.ErrorSourcePlayback, speechErr, false))
	}
	o.transitionLocked(conversations.StateIdle)
	relisten := speechErr == nil && o.mode == conversations.ModeHandsFree
	message := o.spokenErrorMessage
	o.mu.Unlock()
	o.events.flush()

	if speechErr != nil {
		logger.Warn("failed to speak answer", "turn", turn.id, "error", speechErr)
		o.output.Stop()
		if message != "" {
			o.speakErrorMessage(message)
		}
		return
	}
	if relisten {
		o.StartListening()
	}
}

// speakErrorMessage tells the user that the answer could not be played. It is
// attempted once.
func (o *Orchestrator) speakErrorMessage(message string) {
	ctx, cancel := context.WithTimeout(o.baseContext, o.speechTimeout)
	defer cancel()

	if err := o.output.Speak(ctx, message); err != nil && !errors.Is(err, texttospeech.ErrSpeechCancelled) {
		logger.Warn("failed to speak error message", "error", err)
	}
}
