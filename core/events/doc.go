// Package events defines the typed conversation event contract.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - conversation.*
//   - user_input.*
//   - assistant_response.*
//   - assistant_speech.*
//   - turn_state.*
//
// Semantics used across the package:
//
//   - Updated: mutable point-in-time snapshot that can change over time.
//   - Final: terminal immutable text/state for the current turn phase.
//   - Started/Ended: lifecycle boundaries.
//
// conversation events
//
//   - StateChanged (conversation.state_changed): the state machine moved.
//   - ConversationError (conversation.error): a capture, playback or turn
//     failure was recovered from.
//   - HistoryCleared (conversation.history_cleared): history was emptied.
//
// user_input events
//
//   - UserTranscriptUpdated (user_input.transcript_updated): working
//     transcript snapshot, final segments plus the interim tail.
//   - UserMessageSubmitted (user_input.message_submitted): transcript was
//     committed to history and sent for answering.
//
// assistant_response events
//
//   - AssistantResponseUpdated (assistant_response.updated): accumulated
//     answer text so far. Successive snapshots only grow.
//   - AssistantResponseFinal (assistant_response.final): complete answer with
//     extracted referral partners.
//
// assistant_speech events
//
//   - AssistantSpeechStarted (assistant_speech.started): playback started.
//   - AssistantSpeechEnded (assistant_speech.ended): playback drained or was
//     cut short.
//
// turn_state events
//
//   - TurnCancelled (turn_state.cancelled): an in-flight turn was abandoned.
package events
