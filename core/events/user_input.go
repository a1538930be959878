package events

const (
	// KindUserTranscriptUpdated identifies working transcript snapshots.
	KindUserTranscriptUpdated Kind = "user_input.transcript_updated"
	// KindUserMessageSubmitted identifies transcripts committed to history.
	KindUserMessageSubmitted Kind = "user_input.message_submitted"
)

// UserTranscriptUpdated carries the working transcript snapshot.
type UserTranscriptUpdated struct {
	Base
	Transcript string
	// IsFinal is set when the latest recognized segment was final.
	IsFinal bool
}

// NewUserTranscriptUpdated creates a transcript snapshot event.
func NewUserTranscriptUpdated(transcript string, isFinal bool) UserTranscriptUpdated {
	return UserTranscriptUpdated{Base: NewBase(KindUserTranscriptUpdated), Transcript: transcript, IsFinal: isFinal}
}

// UserMessageSubmitted carries the transcript sent for answering.
type UserMessageSubmitted struct {
	Base
	TurnID  string
	Message string
}

// NewUserMessageSubmitted creates a submitted message event.
func NewUserMessageSubmitted(turnID, message string) UserMessageSubmitted {
	return UserMessageSubmitted{Base: NewBase(KindUserMessageSubmitted), TurnID: turnID, Message: message}
}
