package conversation

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusListening  Status = "listening"
	StatusProcessing Status = "processing"
	StatusSpeaking   Status = "speaking"
	StatusError      Status = "error"
)

// canStart reports whether a new conversation may begin from this status.
func (s Status) canStart() bool {
	return s == StatusIdle || s == StatusError
}
