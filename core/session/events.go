package session

import "time"

type Kind string

const (
	// KindOpened identifies successful channel establishment.
	KindOpened Kind = "channel.opened"
	// KindMessage identifies an inbound server message.
	KindMessage Kind = "channel.message"
	// KindError identifies a channel failure, including failure to open.
	KindError Kind = "channel.error"
	// KindClosed identifies channel shutdown.
	KindClosed Kind = "channel.closed"
)

// Event is one inbound occurrence on the session channel. Events are
// delivered strictly in arrival order.
type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

type Base struct {
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}

// Opened marks the channel as established and ready for audio.
type Opened struct{ Base }

func NewOpened() Opened {
	return Opened{Base: NewBase(KindOpened)}
}

// Message carries the payloads of one inbound server message. Any subset of
// its fields may be populated.
type Message struct {
	Base

	// InputTranscript is an incremental transcription delta of user speech.
	InputTranscript string
	// OutputTranscript is an incremental transcription delta of model speech.
	OutputTranscript string
	// TurnComplete signals an utterance boundary.
	TurnComplete bool
	// Audio is a raw PCM payload of synthesized speech, already unwrapped
	// from its transport encoding.
	Audio []byte
	// Interrupted signals that in-flight model speech was cut off by the
	// user and buffered playback should stop immediately.
	Interrupted bool
	// ActionRequests are remote-initiated requests for client side effects.
	ActionRequests []ActionRequest
}

func NewMessage() Message {
	return Message{Base: NewBase(KindMessage)}
}

// Error marks a channel failure. Open failures are delivered through this
// event rather than returned from dialing so they can be handled uniformly.
type Error struct {
	Base

	Detail string
	Err    error
}

func NewError(detail string, err error) Error {
	return Error{Base: NewBase(KindError), Detail: detail, Err: err}
}

// Closed marks channel shutdown, expected or not.
type Closed struct {
	Base

	Detail string
}

func NewClosed(detail string) Closed {
	return Closed{Base: NewBase(KindClosed), Detail: detail}
}

// ActionRequest is a remote-initiated request to invoke a declared action
// and report its outcome back on the same channel.
type ActionRequest struct {
	ID   string
	Name string
	Args map[string]any
}
