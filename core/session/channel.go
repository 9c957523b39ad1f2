// Package session defines the contract between the conversation core and the
// remote speech model's bidirectional session transport.
//
// A Channel adapts one concrete transport to the event and operation shapes
// the core expects: an ordered inbound event stream, fire-and-forget outbound
// sends, and an idempotent close. Opening is asynchronous; failure to open
// surfaces as an [Error] event on the stream, never as a dial error.
package session

import "context"

// Channel is one live bidirectional session.
type Channel interface {
	// Events delivers inbound events in arrival order. The channel is
	// closed once the session is fully shut down.
	Events() <-chan Event

	// SendAudio forwards one outbound audio payload. Fire-and-forget: a
	// failure is logged by the implementation, not returned, so the capture
	// path never blocks.
	SendAudio(data []byte, mimeType string)

	// SendActionResult reports the outcome of one action request. It must
	// be called exactly once per received [ActionRequest] id.
	SendActionResult(id, name string, result map[string]any)

	// Close tears the session down. Idempotent; safe to call in any state.
	Close() error
}

// Dialer opens sessions against a concrete remote transport.
type Dialer interface {
	// Dial starts opening a session and returns its channel immediately.
	// The caller learns the outcome through [Opened] or [Error] events.
	Dial(ctx context.Context, cfg Config) Channel
}
