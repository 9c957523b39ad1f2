package conversation

import (
	"context"

	"github.com/mayavoice/maya-core/core/actions"
	"github.com/mayavoice/maya-core/core/audio"
	"github.com/mayavoice/maya-core/core/session"
	"github.com/mayavoice/maya-core/core/settings"
)

type Option func(*Controller)

func WithAudioInput(input audio.Input) Option {
	return func(c *Controller) { c.input = input }
}

func WithAudioOutput(output audio.Output) Option {
	return func(c *Controller) { c.output = output }
}

func WithSessionDialer(dialer session.Dialer) Option {
	return func(c *Controller) { c.dialer = dialer }
}

// ActionDispatcher resolves remote-initiated action requests. Dispatch must
// capture every failure into its result rather than returning an error, so
// a misbehaving endpoint never ends the conversation.
type ActionDispatcher interface {
	Declarations() []session.ActionDecl
	Dispatch(ctx context.Context, request session.ActionRequest) actions.Result
}

func WithActionDispatcher(dispatcher ActionDispatcher) Option {
	return func(c *Controller) { c.dispatcher = dispatcher }
}

// WithSettingsSource registers the provider of instruction text and
// credentials. It is read once per conversation start, not observed for
// live changes.
func WithSettingsSource(source func() settings.Settings) Option {
	return func(c *Controller) { c.settingsSource = source }
}

func WithModel(model string) Option {
	return func(c *Controller) { c.model = model }
}

func WithVoice(voice string) Option {
	return func(c *Controller) { c.voice = voice }
}

// WithStatusCallback registers a callback for status transitions. The
// callback runs on whichever goroutine caused the transition and should
// not block.
func WithStatusCallback(callback func(status Status)) Option {
	return func(c *Controller) { c.onStatus = callback }
}

// WithTranscriptCallback registers a callback invoked with a full snapshot
// whenever the transcript changes.
func WithTranscriptCallback(callback func(entries []TranscriptEntry)) Option {
	return func(c *Controller) { c.onTranscript = callback }
}

func WithErrorCallback(callback func(err *Error)) Option {
	return func(c *Controller) { c.onError = callback }
}

// WithLogCallback registers a callback for diagnostic log lines, already
// timestamped.
func WithLogCallback(callback func(line string)) Option {
	return func(c *Controller) { c.onLog = callback }
}
