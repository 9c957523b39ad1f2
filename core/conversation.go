// Package conversation implements the real-time voice conversation engine:
// a state machine that captures microphone audio, streams it to a remote
// speech session, and renders the replies as gapless interruptible
// playback, transcript entries, and action requests.
package conversation

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/mayavoice/maya-core/core/audio"
	"github.com/mayavoice/maya-core/core/session"
	"github.com/mayavoice/maya-core/core/settings"
)

// Controller owns all conversation state: the status value, the transcript,
// the last error, the live session handle, and the capture and playback
// lifecycles. All mutation funnels through it.
type Controller struct {
	mu sync.Mutex

	status         Status
	conversationID string
	channel        session.Channel
	runCtx         context.Context
	cancel         context.CancelFunc
	lastErr        *Error

	dispatched     map[string]struct{}
	pendingActions int

	muted       atomic.Bool
	outputMuted atomic.Bool

	capture    *capturePipeline
	scheduler  *playbackScheduler
	transcript *transcript
	devlog     *devlog

	input          audio.Input
	output         audio.Output
	dialer         session.Dialer
	dispatcher     ActionDispatcher
	settingsSource func() settings.Settings
	model          string
	voice          string

	onStatus     func(status Status)
	onTranscript func(entries []TranscriptEntry)
	onError      func(err *Error)
	onLog        func(line string)
}

func New(opts ...Option) *Controller {
	c := &Controller{
		status:         StatusIdle,
		dispatched:     map[string]struct{}{},
		transcript:     newTranscript(),
		devlog:         &devlog{},
		settingsSource: func() settings.Settings { return settings.Settings{} },
	}

	for _, opt := range opts {
		opt(c)
	}

	c.capture = newCapturePipeline(c.input, &c.muted, c.sendFrame)
	c.scheduler = newPlaybackScheduler(c.output, c.playbackDrained)
	return c
}

// Start begins a new conversation. Starting while one is already active is
// rejected with a log rather than queued.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if !c.status.canStart() {
		c.mu.Unlock()
		c.log("start requested while a conversation is active, ignoring")
		return nil
	}

	c.conversationID = uuid.NewString()
	c.lastErr = nil
	c.dispatched = map[string]struct{}{}
	c.pendingActions = 0
	c.setStatusLocked(StatusConnecting)
	c.mu.Unlock()
	c.notifyStatus(StatusConnecting)

	c.transcript.clear()
	c.notifyTranscript()
	c.log("starting conversation " + c.conversationID)

	if err := c.scheduler.Open(); err != nil {
		wrapped := startError(err)
		c.fail(wrapped)
		return wrapped
	}
	c.scheduler.SetMuted(c.outputMuted.Load())

	if err := c.capture.Open(); err != nil {
		wrapped := classifyCaptureError(err)
		c.fail(wrapped)
		return wrapped
	}

	runCtx, cancel := context.WithCancel(ctx)
	channel := c.dialer.Dial(runCtx, c.sessionConfig())

	c.mu.Lock()
	c.channel = channel
	c.runCtx = runCtx
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(channel)
	return nil
}

// Stop ends the conversation and releases every resource. Safe to call from
// any state, including mid-connection; teardown is attempted in full even
// if individual steps fail.
func (c *Controller) Stop() {
	c.mu.Lock()
	wasIdle := c.status == StatusIdle
	c.setStatusLocked(StatusIdle)
	c.mu.Unlock()

	if !wasIdle {
		c.notifyStatus(StatusIdle)
		c.log("conversation stopped")
	}
	c.teardown()
}

// DismissError clears the displayed error. Dismissing while in the error
// state re-runs teardown so resources are released consistently.
func (c *Controller) DismissError() {
	c.mu.Lock()
	c.lastErr = nil
	wasError := c.status == StatusError
	if wasError {
		c.setStatusLocked(StatusIdle)
	}
	c.mu.Unlock()

	if wasError {
		c.notifyStatus(StatusIdle)
		c.teardown()
	}
}

func (c *Controller) ClearTranscript() {
	c.transcript.clear()
	c.notifyTranscript()
}

// SetMuted toggles microphone muting. Frames captured while muted are
// dropped, not replaced with silence. The flag survives conversation
// restarts.
func (c *Controller) SetMuted(muted bool) {
	c.muted.Store(muted)
	if muted {
		c.log("microphone muted")
	} else {
		c.log("microphone unmuted")
	}
}

func (c *Controller) Muted() bool { return c.muted.Load() }

// SetOutputMuted toggles playback muting via the output gain, without
// stopping in-flight audio.
func (c *Controller) SetOutputMuted(muted bool) {
	c.outputMuted.Store(muted)
	c.scheduler.SetMuted(muted)
}

func (c *Controller) OutputMuted() bool { return c.outputMuted.Load() }

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Controller) LastError() *Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Transcript returns a point-in-time snapshot of the transcript.
func (c *Controller) Transcript() []TranscriptEntry {
	return c.transcript.snapshot()
}

// Logs returns a snapshot of the diagnostic log ring buffer.
func (c *Controller) Logs() []string {
	return c.devlog.snapshot()
}

func (c *Controller) sessionConfig() session.Config {
	composed := c.settingsSource().ComposeInstruction()

	opts := []session.ConfigOption{
		session.WithInstruction(composed),
	}
	if c.model != "" {
		opts = append(opts, session.WithModel(c.model))
	}
	if c.voice != "" {
		opts = append(opts, session.WithVoice(c.voice))
	}
	if c.dispatcher != nil {
		opts = append(opts, session.WithActions(c.dispatcher.Declarations()...))
	}
	return session.NewConfig(opts...)
}
