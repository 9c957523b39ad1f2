package conversation

import (
	"errors"
	"fmt"

	"github.com/mayavoice/maya-core/core/actions"
	"github.com/mayavoice/maya-core/core/audio"
	"github.com/mayavoice/maya-core/core/session"
)

// run drains the session event stream one event at a time, in arrival
// order. It is the only goroutine that reacts to session events, which
// keeps the state machine free of re-entrant handling.
func (c *Controller) run(channel session.Channel) {
	for event := range channel.Events() {
		switch event := event.(type) {
		case session.Opened:
			c.handleOpened(channel)
		case session.Message:
			c.handleMessage(channel, event)
		case session.Error:
			c.handleChannelError(event)
		case session.Closed:
			c.log("session closed: " + event.Detail)
		}
	}
}

func (c *Controller) handleOpened(channel session.Channel) {
	c.mu.Lock()
	current := c.channel
	connecting := c.status == StatusConnecting
	c.mu.Unlock()

	// A stop may have landed while the dial was in flight.
	if current != channel || !connecting {
		return
	}

	if err := c.capture.Start(); err != nil {
		c.fail(classifyCaptureError(err))
		return
	}

	c.log("session opened, listening")
	c.setStatus(StatusListening)
}

func (c *Controller) handleMessage(channel session.Channel, message session.Message) {
	// Events still buffered when a stop or failure lands must not revive
	// the state machine; teardown swaps the channel out, so a mismatch
	// means this message belongs to a dead conversation.
	c.mu.Lock()
	active := c.channel == channel
	c.mu.Unlock()
	if !active {
		return
	}

	if message.Interrupted {
		c.scheduler.Interrupt()
		c.setStatus(StatusListening)
		c.log("model speech interrupted")
	}

	if message.InputTranscript != "" {
		c.transcript.addUserDelta(message.InputTranscript)
	}
	if message.OutputTranscript != "" {
		c.transcript.addModelDelta(message.OutputTranscript)
	}

	if len(message.Audio) > 0 {
		c.setStatus(StatusSpeaking)
		if err := c.scheduler.Enqueue(message.Audio); err != nil {
			c.fail(playbackError(err))
			return
		}
	}

	if message.TurnComplete {
		if c.transcript.flushTurn() > 0 {
			c.notifyTranscript()
		}
	}

	for _, request := range message.ActionRequests {
		c.handleActionRequest(channel, request)
	}
}

// handleActionRequest dispatches a remote action request at most once per
// id. Duplicate ids are a protocol violation, logged and ignored.
func (c *Controller) handleActionRequest(channel session.Channel, request session.ActionRequest) {
	c.mu.Lock()
	if c.channel != channel {
		c.mu.Unlock()
		return
	}
	if _, seen := c.dispatched[request.ID]; seen {
		c.mu.Unlock()
		c.log(fmt.Sprintf("duplicate action request %q ignored", request.ID))
		logger.Warn("duplicate action request", "id", request.ID, "name", request.Name)
		return
	}
	c.dispatched[request.ID] = struct{}{}
	c.pendingActions++
	dispatchCtx := c.runCtx
	c.mu.Unlock()

	c.transcript.appendAction(request.ID, fmt.Sprintf("Running action: %s", request.Name))
	c.notifyTranscript()
	c.setStatus(StatusProcessing)
	c.log(fmt.Sprintf("action %s requested (%s)", request.Name, request.ID))

	go func() {
		result := c.dispatcher.Dispatch(dispatchCtx, request)
		c.completeAction(channel, request, result)
	}()
}

// completeAction reports the action outcome back on the channel, exactly
// once, and resolves the matching transcript entry. Dispatch failures are
// shown inline and never escalate to a conversation-level error.
func (c *Controller) completeAction(channel session.Channel, request session.ActionRequest, result actions.Result) {
	channel.SendActionResult(request.ID, request.Name, result.Payload)

	status := ActionSuccess
	if !result.OK {
		status = ActionFailure
	}
	c.transcript.updateAction(request.ID, status, result.Detail)
	c.notifyTranscript()
	c.log(fmt.Sprintf("action %s finished: %s", request.Name, status))

	c.mu.Lock()
	c.pendingActions--
	settle := c.status == StatusProcessing && c.pendingActions == 0
	c.mu.Unlock()

	if settle && c.scheduler.Active() == 0 {
		c.setStatus(StatusListening)
	}
}

func (c *Controller) handleChannelError(event session.Error) {
	c.fail(classifyConnectionError(event.Detail, event.Err))
}

// sendFrame forwards one encoded capture frame. Failures are the channel's
// to log; capture never blocks on them.
func (c *Controller) sendFrame(frame []byte) {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel == nil {
		return
	}
	channel.SendAudio(frame, audio.CaptureEncodingInfo().MimeType())
}

// playbackDrained fires when the last in-flight playback unit finishes.
func (c *Controller) playbackDrained() {
	c.mu.Lock()
	speaking := c.status == StatusSpeaking
	settled := c.status == StatusProcessing && c.pendingActions == 0
	c.mu.Unlock()

	if speaking || settled {
		c.setStatus(StatusListening)
	}
}

// fail records the error, surfaces it, and runs full teardown. A new error
// replaces the previous one; only one is shown at a time.
func (c *Controller) fail(err *Error) {
	c.mu.Lock()
	c.lastErr = err
	changed := c.setStatusLocked(StatusError)
	onError := c.onError
	c.mu.Unlock()

	if changed {
		c.notifyStatus(StatusError)
	}
	c.log("error: " + err.Error())
	logger.Error("conversation failed", "code", err.Code, "error", err)
	if onError != nil {
		onError(err)
	}
	c.teardown()
}

// teardown releases the channel, capture, and playback. Every step is
// attempted even if an earlier one fails.
func (c *Controller) teardown() {
	c.mu.Lock()
	channel := c.channel
	c.channel = nil
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	var errs []error
	if channel != nil {
		errs = append(errs, channel.Close())
	}
	errs = append(errs, c.capture.Close())
	errs = append(errs, c.scheduler.Close())
	if cancel != nil {
		cancel()
	}

	if err := errors.Join(errs...); err != nil {
		c.log("teardown finished with errors: " + err.Error())
		logger.Warn("teardown finished with errors", "error", err)
	}
}

func (c *Controller) setStatus(status Status) {
	c.mu.Lock()
	changed := c.setStatusLocked(status)
	c.mu.Unlock()
	if changed {
		c.notifyStatus(status)
	}
}

// setStatusLocked records the transition without notifying; call sites that
// hold the mutex notify after releasing it.
func (c *Controller) setStatusLocked(status Status) bool {
	if c.status == status {
		return false
	}
	c.status = status
	return true
}

func (c *Controller) notifyStatus(status Status) {
	if c.onStatus != nil {
		c.onStatus(status)
	}
}

func (c *Controller) notifyTranscript() {
	if c.onTranscript != nil {
		c.onTranscript(c.transcript.snapshot())
	}
}

func (c *Controller) log(line string) {
	stamped := c.devlog.add(line)
	if c.onLog != nil {
		c.onLog(stamped)
	}
}
