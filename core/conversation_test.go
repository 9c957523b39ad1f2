package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mayavoice/maya-core/core/actions"
	"github.com/mayavoice/maya-core/core/audio"
	"github.com/mayavoice/maya-core/core/session"
)

type fakeInput struct {
	mu      sync.Mutex
	opened  int
	started int
	stopped int
	closed  int
	onFrame func(samples []float32)
	openErr error
}

func (f *fakeInput) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.opened++
	return nil
}

func (f *fakeInput) Start(onFrame func(samples []float32)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	f.onFrame = onFrame
	return nil
}

func (f *fakeInput) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	f.onFrame = nil
	return nil
}

func (f *fakeInput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeInput) emit(samples []float32) {
	f.mu.Lock()
	onFrame := f.onFrame
	f.mu.Unlock()
	if onFrame != nil {
		onFrame(samples)
	}
}

func (f *fakeInput) timesStarted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

type fakeUnit struct {
	output   *fakeOutput
	start    float64
	duration float64
	onEnded  func(unit audio.PlaybackUnit)
	stopped  bool
}

func (u *fakeUnit) Stop() {
	u.output.mu.Lock()
	defer u.output.mu.Unlock()
	u.stopped = true
}

func (u *fakeUnit) isStopped() bool {
	u.output.mu.Lock()
	defer u.output.mu.Unlock()
	return u.stopped
}

type fakeOutput struct {
	mu     sync.Mutex
	now    float64
	gain   float32
	opened int
	closed int
	units  []*fakeUnit
}

func (f *fakeOutput) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened++
	return nil
}

func (f *fakeOutput) CurrentTime() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeOutput) PlayAt(samples []float32, at float64, onEnded func(unit audio.PlaybackUnit)) (audio.PlaybackUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	unit := &fakeUnit{
		output:   f,
		start:    at,
		duration: float64(len(samples)) / float64(audio.PlaybackSampleRate),
		onEnded:  onEnded,
	}
	f.units = append(f.units, unit)
	return unit, nil
}

func (f *fakeOutput) SetGain(gain float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gain = gain
}

func (f *fakeOutput) Stop() error { return nil }

func (f *fakeOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeOutput) setNow(now float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

func (f *fakeOutput) unit(i int) *fakeUnit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.units[i]
}

func (f *fakeOutput) unitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.units)
}

// finish fires the ended callback for unit i, as the device would once the
// render cursor passes it.
func (f *fakeOutput) finish(i int) {
	f.mu.Lock()
	unit := f.units[i]
	f.mu.Unlock()
	unit.onEnded(unit)
}

type actionResultCall struct {
	id      string
	name    string
	payload map[string]any
}

type stubChannel struct {
	events chan session.Event

	mu        sync.Mutex
	audioSent [][]byte
	results   []actionResultCall
	closed    int
}

func newStubChannel() *stubChannel {
	return &stubChannel{events: make(chan session.Event, 16)}
}

func (c *stubChannel) Events() <-chan session.Event { return c.events }

func (c *stubChannel) SendAudio(data []byte, mimeType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audioSent = append(c.audioSent, data)
}

func (c *stubChannel) SendActionResult(id, name string, result map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, actionResultCall{id: id, name: name, payload: result})
}

func (c *stubChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *stubChannel) sentResults() []actionResultCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	results := make([]actionResultCall, len(c.results))
	copy(results, c.results)
	return results
}

func (c *stubChannel) timesClosed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type stubDialer struct {
	channel *stubChannel

	mu    sync.Mutex
	dials int
	cfg   session.Config
}

func (d *stubDialer) Dial(ctx context.Context, cfg session.Config) session.Channel {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.cfg = cfg
	return d.channel
}

type stubDispatcher struct {
	result actions.Result

	mu       sync.Mutex
	requests []session.ActionRequest
	lastCtx  context.Context
}

func (d *stubDispatcher) Declarations() []session.ActionDecl {
	return []session.ActionDecl{{Name: "triggerWebhook", Description: "calls a webhook"}}
}

func (d *stubDispatcher) Dispatch(ctx context.Context, request session.ActionRequest) actions.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, request)
	d.lastCtx = ctx
	return d.result
}

func (d *stubDispatcher) requestCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

func (d *stubDispatcher) dispatchCtx() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastCtx
}

type testHarness struct {
	controller *Controller
	input      *fakeInput
	output     *fakeOutput
	channel    *stubChannel
	dialer     *stubDialer
	dispatcher *stubDispatcher
}

func newTestHarness(result actions.Result) *testHarness {
	h := &testHarness{
		input:      &fakeInput{},
		output:     &fakeOutput{},
		channel:    newStubChannel(),
		dispatcher: &stubDispatcher{result: result},
	}
	h.dialer = &stubDialer{channel: h.channel}
	h.controller = New(
		WithAudioInput(h.input),
		WithAudioOutput(h.output),
		WithSessionDialer(h.dialer),
		WithActionDispatcher(h.dispatcher),
	)
	return h
}

func waitFor(t *testing.T, condition func() bool, description string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", description)
}

func pcmPayload(sampleCount int) []byte {
	return make([]byte, sampleCount*2)
}

func TestConversationLifecycle(t *testing.T) {
	h := newTestHarness(actions.Result{OK: true})

	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	if status := h.controller.Status(); status != StatusConnecting {
		t.Fatalf("expected connecting after start, got %q", status)
	}

	h.channel.events <- session.NewOpened()
	waitFor(t, func() bool { return h.controller.Status() == StatusListening }, "listening after open")
	if h.input.timesStarted() != 1 {
		t.Fatalf("expected capture to start once, started %d times", h.input.timesStarted())
	}

	message := session.NewMessage()
	message.Audio = pcmPayload(2400)
	h.channel.events <- message
	waitFor(t, func() bool { return h.controller.Status() == StatusSpeaking }, "speaking after audio")
	waitFor(t, func() bool { return h.output.unitCount() == 1 }, "scheduled unit")

	h.output.finish(0)
	waitFor(t, func() bool { return h.controller.Status() == StatusListening }, "listening after playback drained")

	h.controller.Stop()
	if status := h.controller.Status(); status != StatusIdle {
		t.Fatalf("expected idle after stop, got %q", status)
	}
	waitFor(t, func() bool { return h.channel.timesClosed() >= 1 }, "channel closed")
	if h.input.closed == 0 {
		t.Fatalf("expected input device to be released")
	}
}

func TestTurnCompleteFlushesTranscript(t *testing.T) {
	h := newTestHarness(actions.Result{OK: true})
	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	h.channel.events <- session.NewOpened()
	waitFor(t, func() bool { return h.controller.Status() == StatusListening }, "listening after open")

	first := session.NewMessage()
	first.InputTranscript = "Hello "
	h.channel.events <- first

	second := session.NewMessage()
	second.InputTranscript = "there"
	second.OutputTranscript = "Hi! How can I help?"
	h.channel.events <- second

	third := session.NewMessage()
	third.TurnComplete = true
	h.channel.events <- third

	waitFor(t, func() bool { return len(h.controller.Transcript()) == 2 }, "two transcript entries")
	entries := h.controller.Transcript()
	if entries[0].Speaker != SpeakerUser || entries[0].Text != "Hello there" {
		t.Fatalf("expected first entry to be the user utterance, got %+v", entries[0])
	}
	if entries[1].Speaker != SpeakerModel || entries[1].Text != "Hi! How can I help?" {
		t.Fatalf("expected second entry to be the model utterance, got %+v", entries[1])
	}
	if entries[0].ID >= entries[1].ID {
		t.Fatalf("expected ids to increase, got %d then %d", entries[0].ID, entries[1].ID)
	}
}

func TestActionRequestDispatchedOnce(t *testing.T) {
	h := newTestHarness(actions.Result{OK: true, Payload: map[string]any{"ok": true}, Detail: "Webhook succeeded"})
	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	h.channel.events <- session.NewOpened()
	waitFor(t, func() bool { return h.controller.Status() == StatusListening }, "listening after open")

	request := session.ActionRequest{ID: "a1", Name: "triggerWebhook", Args: map[string]any{"url": "https://x/hook"}}
	message := session.NewMessage()
	message.ActionRequests = []session.ActionRequest{request}
	h.channel.events <- message

	waitFor(t, func() bool {
		entries := h.controller.Transcript()
		return len(entries) == 1 && entries[0].ActionStatus == ActionSuccess
	}, "action entry resolved")

	results := h.channel.sentResults()
	if len(results) != 1 {
		t.Fatalf("expected exactly one action result, got %d", len(results))
	}
	if results[0].id != "a1" || results[0].name != "triggerWebhook" {
		t.Fatalf("unexpected action result: %+v", results[0])
	}
	if ok, _ := results[0].payload["ok"].(bool); !ok {
		t.Fatalf("expected result payload to carry the response, got %+v", results[0].payload)
	}
	waitFor(t, func() bool { return h.controller.Status() == StatusListening }, "listening after action settles")

	// A repeat of the same id is a protocol violation: ignored, not re-run.
	duplicate := session.NewMessage()
	duplicate.ActionRequests = []session.ActionRequest{request}
	h.channel.events <- duplicate

	time.Sleep(50 * time.Millisecond)
	if h.dispatcher.requestCount() != 1 {
		t.Fatalf("expected a single dispatch, got %d", h.dispatcher.requestCount())
	}
	if results := h.channel.sentResults(); len(results) != 1 {
		t.Fatalf("expected a single action result, got %d", len(results))
	}
}

func TestActionFailureStaysInline(t *testing.T) {
	h := newTestHarness(actions.Result{OK: false, Payload: map[string]any{"error": "request failed with status 500"}, Detail: "Webhook failed (500)"})
	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	h.channel.events <- session.NewOpened()
	waitFor(t, func() bool { return h.controller.Status() == StatusListening }, "listening after open")

	message := session.NewMessage()
	message.ActionRequests = []session.ActionRequest{{ID: "a2", Name: "triggerWebhook", Args: map[string]any{"url": "https://x/hook"}}}
	h.channel.events <- message

	waitFor(t, func() bool {
		entries := h.controller.Transcript()
		return len(entries) == 1 && entries[0].ActionStatus == ActionFailure
	}, "action entry marked failed")

	if status := h.controller.Status(); status == StatusError {
		t.Fatalf("expected action failure to stay inline, conversation errored")
	}
	if results := h.channel.sentResults(); len(results) != 1 {
		t.Fatalf("expected exactly one action result, got %d", len(results))
	}
}

func TestChannelErrorTearsDown(t *testing.T) {
	h := newTestHarness(actions.Result{OK: true})
	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	h.channel.events <- session.NewOpened()
	waitFor(t, func() bool { return h.controller.Status() == StatusListening }, "listening after open")

	h.channel.events <- session.NewError("server rejected request: 401 unauthorized", nil)
	waitFor(t, func() bool { return h.controller.Status() == StatusError }, "error state")

	lastErr := h.controller.LastError()
	if lastErr == nil || lastErr.Code != "AUTH-01" {
		t.Fatalf("expected an auth error, got %+v", lastErr)
	}
	waitFor(t, func() bool { return h.channel.timesClosed() >= 1 }, "channel closed on error")
}

func TestPlaybackDecodeFailureErrors(t *testing.T) {
	h := newTestHarness(actions.Result{OK: true})
	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	h.channel.events <- session.NewOpened()
	waitFor(t, func() bool { return h.controller.Status() == StatusListening }, "listening after open")

	message := session.NewMessage()
	message.Audio = []byte{0x01}
	h.channel.events <- message

	waitFor(t, func() bool { return h.controller.Status() == StatusError }, "error after malformed audio")
	lastErr := h.controller.LastError()
	if lastErr == nil || lastErr.Code != "PLAYBACK-01" {
		t.Fatalf("expected a playback error, got %+v", lastErr)
	}
}

func TestStopDuringConnectingReleasesDevices(t *testing.T) {
	h := newTestHarness(actions.Result{OK: true})
	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}

	h.controller.Stop()
	if status := h.controller.Status(); status != StatusIdle {
		t.Fatalf("expected idle after stop, got %q", status)
	}
	if h.input.closed == 0 || h.output.closed == 0 {
		t.Fatalf("expected both devices released, input closed %d, output closed %d", h.input.closed, h.output.closed)
	}

	// The open resolving late must not revive capture.
	h.channel.events <- session.NewOpened()
	time.Sleep(50 * time.Millisecond)
	if h.input.timesStarted() != 0 {
		t.Fatalf("expected capture to stay stopped, started %d times", h.input.timesStarted())
	}
}

func TestStopDropsBufferedSessionEvents(t *testing.T) {
	h := newTestHarness(actions.Result{OK: true})
	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	h.channel.events <- session.NewOpened()
	waitFor(t, func() bool { return h.controller.Status() == StatusListening }, "listening after open")

	h.controller.Stop()

	// Events that were still queued when stop landed belong to the dead
	// conversation and must not move the machine out of idle.
	stale := session.NewMessage()
	stale.Audio = pcmPayload(2400)
	h.channel.events <- stale

	staleRequest := session.NewMessage()
	staleRequest.ActionRequests = []session.ActionRequest{{ID: "a9", Name: "triggerWebhook", Args: map[string]any{"url": "https://x/hook"}}}
	h.channel.events <- staleRequest

	time.Sleep(50 * time.Millisecond)
	if status := h.controller.Status(); status != StatusIdle {
		t.Fatalf("expected idle after stop, got %q", status)
	}
	if h.output.unitCount() != 0 {
		t.Fatalf("expected no units scheduled on the released device, got %d", h.output.unitCount())
	}
	if h.dispatcher.requestCount() != 0 {
		t.Fatalf("expected no dispatch after stop, got %d", h.dispatcher.requestCount())
	}
	if results := h.channel.sentResults(); len(results) != 0 {
		t.Fatalf("expected no action results after stop, got %d", len(results))
	}
}

func TestTeardownCancelsActionDispatchContext(t *testing.T) {
	h := newTestHarness(actions.Result{OK: true})
	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	h.channel.events <- session.NewOpened()
	waitFor(t, func() bool { return h.controller.Status() == StatusListening }, "listening after open")

	message := session.NewMessage()
	message.ActionRequests = []session.ActionRequest{{ID: "a1", Name: "triggerWebhook", Args: map[string]any{"url": "https://x/hook"}}}
	h.channel.events <- message
	waitFor(t, func() bool { return h.dispatcher.requestCount() == 1 }, "action dispatched")

	ctx := h.dispatcher.dispatchCtx()
	if ctx == nil {
		t.Fatalf("expected the dispatcher to receive a context")
	}
	if ctx.Err() != nil {
		t.Fatalf("expected a live dispatch context during the conversation, got %v", ctx.Err())
	}

	h.controller.Stop()
	waitFor(t, func() bool { return ctx.Err() != nil }, "dispatch context cancelled by teardown")
}

func TestStartWhileActiveIsIgnored(t *testing.T) {
	h := newTestHarness(actions.Result{OK: true})
	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("expected second start to be a no-op, got %v", err)
	}

	h.dialer.mu.Lock()
	dials := h.dialer.dials
	h.dialer.mu.Unlock()
	if dials != 1 {
		t.Fatalf("expected a single dial, got %d", dials)
	}
}

func TestInterruptedEventResetsPlayback(t *testing.T) {
	h := newTestHarness(actions.Result{OK: true})
	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	h.channel.events <- session.NewOpened()
	waitFor(t, func() bool { return h.controller.Status() == StatusListening }, "listening after open")

	message := session.NewMessage()
	message.Audio = pcmPayload(2400)
	h.channel.events <- message
	waitFor(t, func() bool { return h.output.unitCount() == 1 }, "scheduled unit")

	interrupted := session.NewMessage()
	interrupted.Interrupted = true
	h.channel.events <- interrupted

	waitFor(t, func() bool { return h.controller.Status() == StatusListening }, "listening after interruption")
	waitFor(t, func() bool { return h.output.unit(0).isStopped() }, "unit stopped")
}
