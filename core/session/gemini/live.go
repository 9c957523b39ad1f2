package gemini

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mayavoice/maya-core/core/audio"
	"github.com/mayavoice/maya-core/core/session"
	"go.opentelemetry.io/otel/codes"
)

// liveChannel adapts one BidiGenerateContent websocket to [session.Channel].
//
// The events channel has a single writer: the goroutine running connect and
// the read loop. It alone closes the channel, which keeps the close race-free
// against Close being called from any other goroutine at any time.
type liveChannel struct {
	id string

	mu sync.Mutex
	ws *websocket.Conn

	events    chan session.Event
	closed    atomic.Bool
	closeOnce sync.Once
}

var _ session.Channel = (*liveChannel)(nil)

func newLiveChannel() *liveChannel {
	return &liveChannel{
		id:     uuid.NewString(),
		events: make(chan session.Event, 16),
	}
}

func (l *liveChannel) Events() <-chan session.Event {
	return l.events
}

func (l *liveChannel) connect(ctx context.Context, client *Client, cfg session.Config) {
	ctx, span := tracer.Start(ctx, "open live session")
	defer span.End()

	addr, err := client.sessionURL()
	if err != nil {
		l.failOpen(fmt.Sprintf("invalid session endpoint: %v", err), err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	conn, _, err := client.dialer.DialContext(ctx, addr, nil)
	if err != nil {
		l.failOpen(fmt.Sprintf("failed to open session transport: %v", err), err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	l.mu.Lock()
	l.ws = conn
	alreadyClosed := l.closed.Load()
	l.mu.Unlock()

	if alreadyClosed {
		_ = conn.Close()
		l.events <- session.NewClosed("session closed before it was established")
		close(l.events)
		return
	}

	if err := l.writeJSON(newSetupMessage(cfg)); err != nil {
		l.failOpen(fmt.Sprintf("failed to send session setup: %v", err), err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	var first serverMessage
	if err := conn.ReadJSON(&first); err != nil {
		l.failOpen(fmt.Sprintf("session setup was not acknowledged: %v", err), err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	if first.SetupComplete == nil {
		err := fmt.Errorf("expected setup acknowledgement, got a different message")
		l.failOpen(err.Error(), err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	logger.InfoContext(ctx, "live session established", "session", l.id, "model", cfg.Model)
	l.events <- session.NewOpened()

	l.readLoop()
}

// failOpen reports an open failure and finishes the event stream. Only called
// from the connect goroutine.
func (l *liveChannel) failOpen(detail string, err error) {
	logger.Error("live session open failed", "session", l.id, "error", err)
	l.events <- session.NewError(detail, err)
	l.events <- session.NewClosed(detail)
	close(l.events)
}

func (l *liveChannel) readLoop() {
	for {
		var msg serverMessage
		if err := l.ws.ReadJSON(&msg); err != nil {
			detail := err.Error()
			if !l.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l.events <- session.NewError("session transport failed: "+detail, err)
			}
			logger.Info("live session closed", "session", l.id, "detail", detail)
			l.events <- session.NewClosed(detail)
			close(l.events)
			return
		}

		if event, ok := l.translate(msg); ok {
			l.events <- event
		}
	}
}

// translate maps one wire message onto the session event contract. Returns
// false for messages that carry nothing the core consumes.
func (l *liveChannel) translate(msg serverMessage) (session.Event, bool) {
	event := session.NewMessage()
	populated := false

	if sc := msg.ServerContent; sc != nil {
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			event.InputTranscript = sc.InputTranscription.Text
			populated = true
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			event.OutputTranscript = sc.OutputTranscription.Text
			populated = true
		}
		if sc.TurnComplete {
			event.TurnComplete = true
			populated = true
		}
		if sc.Interrupted {
			event.Interrupted = true
			populated = true
		}
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData == nil || part.InlineData.Data == "" {
					continue
				}

				data, err := audio.DecodeBase64(part.InlineData.Data)
				if err != nil {
					logger.Warn("dropping undecodable audio payload", "session", l.id, "error", err)
					continue
				}
				event.Audio = append(event.Audio, data...)
				populated = true
			}
		}
	}

	if tc := msg.ToolCall; tc != nil {
		for _, call := range tc.FunctionCalls {
			event.ActionRequests = append(event.ActionRequests, session.ActionRequest{
				ID:   call.ID,
				Name: call.Name,
				Args: call.Args,
			})
		}
		populated = populated || len(event.ActionRequests) > 0
	}

	return event, populated
}

func (l *liveChannel) SendAudio(data []byte, mimeType string) {
	err := l.writeJSON(realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []inlineData{{
				MimeType: mimeType,
				Data:     audio.EncodeBase64(data),
			}},
		},
	})
	if err != nil {
		logger.Debug("dropping outbound audio frame", "session", l.id, "error", err)
	}
}

func (l *liveChannel) SendActionResult(id, name string, result map[string]any) {
	err := l.writeJSON(toolResponseMessage{
		ToolResponse: toolResponse{
			FunctionResponses: []functionResponse{{
				ID:       id,
				Name:     name,
				Response: result,
			}},
		},
	})
	if err != nil {
		logger.Error("failed to send action result", "session", l.id, "action", id, "error", err)
	}
}

func (l *liveChannel) writeJSON(message any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ws == nil {
		return fmt.Errorf("session not established")
	}
	if l.closed.Load() {
		return fmt.Errorf("session closed")
	}

	return l.ws.WriteJSON(message)
}

func (l *liveChannel) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.closed.Store(true)

		l.mu.Lock()
		ws := l.ws
		l.mu.Unlock()

		if ws == nil {
			return
		}

		deadline := time.Now().Add(time.Second)
		_ = ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline,
		)
		err = ws.Close()
	})
	return err
}

func newSetupMessage(cfg session.Config) setupMessage {
	setup := setupPayload{
		Model: cfg.Model,
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
	}

	if cfg.Voice != "" {
		setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: &voiceConfig{
				PrebuiltVoiceConfig: &prebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}

	if cfg.Instruction != "" {
		setup.SystemInstruction = &content{Parts: []part{{Text: cfg.Instruction}}}
	}

	if cfg.InputTranscription {
		setup.InputAudioTranscription = &struct{}{}
	}
	if cfg.OutputTranscription {
		setup.OutputAudioTranscription = &struct{}{}
	}

	if len(cfg.Actions) > 0 {
		declarations := make([]functionDeclaration, 0, len(cfg.Actions))
		for _, action := range cfg.Actions {
			declarations = append(declarations, functionDeclaration{
				Name:        action.Name,
				Description: action.Description,
				Parameters:  action.Parameters,
			})
		}
		setup.Tools = []tool{{FunctionDeclarations: declarations}}
	}

	return setupMessage{Setup: setup}
}
