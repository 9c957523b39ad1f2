package conversation

import (
	"errors"
	"sync/atomic"

	"github.com/mayavoice/maya-core/core/audio"
)

// capturePipeline forwards microphone frames to the session in wire format.
// Frames captured while muted are dropped outright, so the remote side
// receives no audio rather than silence.
type capturePipeline struct {
	input audio.Input
	muted *atomic.Bool
	send  func(frame []byte)
}

func newCapturePipeline(input audio.Input, muted *atomic.Bool, send func(frame []byte)) *capturePipeline {
	return &capturePipeline{input: input, muted: muted, send: send}
}

func (p *capturePipeline) Open() error {
	return p.input.Open()
}

func (p *capturePipeline) Start() error {
	return p.input.Start(p.onFrame)
}

func (p *capturePipeline) onFrame(samples []float32) {
	if p.muted.Load() {
		return
	}
	p.send(audio.FloatsToInt16Bytes(samples))
}

func (p *capturePipeline) Close() error {
	return errors.Join(p.input.Stop(), p.input.Close())
}
