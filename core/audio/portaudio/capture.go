// Package portaudio provides an alternate microphone backend for systems
// where miniaudio misbehaves.
package portaudio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/mayavoice/maya-core/core/audio"
)

// CaptureDevice records microphone audio through PortAudio's blocking read
// API and delivers mono float32 frames of [audio.CaptureFrameSize] samples.
type CaptureDevice struct {
	stream *portaudio.Stream
	in     []int16

	running atomic.Bool
	done    chan struct{}

	mu sync.Mutex
}

var _ audio.Input = (*CaptureDevice)(nil)

func NewCaptureDevice() *CaptureDevice {
	return &CaptureDevice{}
}

func (c *CaptureDevice) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	c.in = make([]int16, audio.CaptureFrameSize)
	stream, err := portaudio.OpenDefaultStream(
		audio.DefaultChannels, 0,
		float64(audio.CaptureSampleRate), audio.CaptureFrameSize,
		c.in,
	)
	if err != nil {
		_ = portaudio.Terminate()
		c.in = nil
		return fmt.Errorf("failed to open portaudio stream: %w", err)
	}

	c.stream = stream
	return nil
}

func (c *CaptureDevice) Start(onFrame func(samples []float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return fmt.Errorf("device not initialized")
	} else if c.running.Load() {
		return nil
	}

	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("failed to start portaudio stream: %w", err)
	}

	c.running.Store(true)
	c.done = make(chan struct{})
	go c.readLoop(onFrame, c.done)
	return nil
}

// readLoop blocks on the stream a frame at a time until Stop flips the
// running flag.
func (c *CaptureDevice) readLoop(onFrame func(samples []float32), done chan struct{}) {
	defer close(done)
	for c.running.Load() {
		if err := c.stream.Read(); err != nil {
			if !c.running.Load() {
				return
			}
			continue
		}

		frame := make([]float32, len(c.in))
		for i, sample := range c.in {
			frame[i] = float32(sample) / 32768
		}
		onFrame(frame)
	}
}

func (c *CaptureDevice) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil || !c.running.Load() {
		return nil
	}

	c.running.Store(false)
	if err := c.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop portaudio stream: %w", err)
	}
	<-c.done
	return nil
}

func (c *CaptureDevice) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return nil
	}

	err := c.stream.Close()
	c.stream = nil
	c.in = nil
	if terminateErr := portaudio.Terminate(); err == nil {
		err = terminateErr
	}
	if err != nil {
		return fmt.Errorf("failed to close portaudio stream: %w", err)
	}
	return nil
}
