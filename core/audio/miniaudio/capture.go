// Package miniaudio provides microphone capture and scheduled playback
// devices built on top of the miniaudio library.
package miniaudio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/mayavoice/maya-core/core/audio"
)

// CaptureDevice records microphone audio as 32-bit float mono frames and
// delivers it in fixed-size frames of [audio.CaptureFrameSize] samples.
type CaptureDevice struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device

	onFrame func(samples []float32)
	pending []float32

	mu sync.Mutex
}

var _ audio.Input = (*CaptureDevice)(nil)

func NewCaptureDevice() *CaptureDevice {
	return &CaptureDevice{}
}

// Open initializes the underlying device. It can be called again after Close.
func (c *CaptureDevice) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device != nil {
		return nil
	}

	audioContext, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return fmt.Errorf("failed to initialize audio context: %w", err)
	}
	c.audioContext = audioContext

	format := malgo.FormatF32
	channels := audio.DefaultChannels
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.SampleRate = uint32(audio.CaptureSampleRate)
	config.Capture.Format = format
	config.Capture.Channels = uint32(channels)
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency
	config.PeriodSizeInFrames = 480
	config.Periods = 3

	c.device, err = malgo.InitDevice(c.audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}
			c.accumulate(pInput[:n])
		},
	})
	if err != nil {
		c.teardownContextLocked()
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	return nil
}

func (c *CaptureDevice) Start(onFrame func(samples []float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	} else if c.device.IsStarted() {
		return nil
	}

	c.onFrame = onFrame
	c.pending = c.pending[:0]

	if err := c.device.Start(); err != nil {
		c.onFrame = nil
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	return nil
}

// Stop must not hold the mutex while stopping the device: the data
// callback takes the same mutex and malgo waits for it to return.
func (c *CaptureDevice) Stop() error {
	c.mu.Lock()
	device := c.device
	c.mu.Unlock()
	if device == nil || !device.IsStarted() {
		return nil
	}

	if err := device.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}

	c.mu.Lock()
	c.onFrame = nil
	c.pending = nil
	c.mu.Unlock()
	return nil
}

func (c *CaptureDevice) Close() error {
	c.mu.Lock()
	device := c.device
	c.device = nil
	c.mu.Unlock()

	if device != nil {
		device.Uninit()
	}

	c.mu.Lock()
	c.teardownContextLocked()
	c.onFrame = nil
	c.pending = nil
	c.mu.Unlock()
	return nil
}

// accumulate buffers raw device audio until a full frame is available. The
// device callback delivers a period at a time so a single read rarely lines
// up with the frame size.
func (c *CaptureDevice) accumulate(data []byte) {
	c.mu.Lock()
	onFrame := c.onFrame
	if onFrame == nil {
		c.mu.Unlock()
		return
	}

	for i := 0; i+4 <= len(data); i += 4 {
		c.pending = append(c.pending, math.Float32frombits(binary.LittleEndian.Uint32(data[i:])))
	}

	var frames [][]float32
	for len(c.pending) >= audio.CaptureFrameSize {
		frame := make([]float32, audio.CaptureFrameSize)
		copy(frame, c.pending[:audio.CaptureFrameSize])
		c.pending = append(c.pending[:0], c.pending[audio.CaptureFrameSize:]...)
		frames = append(frames, frame)
	}
	c.mu.Unlock()

	for _, frame := range frames {
		onFrame(frame)
	}
}

func (c *CaptureDevice) teardownContextLocked() {
	if c.audioContext == nil {
		return
	}
	_ = c.audioContext.Uninit()
	c.audioContext.Free()
	c.audioContext = nil
}
