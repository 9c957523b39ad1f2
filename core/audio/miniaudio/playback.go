package miniaudio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/mayavoice/maya-core/core/audio"
)

// PlaybackDevice renders scheduled audio units on a single timeline. Units
// are mixed in the device callback, so back-to-back schedules play without
// gaps regardless of when they were submitted.
type PlaybackDevice struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device

	units          []*playbackUnit
	framesRendered uint64
	gain           float32

	mu sync.Mutex
}

var _ audio.Output = (*PlaybackDevice)(nil)

func NewPlaybackDevice() *PlaybackDevice {
	return &PlaybackDevice{gain: 1}
}

// Open initializes the device and starts the timeline clock. It can be
// called again after Close.
func (p *PlaybackDevice) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device != nil {
		return nil
	}

	audioContext, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return fmt.Errorf("failed to initialize audio context: %w", err)
	}
	p.audioContext = audioContext

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = uint32(audio.PlaybackSampleRate)
	config.Playback.Format = malgo.FormatF32
	config.Playback.Channels = uint32(audio.DefaultChannels)
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency
	config.PeriodSizeInFrames = 480
	config.Periods = 3

	p.device, err = malgo.InitDevice(p.audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			p.render(pOutput, frameCount)
		},
	})
	if err != nil {
		p.teardownContextLocked()
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := p.device.Start(); err != nil {
		p.device.Uninit()
		p.device = nil
		p.teardownContextLocked()
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	p.units = nil
	p.framesRendered = 0
	return nil
}

func (p *PlaybackDevice) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return float64(p.framesRendered) / float64(audio.PlaybackSampleRate)
}

func (p *PlaybackDevice) PlayAt(samples []float32, at float64, onEnded func(unit audio.PlaybackUnit)) (audio.PlaybackUnit, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device == nil {
		return nil, fmt.Errorf("device not initialized")
	}

	start := uint64(0)
	if at > 0 {
		start = uint64(at * float64(audio.PlaybackSampleRate))
	}
	if start < p.framesRendered {
		start = p.framesRendered
	}

	unit := &playbackUnit{
		owner:   p,
		start:   start,
		samples: samples,
		onEnded: onEnded,
	}
	p.units = append(p.units, unit)
	return unit, nil
}

func (p *PlaybackDevice) SetGain(gain float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gain < 0 {
		gain = 0
	}
	p.gain = gain
}

// Stop must not hold the mutex while stopping the device: render takes
// the same mutex and malgo waits for it to return.
func (p *PlaybackDevice) Stop() error {
	p.mu.Lock()
	device := p.device
	p.mu.Unlock()
	if device == nil || !device.IsStarted() {
		return nil
	}

	if err := device.Stop(); err != nil {
		return fmt.Errorf("failed to stop playback device: %w", err)
	}
	return nil
}

func (p *PlaybackDevice) Close() error {
	p.mu.Lock()
	device := p.device
	p.device = nil
	p.mu.Unlock()

	if device != nil {
		device.Uninit()
	}

	p.mu.Lock()
	p.teardownContextLocked()
	p.units = nil
	p.mu.Unlock()
	return nil
}

func (p *PlaybackDevice) teardownContextLocked() {
	if p.audioContext == nil {
		return
	}
	_ = p.audioContext.Uninit()
	p.audioContext.Free()
	p.audioContext = nil
}

// render mixes every active unit into the output buffer and fires ended
// callbacks for units the cursor has passed.
func (p *PlaybackDevice) render(pOutput []byte, frameCount uint32) {
	p.mu.Lock()

	n := uint64(frameCount)
	for i := uint64(0); i < n; i++ {
		abs := p.framesRendered + i
		var sample float32
		for _, unit := range p.units {
			if abs < unit.start {
				continue
			}
			offset := abs - unit.start
			if offset < uint64(len(unit.samples)) {
				sample += unit.samples[offset]
			}
		}
		binary.LittleEndian.PutUint32(pOutput[i*4:], math.Float32bits(sample*p.gain))
	}
	p.framesRendered += n

	var ended []*playbackUnit
	remaining := p.units[:0]
	for _, unit := range p.units {
		if unit.start+uint64(len(unit.samples)) <= p.framesRendered {
			ended = append(ended, unit)
			continue
		}
		remaining = append(remaining, unit)
	}
	p.units = remaining
	p.mu.Unlock()

	if len(ended) > 0 {
		go func() {
			for _, unit := range ended {
				if unit.onEnded != nil {
					unit.onEnded(unit)
				}
			}
		}()
	}
}

type playbackUnit struct {
	owner   *PlaybackDevice
	start   uint64
	samples []float32
	onEnded func(unit audio.PlaybackUnit)
}

// Stop removes the unit from the timeline without firing onEnded.
func (u *playbackUnit) Stop() {
	u.owner.mu.Lock()
	defer u.owner.mu.Unlock()
	for i, unit := range u.owner.units {
		if unit == u {
			u.owner.units = append(u.owner.units[:i], u.owner.units[i+1:]...)
			return
		}
	}
}
