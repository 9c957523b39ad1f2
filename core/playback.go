package conversation

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mayavoice/maya-core/core/audio"
)

// playbackScheduler lays inbound audio chunks end-to-end on the output
// device's timeline. The cursor tracks where the previous chunk ends; each
// new chunk starts at max(cursor, device time) so bursts play gaplessly no
// matter how unevenly they arrive.
type playbackScheduler struct {
	output   audio.Output
	encoding audio.EncodingInfo

	mu     sync.Mutex
	cursor float64
	active map[audio.PlaybackUnit]struct{}

	onDrained func()
}

func newPlaybackScheduler(output audio.Output, onDrained func()) *playbackScheduler {
	return &playbackScheduler{
		output:    output,
		encoding:  audio.PlaybackEncodingInfo(),
		active:    map[audio.PlaybackUnit]struct{}{},
		onDrained: onDrained,
	}
}

func (s *playbackScheduler) Open() error {
	return s.output.Open()
}

// Enqueue decodes the payload and schedules it at the end of the timeline.
// A failed chunk is not retried; the caller decides whether the failure
// ends the conversation.
func (s *playbackScheduler) Enqueue(payload []byte) error {
	chunk, err := audio.DecodeChunk(payload, s.encoding)
	if err != nil {
		return fmt.Errorf("failed to decode audio chunk: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.cursor
	if now := s.output.CurrentTime(); now > start {
		start = now
	}

	unit, err := s.output.PlayAt(chunk.Samples, start, s.unitEnded)
	if err != nil {
		return fmt.Errorf("failed to schedule audio chunk: %w", err)
	}

	s.cursor = start + chunk.Duration
	s.active[unit] = struct{}{}
	return nil
}

// Interrupt stops every in-flight unit and resets the cursor, so the next
// chunk schedules at the device's current time baseline. Safe to call when
// nothing is playing.
func (s *playbackScheduler) Interrupt() {
	s.mu.Lock()
	units := make([]audio.PlaybackUnit, 0, len(s.active))
	for unit := range s.active {
		units = append(units, unit)
	}
	s.active = map[audio.PlaybackUnit]struct{}{}
	s.cursor = 0
	s.mu.Unlock()

	for _, unit := range units {
		unit.Stop()
	}
}

func (s *playbackScheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// SetMuted scales the output gain to zero or unity without stopping
// playback.
func (s *playbackScheduler) SetMuted(muted bool) {
	if muted {
		s.output.SetGain(0)
		return
	}
	s.output.SetGain(1)
}

func (s *playbackScheduler) Close() error {
	s.Interrupt()
	return errors.Join(s.output.Stop(), s.output.Close())
}

func (s *playbackScheduler) unitEnded(unit audio.PlaybackUnit) {
	s.mu.Lock()
	if _, ok := s.active[unit]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.active, unit)
	drained := len(s.active) == 0
	onDrained := s.onDrained
	s.mu.Unlock()

	if drained && onDrained != nil {
		onDrained()
	}
}
