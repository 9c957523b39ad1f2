package audio

// Input captures microphone audio and delivers it as mono float32 frames of
// [CaptureFrameSize] samples at [CaptureSampleRate].
type Input interface {
	Open() error
	Start(onFrame func(samples []float32)) error
	Stop() error
	Close() error
}

// Output renders mono float32 audio at [PlaybackSampleRate] on a shared
// timeline. The timeline clock starts at zero when the device opens and
// advances while the device runs, whether or not anything is scheduled.
type Output interface {
	Open() error

	// CurrentTime reports the timeline position in seconds.
	CurrentTime() float64

	// PlayAt schedules samples to start at the given timeline position,
	// in seconds. Positions already in the past start immediately. onEnded
	// is invoked once the unit has been rendered in full; it is not
	// invoked for units cancelled through [PlaybackUnit.Stop].
	PlayAt(samples []float32, at float64, onEnded func(unit PlaybackUnit)) (PlaybackUnit, error)

	// SetGain scales everything rendered from this point on. Zero mutes.
	SetGain(gain float32)

	Stop() error
	Close() error
}

// PlaybackUnit is a single scheduled stretch of audio.
type PlaybackUnit interface {
	// Stop cancels the unit, removing whatever has not been rendered yet
	// from the timeline.
	Stop()
}
