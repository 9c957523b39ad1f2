package audio

import "fmt"

const (
	// CaptureSampleRate is the sample rate the remote session expects for
	// microphone audio.
	CaptureSampleRate = 16000
	// PlaybackSampleRate is the sample rate of synthesized speech received
	// from the remote session.
	PlaybackSampleRate = 24000

	// CaptureFrameSize is the fixed number of samples per outbound frame.
	CaptureFrameSize = 4096

	DefaultChannels = 1
	DefaultFormat   = "linear16"
)

func CaptureEncodingInfo() EncodingInfo {
	return EncodingInfo{
		SampleRate: CaptureSampleRate,
		Channels:   DefaultChannels,
		Format:     EncodingLinear16,
	}
}

func PlaybackEncodingInfo() EncodingInfo {
	return EncodingInfo{
		SampleRate: PlaybackSampleRate,
		Channels:   DefaultChannels,
		Format:     EncodingLinear16,
	}
}

type EncodingInfo struct {
	SampleRate int
	Channels   int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Channels == 0 || e.Format.Name() == ""
}

// MimeType renders the encoding as the wire mime type the session transport
// expects, e.g. "audio/pcm;rate=16000".
func (e EncodingInfo) MimeType() string {
	return fmt.Sprintf("audio/pcm;rate=%d", e.SampleRate)
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	}
	return -1
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)
