package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrMalformedPayload = errors.New("audio payload length is not a multiple of the sample size")

// Chunk is one decoded unit of playable audio.
type Chunk struct {
	Samples  []float32
	Duration float64
}

// FloatsToInt16Bytes converts normalized samples to little-endian 16-bit PCM
// by scaling with 32768 and truncating.
//
// Input outside [-1, 1) wraps the way plain scaled truncation does. Device
// input is assumed normalized, so the wraparound is tolerated rather than
// clamped.
func FloatsToInt16Bytes(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		value := int16(int32(sample * 32768))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(value))
	}
	return out
}

// Int16BytesToFloats reinterprets little-endian 16-bit PCM as normalized
// samples.
func Int16BytesToFloats(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%d bytes: %w", len(data), ErrMalformedPayload)
	}

	samples := make([]float32, len(data)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768
	}
	return samples, nil
}

// EncodeBase64 renders raw bytes in the transport-safe encoding used for
// audio payloads on the wire.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func DecodeBase64(payload string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(payload)
}

// DecodeChunk reinterprets a raw payload as PCM at the given encoding and
// computes its playable duration.
func DecodeChunk(data []byte, info EncodingInfo) (Chunk, error) {
	if info.IsZero() {
		return Chunk{}, fmt.Errorf("cannot decode chunk without encoding info")
	}

	samples, err := Int16BytesToFloats(data)
	if err != nil {
		return Chunk{}, fmt.Errorf("failed to decode audio chunk: %w", err)
	}

	frames := len(samples) / info.Channels
	return Chunk{
		Samples:  samples,
		Duration: float64(frames) / float64(info.SampleRate),
	}, nil
}
