package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// ErrUnsupportedFormat is returned by Decode for payloads that are neither
// 16-bit PCM WAV nor MP3.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// PCM is decoded, interleaved 16-bit audio ready for an output device.
type PCM struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Duration returns the playback length of p.
func (p PCM) Duration() time.Duration {
	if p.Channels <= 0 {
		return 0
	}
	return SamplesDuration(len(p.Samples)/p.Channels, p.SampleRate)
}

// Decode sniffs the container of payload and decodes it.
func Decode(payload []byte) (PCM, error) {
	switch {
	case len(payload) == 0:
		return PCM{}, fmt.Errorf("%w: empty payload", ErrUnsupportedFormat)
	case bytes.HasPrefix(payload, []byte("RIFF")):
		return decodeWAV(payload)
	case isMP3(payload):
		return decodeMP3(payload)
	default:
		return PCM{}, ErrUnsupportedFormat
	}
}

func isMP3(payload []byte) bool {
	if bytes.HasPrefix(payload, []byte("ID3")) {
		return true
	}
	// MPEG frame sync: 11 set bits
	return len(payload) > 1 && payload[0] == 0xFF && payload[1]&0xE0 == 0xE0
}

// decodeMP3 returns stereo PCM: go-mp3 always emits two 16-bit channels.
func decodeMP3(payload []byte) (PCM, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(payload))
	if err != nil {
		return PCM{}, fmt.Errorf("mp3 decoder: %w", err)
	}
	raw, err := io.ReadAll(decoder)
	if err != nil {
		return PCM{}, fmt.Errorf("decode mp3: %w", err)
	}
	return PCM{
		Samples:    BytesToSamples(raw),
		SampleRate: decoder.SampleRate(),
		Channels:   2,
	}, nil
}
