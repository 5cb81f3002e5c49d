package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"sync/atomic"
	"time"
)

// ErrDevice marks a microphone or speaker failure. It is fatal for the session.
var ErrDevice = errors.New("audio device unavailable")

// Source defines the interface for microphone capture implementations
type Source interface {
	// Initialize initializes the audio system
	Initialize() error

	// Terminate terminates the audio system
	Terminate()

	// Open opens the audio stream with configured parameters
	Open() error

	// Close closes the audio stream
	Close() error

	// StartCapture captures fixed-size frames and offers them to the provided channel.
	// It never blocks on the channel: when the consumer lags, frames are dropped.
	// The method blocks until the context is cancelled or the device fails.
	StartCapture(ctx context.Context, frames chan<- Frame) error

	// Dropped returns the number of frames discarded because the channel was full
	Dropped() uint64
}

// Config describes the capture stream.
type Config struct {
	SampleRate      float64
	FramesPerBuffer int
	InputChannels   int
}

func GetDefaultConfig() Config {
	return Config{
		SampleRate:      16000,
		FramesPerBuffer: 4096,
		InputChannels:   1,
	}
}

// Frame is one fixed-size block of mono 16-bit samples. It must not be
// modified after it has been handed to a consumer.
type Frame struct {
	Samples   []int16
	Timestamp time.Time
}

// Bytes renders the frame as 16-bit little-endian PCM.
func (f Frame) Bytes() []byte {
	return SamplesToBytes(f.Samples)
}

// Duration returns how much audio the frame holds at sampleRate.
func (f Frame) Duration(sampleRate int) time.Duration {
	return SamplesDuration(len(f.Samples), sampleRate)
}

// SamplesDuration converts a sample count to a duration.
func SamplesDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(sampleRate)
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToSamples converts little-endian 16-bit PCM to samples. A trailing odd byte is ignored.
func BytesToSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
	}
	return samples
}

// frameClock stamps frames with the capture start time plus the duration of
// everything delivered before them, so timestamps follow capture order even
// when the callback is delayed.
type frameClock struct {
	start      time.Time
	sampleRate int
	delivered  int64
}

func newFrameClock(start time.Time, sampleRate int) *frameClock {
	return &frameClock{start: start, sampleRate: sampleRate}
}

// next copies samples into a new Frame and advances the clock.
func (c *frameClock) next(samples []int16) Frame {
	buf := make([]int16, len(samples))
	copy(buf, samples)
	ts := c.start.Add(SamplesDuration(int(c.delivered), c.sampleRate))
	c.delivered += int64(len(samples))
	return Frame{Samples: buf, Timestamp: ts}
}

// offer performs a non-blocking send and counts the frame as dropped when the
// channel is full.
func offer(frames chan<- Frame, f Frame, dropped *atomic.Uint64) {
	select {
	case frames <- f:
	default:
		dropped.Add(1)
	}
}
