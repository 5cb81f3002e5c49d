package audio

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
)

type PortaudioSource struct {
	stream      *portaudio.Stream
	audioBuffer []int16
	config      Config
	dropped     atomic.Uint64
}

// Ensure PortaudioSource implements Source interface
var _ Source = (*PortaudioSource)(nil)

func NewPortaudioSource(config Config) *PortaudioSource {
	return &PortaudioSource{
		config:      config,
		audioBuffer: make([]int16, config.FramesPerBuffer),
	}
}

func (a *PortaudioSource) Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: initialize portaudio: %v", ErrDevice, err)
	}
	return nil
}

func (a *PortaudioSource) Terminate() {
	portaudio.Terminate()
}

func (a *PortaudioSource) Open() error {
	stream, err := portaudio.OpenDefaultStream(
		a.config.InputChannels,
		0,
		a.config.SampleRate,
		a.config.FramesPerBuffer,
		a.audioBuffer,
	)
	if err != nil {
		return fmt.Errorf("%w: open input stream: %v", ErrDevice, err)
	}
	a.stream = stream
	return nil
}

func (a *PortaudioSource) Close() error {
	if a.stream != nil {
		return a.stream.Close()
	}
	return nil
}

func (a *PortaudioSource) Dropped() uint64 {
	return a.dropped.Load()
}

func (a *PortaudioSource) StartCapture(ctx context.Context, frames chan<- Frame) error {
	if a.stream == nil {
		return fmt.Errorf("%w: stream not opened", ErrDevice)
	}

	if err := a.stream.Start(); err != nil {
		return fmt.Errorf("%w: start input stream: %v", ErrDevice, err)
	}
	defer a.stream.Stop()

	clock := newFrameClock(time.Now(), int(a.config.SampleRate))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := a.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				// the buffer still holds a full block; keep the stream running
				a.dropped.Add(1)
				continue
			}
			return fmt.Errorf("%w: read input stream: %v", ErrDevice, err)
		}

		offer(frames, clock.next(a.audioBuffer), &a.dropped)
	}
}
