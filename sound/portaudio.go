package sound

import (
	"errors"
	"fmt"

	"github.com/d1nch8g/voxloop/audio"
	"github.com/gordonklaus/portaudio"
)

type PortaudioOutput struct {
	stream      *portaudio.Stream
	audioBuffer []int16
	config      Config
}

var _ Output = (*PortaudioOutput)(nil)

func NewPortaudioOutput(config Config) *PortaudioOutput {
	return &PortaudioOutput{config: config}
}

func (p *PortaudioOutput) Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: portaudio init: %v", audio.ErrDevice, err)
	}
	return nil
}

func (p *PortaudioOutput) Open(format Format) error {
	if format.Channels <= 0 || format.SampleRate <= 0 {
		return fmt.Errorf("invalid playback format %+v", format)
	}
	p.audioBuffer = make([]int16, p.config.FramesPerBuffer*format.Channels)
	stream, err := portaudio.OpenDefaultStream(
		0,
		format.Channels,
		float64(format.SampleRate),
		p.config.FramesPerBuffer,
		p.audioBuffer,
	)
	if err != nil {
		return fmt.Errorf("%w: open output stream: %v", audio.ErrDevice, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("%w: start output stream: %v", audio.ErrDevice, err)
	}
	p.stream = stream
	return nil
}

// Write plays one buffer. Short input is padded with silence; anything past
// the buffer size is ignored.
func (p *PortaudioOutput) Write(samples []int16) error {
	if p.stream == nil {
		return errors.New("output stream not opened")
	}
	n := copy(p.audioBuffer, samples)
	clear(p.audioBuffer[n:])

	if err := p.stream.Write(); err != nil {
		if errors.Is(err, portaudio.OutputUnderflowed) {
			return nil
		}
		return fmt.Errorf("%w: write output stream: %v", audio.ErrDevice, err)
	}
	return nil
}

func (p *PortaudioOutput) Close() error {
	if p.stream == nil {
		return nil
	}
	stream := p.stream
	p.stream = nil
	return errors.Join(stream.Stop(), stream.Close())
}

func (p *PortaudioOutput) Terminate() {
	portaudio.Terminate()
}
