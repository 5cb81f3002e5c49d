package sound

import (
	"errors"
	"fmt"

	"github.com/d1nch8g/voxloop/audio"
	"github.com/gen2brain/malgo"
)

// MalgoOutput plays through the default miniaudio playback device. Write hands
// buffers to the device callback through a single-slot channel, so at most one
// buffer is queued ahead of what is playing.
type MalgoOutput struct {
	mctx   *malgo.AllocatedContext
	device *malgo.Device
	chunks chan []byte
	closed chan struct{}
}

var _ Output = (*MalgoOutput)(nil)

func NewMalgoOutput() *MalgoOutput {
	return &MalgoOutput{}
}

func (m *MalgoOutput) Initialize() error {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("%w: malgo init: %v", audio.ErrDevice, err)
	}
	m.mctx = mctx
	return nil
}

func (m *MalgoOutput) Terminate() {
	if m.mctx != nil {
		_ = m.mctx.Uninit()
		m.mctx.Free()
		m.mctx = nil
	}
}

func (m *MalgoOutput) Open(format Format) error {
	if m.mctx == nil {
		return fmt.Errorf("%w: malgo context not initialized", audio.ErrDevice)
	}
	if format.Channels <= 0 || format.SampleRate <= 0 {
		return fmt.Errorf("invalid playback format %+v", format)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	chunks := make(chan []byte, 1)
	var pending []byte

	onSendFrames := func(pOutput, _ []byte, _ uint32) {
		for filled := 0; filled < len(pOutput); {
			if len(pending) == 0 {
				select {
				case pending = <-chunks:
				default:
					clear(pOutput[filled:])
					return
				}
			}
			n := copy(pOutput[filled:], pending)
			pending = pending[n:]
			filled += n
		}
	}

	device, err := malgo.InitDevice(m.mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSendFrames})
	if err != nil {
		return fmt.Errorf("%w: init playback device: %v", audio.ErrDevice, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("%w: start playback device: %v", audio.ErrDevice, err)
	}

	m.device = device
	m.chunks = chunks
	m.closed = make(chan struct{})
	return nil
}

func (m *MalgoOutput) Write(samples []int16) error {
	if m.device == nil {
		return errors.New("playback device not opened")
	}
	select {
	case m.chunks <- audio.SamplesToBytes(samples):
		return nil
	case <-m.closed:
		return errors.New("playback device closed")
	}
}

func (m *MalgoOutput) Close() error {
	if m.device == nil {
		return nil
	}
	close(m.closed)
	err := m.device.Stop()
	m.device.Uninit()
	m.device = nil
	return err
}
