package audio

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
)

// MalgoSource captures from the default miniaudio capture device. The device
// callback slices incoming audio into FramesPerBuffer-sized frames.
type MalgoSource struct {
	config  Config
	mctx    *malgo.AllocatedContext
	dropped atomic.Uint64
}

var _ Source = (*MalgoSource)(nil)

func NewMalgoSource(config Config) *MalgoSource {
	return &MalgoSource{config: config}
}

func (m *MalgoSource) Initialize() error {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("%w: malgo init: %v", ErrDevice, err)
	}
	m.mctx = mctx
	return nil
}

func (m *MalgoSource) Terminate() {
	if m.mctx != nil {
		_ = m.mctx.Uninit()
		m.mctx.Free()
		m.mctx = nil
	}
}

// Open only validates the configuration; miniaudio devices are bound to their
// data callback, so the device itself is created in StartCapture.
func (m *MalgoSource) Open() error {
	if m.mctx == nil {
		return fmt.Errorf("%w: malgo context not initialized", ErrDevice)
	}
	if m.config.FramesPerBuffer <= 0 || m.config.SampleRate <= 0 {
		return fmt.Errorf("%w: invalid capture config", ErrDevice)
	}
	return nil
}

func (m *MalgoSource) Close() error {
	return nil
}

func (m *MalgoSource) Dropped() uint64 {
	return m.dropped.Load()
}

func (m *MalgoSource) StartCapture(ctx context.Context, frames chan<- Frame) error {
	if m.mctx == nil {
		return fmt.Errorf("%w: malgo context not initialized", ErrDevice)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(m.config.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	size := m.config.FramesPerBuffer
	clock := newFrameClock(time.Now(), int(m.config.SampleRate))
	pending := make([]int16, 0, size*2)

	onRecvFrames := func(_, pSample []byte, framecount uint32) {
		if framecount == 0 {
			return
		}
		n := int(framecount) * int(deviceConfig.Capture.Channels)
		if len(pSample) < n*2 {
			n = len(pSample) / 2
		}
		pending = append(pending, BytesToSamples(pSample[:n*2])...)
		for len(pending) >= size {
			offer(frames, clock.next(pending[:size]), &m.dropped)
			pending = append(pending[:0], pending[size:]...)
		}
	}

	device, err := malgo.InitDevice(m.mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onRecvFrames})
	if err != nil {
		return fmt.Errorf("%w: init capture device: %v", ErrDevice, err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("%w: start capture device: %v", ErrDevice, err)
	}

	<-ctx.Done()
	_ = device.Stop()
	return ctx.Err()
}
