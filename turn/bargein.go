package turn

import (
	"github.com/d1nch8g/voxloop/audio"
	"github.com/d1nch8g/voxloop/vad"
)

// Stopper cancels whatever reply is currently playing. StopActive returns
// false when nothing was playing.
type Stopper interface {
	IsPlaying() bool
	StopActive() bool
}

// Monitor watches the microphone while a reply plays and stops playback when
// the user speaks over it.
type Monitor struct {
	detector vad.Detector
	playback Stopper
}

// NewMonitor returns a Monitor using detector, which should already carry the
// elevated barge-in threshold.
func NewMonitor(detector vad.Detector, playback Stopper) *Monitor {
	return &Monitor{detector: detector, playback: playback}
}

// Observe checks one frame. It returns true when the frame interrupted the
// active playback; playback is already cancelled when it returns.
func (m *Monitor) Observe(f audio.Frame) bool {
	if !m.playback.IsPlaying() {
		return false
	}
	if !m.detector.IsSpeech(f) {
		return false
	}
	return m.playback.StopActive()
}
