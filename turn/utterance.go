package turn

import (
	"time"

	"github.com/d1nch8g/voxloop/audio"
)

// Utterance is the run of frames captured between speech onset and end of
// turn. Only the Segmenter appends to it; once finalized it is read-only.
type Utterance struct {
	frames    []audio.Frame
	samples   int
	finalized bool
}

func newUtterance(first audio.Frame) *Utterance {
	u := &Utterance{}
	u.append(first)
	return u
}

func (u *Utterance) append(f audio.Frame) {
	if u.finalized {
		return
	}
	u.frames = append(u.frames, f)
	u.samples += len(f.Samples)
}

func (u *Utterance) finalize() {
	u.finalized = true
}

// Finalized reports whether the utterance has been handed off.
func (u *Utterance) Finalized() bool {
	return u.finalized
}

// Frames returns the frames in capture order. The slice is a copy; the frames
// themselves are shared and must not be modified.
func (u *Utterance) Frames() []audio.Frame {
	out := make([]audio.Frame, len(u.frames))
	copy(out, u.frames)
	return out
}

// Start returns the capture time of the first frame.
func (u *Utterance) Start() time.Time {
	if len(u.frames) == 0 {
		return time.Time{}
	}
	return u.frames[0].Timestamp
}

// Samples concatenates all frames.
func (u *Utterance) Samples() []int16 {
	out := make([]int16, 0, u.samples)
	for _, f := range u.frames {
		out = append(out, f.Samples...)
	}
	return out
}

// Len returns the size of the utterance as 16-bit PCM in bytes.
func (u *Utterance) Len() int {
	return u.samples * 2
}

// PCM renders the utterance as 16-bit little-endian PCM.
func (u *Utterance) PCM() []byte {
	return audio.SamplesToBytes(u.Samples())
}

// WAV renders the utterance as a mono WAV file.
func (u *Utterance) WAV(sampleRate int) ([]byte, error) {
	return audio.EncodeWAV(u.Samples(), sampleRate)
}

// Duration returns the amount of audio held at sampleRate.
func (u *Utterance) Duration(sampleRate int) time.Duration {
	return audio.SamplesDuration(u.samples, sampleRate)
}
