// Package vad classifies audio frames as speech or silence by their energy.
package vad

import (
	"math"

	"github.com/d1nch8g/voxloop/audio"
)

const (
	// DefaultThreshold is the normalized RMS level above which a frame counts as speech.
	DefaultThreshold = 0.02

	// DefaultBargeInMultiplier scales the base threshold while a reply is playing,
	// so room noise does not interrupt playback.
	DefaultBargeInMultiplier = 2.0
)

// RMS returns the root-mean-square amplitude of samples normalized to [0, 1].
// It returns 0 for an empty slice.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Decide reports whether frame holds speech, i.e. its RMS exceeds threshold.
func Decide(frame audio.Frame, threshold float64) bool {
	return RMS(frame.Samples) > threshold
}

// Detector binds a threshold to Decide.
type Detector struct {
	Threshold float64
}

// New returns a Detector, falling back to DefaultThreshold for non-positive values.
func New(threshold float64) Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return Detector{Threshold: threshold}
}

func (d Detector) IsSpeech(frame audio.Frame) bool {
	return Decide(frame, d.Threshold)
}

// Elevated returns a detector for barge-in with the threshold scaled by
// multiplier. Multipliers below 2 are raised to 2.
func (d Detector) Elevated(multiplier float64) Detector {
	if multiplier < DefaultBargeInMultiplier {
		multiplier = DefaultBargeInMultiplier
	}
	return Detector{Threshold: d.Threshold * multiplier}
}
