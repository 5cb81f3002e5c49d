// Package turn splits the microphone stream into utterances and detects when
// the user talks over a reply.
package turn

import (
	"time"

	"github.com/d1nch8g/voxloop/audio"
	"github.com/d1nch8g/voxloop/vad"
)

// State is the segmenter mode. Waiting for silence to be confirmed is
// Recording with the silence timer set.
type State int

const (
	Idle State = iota
	Recording
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	default:
		return "unknown"
	}
}

const (
	DefaultSilenceDuration = 1500 * time.Millisecond
	DefaultMinBytes        = 1000
)

// Config holds segmentation parameters.
type Config struct {
	SampleRate int

	// SilenceDuration is how long trailing silence must last before the
	// utterance is finalized.
	SilenceDuration time.Duration

	// MinBytes is the smallest utterance, in PCM bytes, forwarded to the
	// pipeline. Shorter ones are treated as noise.
	MinBytes int

	// MaxDuration caps an utterance. Zero leaves recording unbounded.
	MaxDuration time.Duration
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.SilenceDuration <= 0 {
		c.SilenceDuration = DefaultSilenceDuration
	}
	if c.MinBytes <= 0 {
		c.MinBytes = DefaultMinBytes
	}
	return c
}

// Segmenter turns a frame stream into utterances. It is not safe for
// concurrent use; the orchestrator drives it from a single goroutine.
type Segmenter struct {
	cfg      Config
	detector vad.Detector

	state        State
	current      *Utterance
	silenceStart time.Time
	discarded    int
}

func NewSegmenter(cfg Config, detector vad.Detector) *Segmenter {
	return &Segmenter{cfg: cfg.withDefaults(), detector: detector}
}

func (s *Segmenter) State() State {
	return s.state
}

// Discarded returns how many utterances were dropped for being too short.
func (s *Segmenter) Discarded() int {
	return s.discarded
}

// Process feeds one frame. It returns the utterance and true when this frame
// ended a turn with enough audio to be worth answering.
func (s *Segmenter) Process(f audio.Frame) (*Utterance, bool) {
	speech := s.detector.IsSpeech(f)

	if s.state == Idle {
		if speech {
			s.Begin(f)
		}
		return nil, false
	}

	if speech {
		s.silenceStart = time.Time{}
	} else {
		if s.silenceStart.IsZero() {
			s.silenceStart = f.Timestamp
		} else if f.Timestamp.Sub(s.silenceStart) > s.cfg.SilenceDuration {
			return s.finish()
		}
	}

	s.current.append(f)

	if s.cfg.MaxDuration > 0 && s.current.Duration(s.cfg.SampleRate) >= s.cfg.MaxDuration {
		return s.finish()
	}
	return nil, false
}

// Begin opens a new utterance seeded with f, discarding any utterance in
// progress. It is used when a barge-in frame starts the next turn.
func (s *Segmenter) Begin(f audio.Frame) {
	s.state = Recording
	s.current = newUtterance(f)
	s.silenceStart = time.Time{}
}

// Reset drops any utterance in progress.
func (s *Segmenter) Reset() {
	s.state = Idle
	s.current = nil
	s.silenceStart = time.Time{}
}

func (s *Segmenter) finish() (*Utterance, bool) {
	u := s.current
	s.Reset()
	u.finalize()
	if u.Len() < s.cfg.MinBytes {
		s.discarded++
		return nil, false
	}
	return u, true
}
