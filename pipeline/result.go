package pipeline

import (
	"errors"
)

var (
	ErrInvalidAudio = errors.New("empty or oversize audio")
	ErrNoSpeech     = errors.New("no speech recognized")
	ErrAnswer       = errors.New("answer generation failed")
	ErrSynthesis    = errors.New("speech synthesis failed")
	ErrTransport    = errors.New("pipeline transport failed")
)

// Kind says what a Result holds.
type Kind int

const (
	// Answered carries synthesized audio for a real answer.
	Answered Kind = iota
	// Fallback carries the pre-rendered "could not understand" reply or a
	// spoken apology.
	Fallback
	// Failed carries no audio; the turn ends silently.
	Failed
)

var kindNames = map[Kind]string{
	Answered: "answered",
	Fallback: "fallback",
	Failed:   "failed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// Reason explains a Fallback or Failed result.
type Reason int

const (
	None Reason = iota
	InvalidAudio
	NoSpeech
	AnswerFailed
	Synthesis
	Transport
)

var reasonNames = map[Reason]string{
	None:         "none",
	InvalidAudio: "invalid_audio",
	NoSpeech:     "no_speech",
	AnswerFailed: "answer_failed",
	Synthesis:    "synthesis",
	Transport:    "transport",
}

func (r Reason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return "unknown"
}

func ParseReason(s string) (Reason, bool) {
	for r, name := range reasonNames {
		if name == s {
			return r, true
		}
	}
	return None, false
}

// Result is the outcome of processing one utterance.
type Result struct {
	Kind   Kind
	Reason Reason

	// Audio is the reply to play, usually WAV. Empty for Failed results and
	// for fallbacks that could not be rendered.
	Audio []byte

	Transcript string
	Answer     string
	Sources    []string

	// Err records the underlying failure for logging; it never needs handling.
	Err error
}

func (r Result) Playable() bool {
	return len(r.Audio) > 0
}
