package tts

import "context"

// Synthesizer defines the interface for text-to-speech synthesis
type Synthesizer interface {
	// Synthesize renders text as a complete audio file, WAV unless the
	// backend is configured otherwise.
	Synthesize(ctx context.Context, text string) ([]byte, error)
	Close() error
}

// SynthesisOptions represents the configuration for speech synthesis
type SynthesisOptions struct {
	Voice  string
	Speed  float64
	Volume float64
	Model  string
}
