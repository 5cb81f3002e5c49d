package stt

import "context"

// Transcriber defines the interface for speech-to-text implementations
type Transcriber interface {
	// Transcribe returns the text spoken in a WAV payload. Audio that holds no
	// recognizable speech, or that cannot be decoded, yields "" and a nil error.
	Transcribe(ctx context.Context, wav []byte) (string, error)

	// Close closes the client and cleans up resources
	Close() error
}
