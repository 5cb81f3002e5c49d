// Package answer turns a transcribed question into answer text.
package answer

import (
	"context"
	"errors"
	"strings"
)

// DefaultSystemPrompt keeps replies short enough to be spoken.
const DefaultSystemPrompt = "You are a voice assistant. Only answer from what you know to be true. " +
	"If you do not know the answer, say so. " +
	"Keep responses concise (under 3 sentences) for natural speech."

// ErrEmptyAnswer is returned when a backend replies without any text.
var ErrEmptyAnswer = errors.New("empty answer")

type Answer struct {
	Text    string
	Sources []string
}

// Pipeline defines the interface for answer generation implementations
type Pipeline interface {
	Answer(ctx context.Context, question string) (Answer, error)
}

// Safe asks p and falls back to apology when it fails or returns nothing.
// The returned Answer is always speakable; the error reports why the
// fallback was used.
func Safe(ctx context.Context, p Pipeline, question, apology string) (Answer, error) {
	a, err := p.Answer(ctx, question)
	if err == nil && strings.TrimSpace(a.Text) == "" {
		err = ErrEmptyAnswer
	}
	if err != nil {
		return Answer{Text: apology}, err
	}
	a.Text = strings.TrimSpace(a.Text)
	return a, nil
}
