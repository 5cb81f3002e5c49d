// Package pipeline runs a finished utterance through transcription, answer
// generation and speech synthesis, degrading to spoken fallbacks instead of
// failing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/d1nch8g/voxloop/answer"
	"github.com/d1nch8g/voxloop/observe"
	"github.com/d1nch8g/voxloop/stt"
	"github.com/d1nch8g/voxloop/tts"
)

const (
	DefaultFallbackText = "I couldn't understand the audio. Please try again."
	DefaultApologyText  = "Sorry, I'm having trouble answering right now. Please try again later."
)

// Processor turns an utterance into something to play.
type Processor interface {
	Process(ctx context.Context, wav []byte) Result
}

type Config struct {
	MaxAudioBytes     int
	TranscribeTimeout time.Duration
	AnswerTimeout     time.Duration
	SynthesizeTimeout time.Duration
	FallbackText      string
	ApologyText       string
}

func GetDefaultConfig() Config {
	return Config{
		MaxAudioBytes:     10 * 1024 * 1024,
		TranscribeTimeout: 30 * time.Second,
		AnswerTimeout:     60 * time.Second,
		SynthesizeTimeout: 30 * time.Second,
		FallbackText:      DefaultFallbackText,
		ApologyText:       DefaultApologyText,
	}
}

func (c Config) withDefaults() Config {
	d := GetDefaultConfig()
	if c.MaxAudioBytes <= 0 {
		c.MaxAudioBytes = d.MaxAudioBytes
	}
	if c.TranscribeTimeout <= 0 {
		c.TranscribeTimeout = d.TranscribeTimeout
	}
	if c.AnswerTimeout <= 0 {
		c.AnswerTimeout = d.AnswerTimeout
	}
	if c.SynthesizeTimeout <= 0 {
		c.SynthesizeTimeout = d.SynthesizeTimeout
	}
	if c.FallbackText == "" {
		c.FallbackText = d.FallbackText
	}
	if c.ApologyText == "" {
		c.ApologyText = d.ApologyText
	}
	return c
}

type Option func(*Client)

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// Client is the local Processor. It is safe for concurrent use.
type Client struct {
	transcriber stt.Transcriber
	answers     answer.Pipeline
	synth       tts.Synthesizer
	config      Config
	logger      *slog.Logger
	metrics     *observe.Metrics

	mu       sync.RWMutex
	fallback []byte
}

var _ Processor = (*Client)(nil)

func NewClient(transcriber stt.Transcriber, answers answer.Pipeline, synth tts.Synthesizer, config Config, opts ...Option) *Client {
	c := &Client{
		transcriber: transcriber,
		answers:     answers,
		synth:       synth,
		config:      config.withDefaults(),
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Prepare renders the fallback reply so invalid audio can be answered
// without calling any backend. It also warms the synthesizer up.
func (c *Client) Prepare(ctx context.Context) error {
	audio, err := c.synthesize(ctx, c.config.FallbackText)
	if err != nil {
		return fmt.Errorf("render fallback reply: %w", err)
	}
	c.mu.Lock()
	c.fallback = audio
	c.mu.Unlock()
	return nil
}

// FallbackReady reports whether Prepare has succeeded.
func (c *Client) FallbackReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.fallback) > 0
}

func (c *Client) preparedFallback() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fallback
}

// Process never returns an error: every failure is folded into the Result.
func (c *Client) Process(ctx context.Context, wav []byte) Result {
	res := c.process(ctx, wav)
	c.metrics.RecordResult(ctx, res.Kind.String(), res.Reason.String())
	return res
}

func (c *Client) process(ctx context.Context, wav []byte) Result {
	if len(wav) == 0 || len(wav) > c.config.MaxAudioBytes {
		return Result{
			Kind:   Fallback,
			Reason: InvalidAudio,
			Audio:  c.preparedFallback(),
			Answer: c.config.FallbackText,
			Err:    fmt.Errorf("%w: %d bytes", ErrInvalidAudio, len(wav)),
		}
	}

	text, err := c.transcribe(ctx, wav)
	if err != nil || text == "" {
		if err == nil {
			err = ErrNoSpeech
		} else {
			err = fmt.Errorf("%w: %w", ErrNoSpeech, err)
		}
		return c.fallbackResult(ctx, err)
	}

	res := Result{Kind: Answered, Transcript: text}

	a, err := c.answer(ctx, text)
	if err != nil {
		res.Kind = Fallback
		res.Reason = AnswerFailed
		res.Err = fmt.Errorf("%w: %w", ErrAnswer, err)
		c.logger.Warn("answer failed, speaking apology", "error", err)
	}
	res.Answer = a.Text
	res.Sources = a.Sources

	audio, err := c.synthesize(ctx, a.Text)
	if err != nil {
		return Result{
			Kind:       Failed,
			Reason:     Synthesis,
			Transcript: text,
			Answer:     a.Text,
			Sources:    a.Sources,
			Err:        fmt.Errorf("%w: %w", ErrSynthesis, err),
		}
	}
	res.Audio = audio
	return res
}

// fallbackResult speaks the fallback phrase, rendering it now if Prepare has
// not run.
func (c *Client) fallbackResult(ctx context.Context, cause error) Result {
	res := Result{
		Kind:   Fallback,
		Reason: NoSpeech,
		Answer: c.config.FallbackText,
		Err:    cause,
	}
	if audio := c.preparedFallback(); len(audio) > 0 {
		res.Audio = audio
		return res
	}
	audio, err := c.synthesize(ctx, c.config.FallbackText)
	if err != nil {
		res.Kind = Failed
		res.Reason = Synthesis
		res.Err = fmt.Errorf("%w: %w", ErrSynthesis, err)
		return res
	}
	res.Audio = audio
	return res
}

// Query answers a typed question with the same apology fallback as spoken
// turns.
func (c *Client) Query(ctx context.Context, text string) (answer.Answer, error) {
	return c.answer(ctx, strings.TrimSpace(text))
}

func (c *Client) transcribe(ctx context.Context, wav []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.TranscribeTimeout)
	defer cancel()

	start := time.Now()
	text, err := c.transcriber.Transcribe(ctx, wav)
	c.metrics.RecordStage(ctx, "transcribe", time.Since(start))
	return strings.TrimSpace(text), err
}

func (c *Client) answer(ctx context.Context, text string) (answer.Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.AnswerTimeout)
	defer cancel()

	start := time.Now()
	a, err := answer.Safe(ctx, c.answers, text, c.config.ApologyText)
	c.metrics.RecordStage(ctx, "answer", time.Since(start))
	return a, err
}

func (c *Client) synthesize(ctx context.Context, text string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.SynthesizeTimeout)
	defer cancel()

	start := time.Now()
	audio, err := c.synth.Synthesize(ctx, text)
	c.metrics.RecordStage(ctx, "synthesize", time.Since(start))
	if err == nil && len(audio) == 0 {
		err = errors.New("empty audio")
	}
	return audio, err
}
