package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/d1nch8g/voxloop/answer"
	"github.com/d1nch8g/voxloop/config"
	"github.com/d1nch8g/voxloop/stt"
	"github.com/d1nch8g/voxloop/tts"
)

type backends struct {
	transcriber stt.Transcriber
	answers     answer.Pipeline
	synthesizer tts.Synthesizer
}

func (b *backends) Close() error {
	var errs []error
	if b.transcriber != nil {
		errs = append(errs, b.transcriber.Close())
	}
	if b.synthesizer != nil {
		errs = append(errs, b.synthesizer.Close())
	}
	return errors.Join(errs...)
}

// buildBackends creates the configured speech, answer and voice providers.
// Already created providers are closed if a later one fails.
func buildBackends(cfg *config.Config) (*backends, error) {
	b := &backends{}
	var err error

	if b.transcriber, err = newTranscriber(cfg); err != nil {
		return nil, fmt.Errorf("create %s transcriber: %w", cfg.STT.Provider, err)
	}
	slog.Info("provider created", "kind", "stt", "name", cfg.STT.Provider)

	if b.answers, err = newAnswerPipeline(cfg); err != nil {
		b.Close()
		return nil, fmt.Errorf("create %s answer pipeline: %w", cfg.Answer.Provider, err)
	}
	slog.Info("provider created", "kind", "answer", "name", cfg.Answer.Provider)

	if b.synthesizer, err = newSynthesizer(cfg); err != nil {
		b.Close()
		return nil, fmt.Errorf("create %s synthesizer: %w", cfg.TTS.Provider, err)
	}
	slog.Info("provider created", "kind", "tts", "name", cfg.TTS.Provider)

	return b, nil
}

func newTranscriber(cfg *config.Config) (stt.Transcriber, error) {
	if cfg.STT.Provider == "whisper" {
		c, err := stt.NewWhisperClient(stt.WhisperConfig{
			ServerURL: cfg.STT.ServerURL,
			Language:  cfg.STT.Language,
			Timeout:   cfg.STT.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	c, err := stt.NewYandexSTTClient(stt.YandexConfig{
		ApiKey:   cfg.Yandex.ApiKey,
		IamToken: cfg.Yandex.IamToken,
		FolderID: cfg.Yandex.FolderID,
		Language: cfg.STT.Language,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func newAnswerPipeline(cfg *config.Config) (answer.Pipeline, error) {
	a := cfg.Answer
	switch a.Provider {
	case "openai":
		c, err := answer.NewOpenAIClient(answer.OpenAIConfig{
			APIKey:       a.APIKey,
			BaseURL:      a.BaseURL,
			Model:        a.Model,
			Temperature:  a.Temperature,
			SystemPrompt: a.SystemPrompt,
			Timeout:      a.Timeout,
			MaxRetries:   a.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case "rag":
		c, err := answer.NewRAGClient(a.BaseURL, a.Timeout)
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	c, err := answer.NewYandexGPTClient(answer.YandexGPTConfig{
		FolderID:     cfg.Yandex.FolderID,
		IamToken:     cfg.Yandex.IamToken,
		ApiKey:       cfg.Yandex.ApiKey,
		Model:        a.Model,
		Temperature:  a.Temperature,
		MaxTokens:    a.MaxTokens,
		SystemPrompt: a.SystemPrompt,
		Endpoint:     a.BaseURL,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func newSynthesizer(cfg *config.Config) (tts.Synthesizer, error) {
	if cfg.TTS.Provider == "coqui" {
		c, err := tts.NewCoquiClient(tts.CoquiConfig{
			ServerURL: cfg.TTS.ServerURL,
			SpeakerID: cfg.TTS.SpeakerID,
			Language:  cfg.TTS.Language,
			Timeout:   cfg.TTS.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	opts := tts.GetDefaultSynthesisOptions()
	if cfg.TTS.Voice != "" {
		opts.Voice = cfg.TTS.Voice
	}
	if cfg.TTS.Speed > 0 {
		opts.Speed = cfg.TTS.Speed
	}
	if cfg.TTS.Model != "" {
		opts.Model = cfg.TTS.Model
	}
	c, err := tts.NewYandexTTSClient(tts.YandexConfig{
		ApiKey:   cfg.Yandex.ApiKey,
		FolderID: cfg.Yandex.FolderID,
		Options:  opts,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
