// Package config loads voxloop settings from defaults, an optional YAML file,
// a .env file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel    string         `yaml:"log_level"`
	Audio       AudioConfig    `yaml:"audio"`
	Turn        TurnConfig     `yaml:"turn"`
	Playback    PlaybackConfig `yaml:"playback"`
	Pipeline    PipelineConfig `yaml:"pipeline"`
	Yandex      YandexConfig   `yaml:"yandex"`
	STT         STTConfig      `yaml:"stt"`
	Answer      AnswerConfig   `yaml:"answer"`
	TTS         TTSConfig      `yaml:"tts"`
	Server      ServerConfig   `yaml:"server"`
	HistorySize int            `yaml:"history_size"`
}

type AudioConfig struct {
	// Backend is "portaudio" or "malgo".
	Backend    string `yaml:"backend"`
	SampleRate int    `yaml:"sample_rate"`
	// FrameSize is the number of samples per captured frame.
	FrameSize int `yaml:"frame_size"`
	QueueSize int `yaml:"queue_size"`
}

type TurnConfig struct {
	VADThreshold         float64       `yaml:"vad_threshold"`
	BargeInMultiplier    float64       `yaml:"barge_in_multiplier"`
	SilenceDuration      time.Duration `yaml:"silence_duration"`
	MinUtteranceBytes    int           `yaml:"min_utterance_bytes"`
	MaxUtteranceDuration time.Duration `yaml:"max_utterance_duration"`
}

type PlaybackConfig struct {
	Backend         string `yaml:"backend"`
	FramesPerBuffer int    `yaml:"frames_per_buffer"`
}

type PipelineConfig struct {
	// Mode is "local" to run the collaborators in process or "remote" to
	// send utterances to another voxloop server.
	Mode              string        `yaml:"mode"`
	RemoteURL         string        `yaml:"remote_url"`
	RemoteTimeout     time.Duration `yaml:"remote_timeout"`
	MaxAudioBytes     int           `yaml:"max_audio_bytes"`
	TranscribeTimeout time.Duration `yaml:"transcribe_timeout"`
	AnswerTimeout     time.Duration `yaml:"answer_timeout"`
	SynthesizeTimeout time.Duration `yaml:"synthesize_timeout"`
	FallbackText      string        `yaml:"fallback_text"`
	ApologyText       string        `yaml:"apology_text"`
}

// YandexConfig holds Yandex Cloud credentials shared by SpeechKit and YandexGPT.
type YandexConfig struct {
	ApiKey   string `yaml:"api_key"`
	IamToken string `yaml:"iam_token"`
	FolderID string `yaml:"folder_id"`
}

type STTConfig struct {
	// Provider is "yandex" or "whisper".
	Provider  string        `yaml:"provider"`
	Language  string        `yaml:"language"`
	ServerURL string        `yaml:"server_url"`
	Timeout   time.Duration `yaml:"timeout"`
}

type AnswerConfig struct {
	// Provider is "yandexgpt", "openai" or "rag".
	Provider     string        `yaml:"provider"`
	Model        string        `yaml:"model"`
	Temperature  float64       `yaml:"temperature"`
	MaxTokens    int           `yaml:"max_tokens"`
	SystemPrompt string        `yaml:"system_prompt"`
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
}

type TTSConfig struct {
	// Provider is "yandex" or "coqui".
	Provider  string        `yaml:"provider"`
	Voice     string        `yaml:"voice"`
	Speed     float64       `yaml:"speed"`
	Model     string        `yaml:"model"`
	ServerURL string        `yaml:"server_url"`
	SpeakerID string        `yaml:"speaker_id"`
	Language  string        `yaml:"language"`
	Timeout   time.Duration `yaml:"timeout"`
}

type ServerConfig struct {
	ListenAddr  string   `yaml:"listen_addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

var (
	logLevels       = []string{"debug", "info", "warn", "error"}
	audioBackends   = []string{"portaudio", "malgo"}
	pipelineModes   = []string{"local", "remote"}
	sttProviders    = []string{"yandex", "whisper"}
	answerProviders = []string{"yandexgpt", "openai", "rag"}
	ttsProviders    = []string{"yandex", "coqui"}
)

func Default() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			Backend:    "portaudio",
			SampleRate: 16000,
			FrameSize:  320,
			QueueSize:  64,
		},
		Turn: TurnConfig{
			VADThreshold:      0.02,
			BargeInMultiplier: 2.0,
			SilenceDuration:   1500 * time.Millisecond,
			MinUtteranceBytes: 1000,
		},
		Playback: PlaybackConfig{
			Backend:         "portaudio",
			FramesPerBuffer: 1024,
		},
		Pipeline: PipelineConfig{
			Mode:              "local",
			RemoteTimeout:     2 * time.Minute,
			MaxAudioBytes:     10 * 1024 * 1024,
			TranscribeTimeout: 30 * time.Second,
			AnswerTimeout:     60 * time.Second,
			SynthesizeTimeout: 30 * time.Second,
		},
		STT: STTConfig{
			Provider: "yandex",
			Language: "en-US",
			Timeout:  30 * time.Second,
		},
		Answer: AnswerConfig{
			Provider:    "yandexgpt",
			Temperature: 0.6,
			MaxTokens:   500,
			Timeout:     60 * time.Second,
			MaxRetries:  2,
		},
		TTS: TTSConfig{
			Provider: "yandex",
			Voice:    "john",
			Speed:    1.0,
			Timeout:  30 * time.Second,
		},
		Server: ServerConfig{
			ListenAddr:  ":8000",
			CORSOrigins: []string{"*"},
		},
		HistorySize: 10,
	}
}

// LoadConfig builds the configuration. path may be empty, in which case only
// defaults, .env and the environment are used. A missing .env file is not an
// error.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()
		if err := decode(f, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode overlays YAML from r onto cfg. Unknown keys are rejected.
func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("YANDEX_API_KEY", &cfg.Yandex.ApiKey)
	str("IAM_TOKEN", &cfg.Yandex.IamToken)
	str("FOLDER_ID", &cfg.Yandex.FolderID)
	str("OPENAI_API_KEY", &cfg.Answer.APIKey)

	str("VOXLOOP_LOG_LEVEL", &cfg.LogLevel)
	str("VOXLOOP_AUDIO_BACKEND", &cfg.Audio.Backend)
	str("VOXLOOP_PLAYBACK_BACKEND", &cfg.Playback.Backend)
	str("VOXLOOP_PIPELINE_MODE", &cfg.Pipeline.Mode)
	str("VOXLOOP_REMOTE_URL", &cfg.Pipeline.RemoteURL)
	str("VOXLOOP_STT_PROVIDER", &cfg.STT.Provider)
	str("VOXLOOP_STT_URL", &cfg.STT.ServerURL)
	str("VOXLOOP_LANGUAGE", &cfg.STT.Language)
	str("VOXLOOP_ANSWER_PROVIDER", &cfg.Answer.Provider)
	str("VOXLOOP_ANSWER_URL", &cfg.Answer.BaseURL)
	str("VOXLOOP_ANSWER_MODEL", &cfg.Answer.Model)
	str("VOXLOOP_TTS_PROVIDER", &cfg.TTS.Provider)
	str("VOXLOOP_TTS_URL", &cfg.TTS.ServerURL)
	str("VOXLOOP_LISTEN_ADDR", &cfg.Server.ListenAddr)

	var errs []error
	if v, ok := lookup("VOXLOOP_VAD_THRESHOLD"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("VOXLOOP_VAD_THRESHOLD: %w", err))
		} else {
			cfg.Turn.VADThreshold = f
		}
	}
	if v, ok := lookup("VOXLOOP_SILENCE_DURATION"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("VOXLOOP_SILENCE_DURATION: %w", err))
		} else {
			cfg.Turn.SilenceDuration = d
		}
	}
	return errors.Join(errs...)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func (c *Config) Validate() error {
	var errs []error

	oneOf := func(field, value string, valid []string) {
		if !slices.Contains(valid, value) {
			errs = append(errs, fmt.Errorf("%s %q is invalid; valid values: %v", field, value, valid))
		}
	}

	oneOf("log_level", c.LogLevel, logLevels)
	oneOf("audio.backend", c.Audio.Backend, audioBackends)
	oneOf("playback.backend", c.Playback.Backend, audioBackends)
	oneOf("pipeline.mode", c.Pipeline.Mode, pipelineModes)

	if c.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate))
	}
	if c.Audio.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size must be positive, got %d", c.Audio.FrameSize))
	}
	if c.Audio.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.queue_size must be positive, got %d", c.Audio.QueueSize))
	}

	if c.Turn.VADThreshold <= 0 || c.Turn.VADThreshold >= 1 {
		errs = append(errs, fmt.Errorf("turn.vad_threshold %.3f is out of range (0, 1)", c.Turn.VADThreshold))
	}
	if c.Turn.BargeInMultiplier < 2 {
		errs = append(errs, fmt.Errorf("turn.barge_in_multiplier %.2f must be at least 2", c.Turn.BargeInMultiplier))
	}
	if c.Turn.SilenceDuration <= 0 {
		errs = append(errs, fmt.Errorf("turn.silence_duration must be positive, got %s", c.Turn.SilenceDuration))
	}
	if c.Turn.MaxUtteranceDuration < 0 {
		errs = append(errs, fmt.Errorf("turn.max_utterance_duration must not be negative"))
	}

	if c.Pipeline.MaxAudioBytes <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_audio_bytes must be positive, got %d", c.Pipeline.MaxAudioBytes))
	}

	if c.Pipeline.Mode == "remote" {
		if c.Pipeline.RemoteURL == "" {
			errs = append(errs, errors.New("pipeline.remote_url is required in remote mode"))
		}
		return errors.Join(errs...)
	}

	oneOf("stt.provider", c.STT.Provider, sttProviders)
	oneOf("answer.provider", c.Answer.Provider, answerProviders)
	oneOf("tts.provider", c.TTS.Provider, ttsProviders)

	yandex := c.STT.Provider == "yandex" || c.TTS.Provider == "yandex" || c.Answer.Provider == "yandexgpt"
	if yandex && c.Yandex.FolderID == "" {
		errs = append(errs, errors.New("yandex.folder_id (FOLDER_ID) is required for Yandex providers"))
	}
	if yandex && c.Yandex.ApiKey == "" && c.Yandex.IamToken == "" {
		errs = append(errs, errors.New("one of yandex.api_key (YANDEX_API_KEY) or yandex.iam_token (IAM_TOKEN) is required for Yandex providers"))
	}
	if c.TTS.Provider == "yandex" && c.Yandex.ApiKey == "" {
		errs = append(errs, errors.New("yandex.api_key (YANDEX_API_KEY) is required for Yandex TTS"))
	}
	if c.STT.Provider == "whisper" && c.STT.ServerURL == "" {
		errs = append(errs, errors.New("stt.server_url is required for whisper"))
	}
	if c.TTS.Provider == "coqui" && c.TTS.ServerURL == "" {
		errs = append(errs, errors.New("tts.server_url is required for coqui"))
	}
	if c.Answer.Provider == "rag" && c.Answer.BaseURL == "" {
		errs = append(errs, errors.New("answer.base_url is required for rag"))
	}
	if c.Answer.Provider == "openai" && c.Answer.APIKey == "" && c.Answer.BaseURL == "" {
		errs = append(errs, errors.New("answer.api_key (OPENAI_API_KEY) or answer.base_url is required for openai"))
	}

	return errors.Join(errs...)
}
