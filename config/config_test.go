package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func mapLookup(m map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voxloop.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_YAMLOverlaysDefaults(t *testing.T) {
	t.Setenv("FOLDER_ID", "b1g-folder")
	t.Setenv("YANDEX_API_KEY", "key")

	path := writeFile(t, `
log_level: debug
audio:
  backend: malgo
turn:
  silence_duration: 800ms
  max_utterance_duration: 30s
stt:
  provider: whisper
  server_url: http://localhost:8080
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Audio.Backend != "malgo" {
		t.Errorf("overlay not applied: %+v", cfg)
	}
	if cfg.Turn.SilenceDuration != 800*time.Millisecond || cfg.Turn.MaxUtteranceDuration != 30*time.Second {
		t.Errorf("durations = %s, %s", cfg.Turn.SilenceDuration, cfg.Turn.MaxUtteranceDuration)
	}
	// Untouched keys keep their defaults.
	if cfg.Audio.SampleRate != 16000 || cfg.Turn.VADThreshold != 0.02 || cfg.Pipeline.AnswerTimeout != 60*time.Second {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if cfg.Yandex.FolderID != "b1g-folder" || cfg.Yandex.ApiKey != "key" {
		t.Errorf("credentials from env not applied: %+v", cfg.Yandex)
	}
}

func TestLoadConfig_RejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "audio:\n  sample_rte: 8000\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := applyEnv(cfg, mapLookup(map[string]string{
		"VOXLOOP_PIPELINE_MODE":    "remote",
		"VOXLOOP_REMOTE_URL":       "http://assistant:8000",
		"VOXLOOP_VAD_THRESHOLD":    "0.05",
		"VOXLOOP_SILENCE_DURATION": "2s",
		"OPENAI_API_KEY":           "sk-test",
		"VOXLOOP_LISTEN_ADDR":      "",
	}))
	if err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	if cfg.Pipeline.Mode != "remote" || cfg.Pipeline.RemoteURL != "http://assistant:8000" {
		t.Errorf("pipeline = %+v", cfg.Pipeline)
	}
	if cfg.Turn.VADThreshold != 0.05 || cfg.Turn.SilenceDuration != 2*time.Second {
		t.Errorf("turn = %+v", cfg.Turn)
	}
	if cfg.Answer.APIKey != "sk-test" {
		t.Errorf("answer api key = %q", cfg.Answer.APIKey)
	}
	if cfg.Server.ListenAddr != ":8000" {
		t.Errorf("empty variable overrode listen addr: %q", cfg.Server.ListenAddr)
	}
}

func TestApplyEnv_BadNumbers(t *testing.T) {
	err := applyEnv(Default(), mapLookup(map[string]string{
		"VOXLOOP_VAD_THRESHOLD":    "loud",
		"VOXLOOP_SILENCE_DURATION": "forever",
	}))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, key := range []string{"VOXLOOP_VAD_THRESHOLD", "VOXLOOP_SILENCE_DURATION"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %s", err, key)
		}
	}
}

func TestValidate(t *testing.T) {
	withYandex := func(c *Config) {
		c.Yandex.FolderID = "folder"
		c.Yandex.ApiKey = "key"
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr []string
	}{
		{
			name:   "defaults with credentials",
			mutate: withYandex,
		},
		{
			name:    "defaults without credentials",
			mutate:  func(*Config) {},
			wantErr: []string{"yandex.folder_id", "yandex.api_key"},
		},
		{
			name: "remote mode needs only a url",
			mutate: func(c *Config) {
				c.Pipeline.Mode = "remote"
				c.Pipeline.RemoteURL = "http://assistant:8000"
			},
		},
		{
			name:    "remote mode without url",
			mutate:  func(c *Config) { c.Pipeline.Mode = "remote" },
			wantErr: []string{"pipeline.remote_url"},
		},
		{
			name: "local open stack",
			mutate: func(c *Config) {
				c.STT.Provider = "whisper"
				c.STT.ServerURL = "http://localhost:8080"
				c.Answer.Provider = "openai"
				c.Answer.BaseURL = "http://localhost:11434/v1/"
				c.TTS.Provider = "coqui"
				c.TTS.ServerURL = "http://localhost:5002"
			},
		},
		{
			name: "barge-in threshold too close to base",
			mutate: func(c *Config) {
				withYandex(c)
				c.Turn.BargeInMultiplier = 1.5
			},
			wantErr: []string{"turn.barge_in_multiplier"},
		},
		{
			name: "several failures are joined",
			mutate: func(c *Config) {
				withYandex(c)
				c.LogLevel = "loud"
				c.Audio.Backend = "alsa"
				c.Audio.FrameSize = 0
				c.Answer.Provider = "rag"
			},
			wantErr: []string{"log_level", "audio.backend", "audio.frame_size", "answer.base_url"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()

			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not mention %q", err, want)
				}
			}
		})
	}
}
