package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// WhisperConfig points at a whisper.cpp server.
type WhisperConfig struct {
	ServerURL string
	Language  string
	Timeout   time.Duration
}

// WhisperClient transcribes through the /inference endpoint of a whisper.cpp
// server.
type WhisperClient struct {
	serverURL  string
	language   string
	httpClient *http.Client
}

var _ Transcriber = (*WhisperClient)(nil)

func NewWhisperClient(config WhisperConfig) (*WhisperClient, error) {
	if config.ServerURL == "" {
		return nil, errors.New("whisper: server url must not be empty")
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &WhisperClient{
		serverURL:  strings.TrimRight(config.ServerURL, "/"),
		language:   config.Language,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

func (w *WhisperClient) Close() error {
	w.httpClient.CloseIdleConnections()
	return nil
}

func (w *WhisperClient) Transcribe(ctx context.Context, wav []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("whisper: write response_format field: %w", err)
	}
	if w.language != "" {
		if err := mw.WriteField("language", w.language); err != nil {
			return "", fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	// whisper.cpp rejects files it cannot read with a client error; that is
	// malformed audio, not a service failure.
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnsupportedMediaType {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}
