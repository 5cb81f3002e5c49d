package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CoquiConfig points at a standard Coqui TTS server.
type CoquiConfig struct {
	ServerURL string
	SpeakerID string
	Language  string
	Timeout   time.Duration
}

// CoquiClient synthesizes through GET /api/tts, which answers with a WAV file.
type CoquiClient struct {
	serverURL  string
	speakerID  string
	language   string
	httpClient *http.Client
}

var _ Synthesizer = (*CoquiClient)(nil)

func NewCoquiClient(config CoquiConfig) (*CoquiClient, error) {
	if config.ServerURL == "" {
		return nil, errors.New("coqui: server url must not be empty")
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &CoquiClient{
		serverURL:  strings.TrimRight(config.ServerURL, "/"),
		speakerID:  config.SpeakerID,
		language:   config.Language,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

func (c *CoquiClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	q := url.Values{}
	q.Set("text", text)
	if c.speakerID != "" {
		q.Set("speaker_id", c.speakerID)
	}
	if c.language != "" {
		q.Set("language_id", c.language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/api/tts?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read response body: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("coqui: empty response body")
	}
	return data, nil
}

func (c *CoquiClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
