package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RAGClient forwards questions to a retrieval-augmented answer service that
// exposes POST /api/query.
type RAGClient struct {
	baseURL    string
	httpClient *http.Client
}

var _ Pipeline = (*RAGClient)(nil)

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

func NewRAGClient(baseURL string, timeout time.Duration) (*RAGClient, error) {
	if baseURL == "" {
		return nil, errors.New("rag: base url must not be empty")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &RAGClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (c *RAGClient) Answer(ctx context.Context, question string) (Answer, error) {
	body, err := json.Marshal(queryRequest{Query: question})
	if err != nil {
		return Answer{}, fmt.Errorf("rag: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/query", bytes.NewReader(body))
	if err != nil {
		return Answer{}, fmt.Errorf("rag: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Answer{}, fmt.Errorf("rag: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Answer{}, fmt.Errorf("rag: server returned HTTP %d: %s", resp.StatusCode, msg)
	}

	var out queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Answer{}, fmt.Errorf("rag: decode response: %w", err)
	}
	return Answer{Text: out.Answer, Sources: out.Sources}, nil
}
