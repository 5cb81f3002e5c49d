package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	YandexGPTEndpoint = "https://llm.api.cloud.yandex.net/foundationModels/v1/completion"
)

// Message represents a message in the conversation
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// CompletionOptions represents the options for the completion
type CompletionOptions struct {
	MaxTokens   int     `json:"maxTokens"`
	Temperature float64 `json:"temperature"`
}

// Request represents the request to the Yandex GPT API
type Request struct {
	ModelURI          string            `json:"modelUri"`
	CompletionOptions CompletionOptions `json:"completionOptions"`
	Messages          []Message         `json:"messages"`
}

// Alternative represents an alternative response
type Alternative struct {
	Message Message `json:"message"`
	Status  string  `json:"status"`
}

// Response represents the response from the Yandex GPT API
type Response struct {
	Result struct {
		Alternatives []Alternative `json:"alternatives"`
		ModelVersion string        `json:"modelVersion"`
	} `json:"result"`
}

type YandexGPTConfig struct {
	FolderID     string
	IamToken     string
	ApiKey       string
	Model        string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string

	// Endpoint overrides YandexGPTEndpoint.
	Endpoint string
}

// YandexGPTClient answers through the Yandex Foundation Models completion API.
type YandexGPTClient struct {
	config     YandexGPTConfig
	httpClient *http.Client
}

var _ Pipeline = (*YandexGPTClient)(nil)

func NewYandexGPTClient(config YandexGPTConfig) (*YandexGPTClient, error) {
	if config.FolderID == "" {
		return nil, errors.New("yandex gpt: folder id required")
	}
	if config.IamToken == "" && config.ApiKey == "" {
		return nil, errors.New("yandex gpt: api key or iam token required")
	}
	if config.Model == "" {
		config.Model = "yandexgpt-lite"
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 500
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = DefaultSystemPrompt
	}
	if config.Endpoint == "" {
		config.Endpoint = YandexGPTEndpoint
	}
	return &YandexGPTClient{
		config:     config,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (c *YandexGPTClient) Answer(ctx context.Context, question string) (Answer, error) {
	resp, err := c.Complete(ctx, Request{
		ModelURI: fmt.Sprintf("gpt://%s/%s/latest", c.config.FolderID, c.config.Model),
		CompletionOptions: CompletionOptions{
			MaxTokens:   c.config.MaxTokens,
			Temperature: c.config.Temperature,
		},
		Messages: []Message{
			{Role: "system", Text: c.config.SystemPrompt},
			{Role: "user", Text: question},
		},
	})
	if err != nil {
		return Answer{}, err
	}
	if len(resp.Result.Alternatives) == 0 {
		return Answer{}, ErrEmptyAnswer
	}
	return Answer{Text: resp.Result.Alternatives[0].Message.Text}, nil
}

// Complete sends a completion request to the Yandex GPT API
func (c *YandexGPTClient) Complete(ctx context.Context, req Request) (*Response, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.ApiKey != "" {
		httpReq.Header.Set("Authorization", "Api-Key "+c.config.ApiKey)
	} else {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.IamToken)
	}
	httpReq.Header.Set("x-folder-id", c.config.FolderID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var response Response
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &response, nil
}
