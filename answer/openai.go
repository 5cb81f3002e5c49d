package answer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

// OpenAIConfig configures any OpenAI-compatible chat endpoint, including a
// local Ollama server at http://localhost:11434/v1.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	Temperature  float64
	SystemPrompt string
	Timeout      time.Duration
	MaxRetries   int
}

type OpenAIClient struct {
	client       oai.Client
	model        string
	temperature  float64
	systemPrompt string
}

var _ Pipeline = (*OpenAIClient)(nil)

func NewOpenAIClient(config OpenAIConfig) (*OpenAIClient, error) {
	if config.Model == "" {
		return nil, errors.New("openai: model must not be empty")
	}
	if config.APIKey == "" {
		if config.BaseURL == "" {
			return nil, errors.New("openai: api key must not be empty")
		}
		// Self-hosted endpoints ignore the key but the client requires one.
		config.APIKey = "unused"
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = DefaultSystemPrompt
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(config.MaxRetries),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: config.Timeout}))
	}

	return &OpenAIClient{
		client:       oai.NewClient(opts...),
		model:        config.Model,
		temperature:  config.Temperature,
		systemPrompt: config.SystemPrompt,
	}, nil
}

func (c *OpenAIClient) Answer(ctx context.Context, question string) (Answer, error) {
	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(c.systemPrompt),
			oai.UserMessage(question),
		},
	}
	if c.temperature != 0 {
		params.Temperature = param.NewOpt(c.temperature)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Answer{}, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Answer{}, ErrEmptyAnswer
	}
	return Answer{Text: resp.Choices[0].Message.Content}, nil
}
