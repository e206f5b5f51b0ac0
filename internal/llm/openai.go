package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuongbtq/audio-pipeline/internal/domain"
	"github.com/cuongbtq/audio-pipeline/internal/provider"
	"github.com/go-resty/resty/v2"
)

const openAIName = "openai"

// OpenAIConfig configures an OpenAI compatible chat completions backend
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
}

// OpenAI talks to any /chat/completions endpoint with the OpenAI schema
type OpenAI struct {
	client *resty.Client
	model  string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

// NewOpenAI creates a new OpenAI compatible completer
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	client := provider.NewClient(provider.ClientConfig{
		BaseURL:    cfg.BaseURL,
		Timeout:    cfg.Timeout,
		RetryCount: cfg.RetryCount,
		RetryWait:  cfg.RetryWait,
	}).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return &OpenAI{client: client, model: cfg.Model}
}

func (c *OpenAI) Name() string {
	return openAIName
}

// Complete sends one chat completion request
func (c *OpenAI) Complete(ctx context.Context, req Request) (*Completion, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model:       c.model,
			Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
		}).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("%w: %s request: %w", domain.ErrCompletionProvider, openAIName, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: %w", domain.ErrCompletionProvider, provider.NewError(openAIName, resp))
	}

	var body chatResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("%w: %w: %s: %w", domain.ErrCompletionProvider, domain.ErrSchemaMismatch, openAIName, err)
	}
	if len(body.Choices) == 0 || body.Choices[0].Message == nil || body.Choices[0].Message.Content == nil {
		return nil, fmt.Errorf("%w: %w: %s: missing choices[0].message.content", domain.ErrCompletionProvider, domain.ErrSchemaMismatch, openAIName)
	}

	completion := &Completion{
		Text:      *body.Choices[0].Message.Content,
		RequestID: body.ID,
		Model:     body.Model,
	}
	if completion.RequestID == "" {
		completion.RequestID = resp.Header().Get("X-Request-Id")
	}
	if body.Usage != nil {
		completion.Usage = &Usage{
			PromptTokens:     body.Usage.PromptTokens,
			CompletionTokens: body.Usage.CompletionTokens,
			TotalTokens:      body.Usage.TotalTokens,
		}
	}
	return completion, nil
}
