package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/cuongbtq/audio-pipeline/internal/domain"
	"google.golang.org/genai"
)

const geminiName = "gemini"

// GeminiConfig configures the Gemini completion backend.
// BaseURL is only set when routing through a proxy.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Gemini is a completion backend on the Gemini API
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGemini creates a new Gemini completer
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Gemini{client: client, model: cfg.Model, timeout: cfg.Timeout}, nil
}

func (g *Gemini) Name() string {
	return geminiName
}

// Complete generates content for a single text prompt
func (g *Gemini) Complete(ctx context.Context, req Request) (*Completion, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(req.MaxTokens)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), genConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrCompletionProvider, geminiName, err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("%w: %w: %s: no candidate content", domain.ErrCompletionProvider, domain.ErrSchemaMismatch, geminiName)
	}

	completion := &Completion{
		Text:      resp.Text(),
		RequestID: resp.ResponseID,
		Model:     resp.ModelVersion,
	}
	if resp.UsageMetadata != nil {
		completion.Usage = &Usage{
			PromptTokens:     int64(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int64(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return completion, nil
}
