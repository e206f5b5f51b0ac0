package script

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cuongbtq/audio-pipeline/internal/llm"
)

// GeneratorConfig bounds a single completion call
type GeneratorConfig struct {
	MaxTokens   int
	Temperature float64
}

// Script is the generated (or fallback) script with its audit trail
type Script struct {
	Text      string
	RequestID string
	Usage     *llm.Usage
	Fallback  bool
}

// Generator produces a script from a prompt and never fails:
// completion errors and empty output fall back to a static script.
type Generator struct {
	completer llm.Completer
	config    GeneratorConfig
	logger    *slog.Logger
}

// NewGenerator creates a new Generator instance
func NewGenerator(completer llm.Completer, config GeneratorConfig, logger *slog.Logger) *Generator {
	if config.MaxTokens <= 0 {
		config.MaxTokens = 400
	}
	return &Generator{
		completer: completer,
		config:    config,
		logger:    logger,
	}
}

// Generate calls the completion backend once
func (g *Generator) Generate(ctx context.Context, prompt, firstName string) *Script {
	completion, err := g.completer.Complete(ctx, llm.Request{
		Prompt:      prompt,
		MaxTokens:   g.config.MaxTokens,
		Temperature: g.config.Temperature,
	})
	if err != nil {
		g.logger.Warn("Completion failed, using fallback script",
			slog.String("stage", "script"),
			slog.String("provider", g.completer.Name()),
			slog.Any("error", err),
		)
		return &Script{Text: Fallback(firstName), Fallback: true}
	}

	text := strings.TrimSpace(completion.Text)
	if text == "" {
		g.logger.Warn("Completion returned empty text, using fallback script",
			slog.String("stage", "script"),
			slog.String("provider", g.completer.Name()),
			slog.String("request_id", completion.RequestID),
		)
		return &Script{Text: Fallback(firstName), RequestID: completion.RequestID, Fallback: true}
	}

	return &Script{
		Text:      text,
		RequestID: completion.RequestID,
		Usage:     completion.Usage,
	}
}
