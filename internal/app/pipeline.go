package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/audio-pipeline/internal/artifact"
	"github.com/cuongbtq/audio-pipeline/internal/config"
	"github.com/cuongbtq/audio-pipeline/internal/crm"
	"github.com/cuongbtq/audio-pipeline/internal/llm"
	"github.com/cuongbtq/audio-pipeline/internal/notify"
	"github.com/cuongbtq/audio-pipeline/internal/pipeline"
	"github.com/cuongbtq/audio-pipeline/internal/script"
	"github.com/cuongbtq/audio-pipeline/internal/storage"
	"github.com/cuongbtq/audio-pipeline/internal/tts"
	"github.com/jmoiron/sqlx"
)

// Pipeline is the audio pipeline wired from configuration, shared by the
// API and worker services.
type Pipeline struct {
	Orchestrator *pipeline.Orchestrator
	Store        *storage.Storage
	// Messenger is nil when the CRM is disabled
	Messenger *crm.Messenger

	notifier *notify.Async
}

// NewPipeline builds every pipeline component. publisher may be nil, in
// which case lifecycle events are not published.
func NewPipeline(ctx context.Context, cfg *config.Config, db *sqlx.DB, publisher notify.Publisher, logger *slog.Logger) (*Pipeline, error) {
	if cfg.Database.ApplySchema {
		if err := storage.EnsureSchema(ctx, db); err != nil {
			return nil, err
		}
		logger.Info("Database schema applied")
	}
	store := storage.NewStorage(db, logger)

	completer, err := NewCompleter(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	logger.Info("Completion backend selected",
		slog.String("provider", completer.Name()),
		slog.String("model", cfg.LLM.Model),
	)

	artifacts, err := artifact.NewMinioStore(logger,
		artifact.WithEndpoint(cfg.Storage.Endpoint),
		artifact.WithBucket(cfg.Storage.Bucket),
		artifact.WithRegion(cfg.Storage.Region),
		artifact.WithAccessKey(cfg.Storage.AccessKey),
		artifact.WithSecretKey(cfg.Storage.SecretKey),
		artifact.WithSSL(cfg.Storage.UseSSL),
		artifact.WithPublicBaseURL(cfg.Storage.PublicBaseURL),
		artifact.WithTimeout(cfg.Storage.Timeout),
	)
	if err != nil {
		return nil, err
	}
	if err := artifacts.EnsureBucket(ctx); err != nil {
		return nil, err
	}

	deps := pipeline.Dependencies{
		Store:     store,
		Generator: script.NewGenerator(completer, script.GeneratorConfig{MaxTokens: cfg.LLM.MaxTokens, Temperature: cfg.LLM.Temperature}, logger),
		Synth:     NewSynthesizer(cfg.TTS),
		Artifacts: artifacts,
		Logger:    logger,
	}

	p := &Pipeline{Store: store}

	if cfg.CRM.Enabled {
		client := NewCRMClient(cfg.CRM)
		deps.Contacts = client
		deps.CRM = crm.NewUpdater(crm.NewResolver(client, logger), client, crm.UpdaterFields{
			AudioURL: crm.Field{Name: cfg.CRM.Fields.AudioURL.Name, Key: cfg.CRM.Fields.AudioURL.Key},
			Script:   crm.Field{Name: cfg.CRM.Fields.Script.Name, Key: cfg.CRM.Fields.Script.Key},
		}, logger)
		p.Messenger = crm.NewMessenger(client, cfg.CRM.MessageChannel, logger)
	} else {
		logger.Warn("CRM propagation disabled")
	}

	if cfg.Notify.Enabled && publisher != nil {
		p.notifier = notify.NewAsync(publisher, notify.AsyncConfig{
			RoutingKeyPrefix: cfg.Notify.RoutingKeyPrefix,
			BufferSize:       cfg.Notify.BufferSize,
			PublishTimeout:   cfg.Notify.PublishTimeout,
		}, logger)
		deps.Notifier = p.notifier
	}

	p.Orchestrator = pipeline.NewOrchestrator(deps, pipeline.Config{
		MinScriptChars: cfg.Pipeline.MinScriptChars,
		MaxScriptChars: cfg.Pipeline.MaxScriptChars,
		CharsPerSecond: cfg.Pipeline.CharsPerSecond,
		JobTimeout:     cfg.Pipeline.JobTimeout,
		StaleAfter:     cfg.Pipeline.StaleAfter,
	})
	return p, nil
}

// Close flushes pending lifecycle events
func (p *Pipeline) Close(ctx context.Context) error {
	if p.notifier == nil {
		return nil
	}
	return p.notifier.Close(ctx)
}

// NewCompleter returns the completion backend named by cfg.Provider
func NewCompleter(ctx context.Context, cfg config.LLMConfig) (llm.Completer, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return llm.NewOpenAI(llm.OpenAIConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout,
			RetryCount: cfg.RetryCount,
			RetryWait:  cfg.RetryWait,
		}), nil
	case config.ProviderGemini:
		return llm.NewGemini(ctx, llm.GeminiConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported llm provider: %q", cfg.Provider)
	}
}

// NewSynthesizer returns the speech synthesizer for cfg
func NewSynthesizer(cfg config.TTSConfig) *tts.ElevenLabs {
	return tts.NewElevenLabs(tts.ElevenLabsConfig{
		BaseURL:      cfg.BaseURL,
		APIKey:       cfg.APIKey,
		VoiceID:      cfg.VoiceID,
		ModelID:      cfg.ModelID,
		OutputFormat: cfg.OutputFormat,
		VoiceSettings: tts.VoiceSettings{
			Stability:       cfg.Stability,
			SimilarityBoost: cfg.SimilarityBoost,
			Style:           cfg.Style,
			UseSpeakerBoost: cfg.SpeakerBoost,
		},
		Timeout:    cfg.Timeout,
		RetryCount: cfg.RetryCount,
		RetryWait:  cfg.RetryWait,
	})
}

// NewCRMClient returns the CRM REST client for cfg
func NewCRMClient(cfg config.CRMConfig) *crm.Client {
	return crm.NewClient(crm.ClientConfig{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		LocationID: cfg.LocationID,
		APIVersion: cfg.APIVersion,
		Timeout:    cfg.Timeout,
		RetryCount: cfg.RetryCount,
		RetryWait:  cfg.RetryWait,
	})
}
