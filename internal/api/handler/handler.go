package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/audio-pipeline/internal/crm"
	"github.com/cuongbtq/audio-pipeline/internal/domain"
	"github.com/cuongbtq/audio-pipeline/internal/pipeline"
	"github.com/cuongbtq/audio-pipeline/internal/storage"
)

// AudioGenerator runs the pipeline synchronously
type AudioGenerator interface {
	Generate(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// JobReader reads job records for operator endpoints
type JobReader interface {
	GetAudioFile(ctx context.Context, surveyResponseID string) (*domain.AudioFile, error)
	ListAudioFiles(ctx context.Context, filter storage.JobFilter) ([]domain.AudioFile, error)
}

// Enqueuer publishes generation triggers for the worker service
type Enqueuer interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// AudioSender pushes an audio URL to a contact as a message
type AudioSender interface {
	SendAudio(ctx context.Context, contactID, audioURL, caption string) (*crm.MessageResult, error)
}

// Dependencies holds all dependencies needed by handlers.
// Queue and Messenger are optional; their endpoints answer 503 without them.
type Dependencies struct {
	Logger    *slog.Logger
	Generator AudioGenerator
	Jobs      JobReader
	Queue     Enqueuer
	Messenger AudioSender
	Service   string

	// HealthChecks are run by /health, keyed by dependency name
	HealthChecks map[string]func(ctx context.Context) error
}

// AudioHandler handles audio-related HTTP requests
type AudioHandler struct {
	logger    *slog.Logger
	generator AudioGenerator
	jobs      JobReader
	queue     Enqueuer
	messenger AudioSender
}

// NewAudioHandler creates a new AudioHandler instance
func NewAudioHandler(deps *Dependencies) *AudioHandler {
	return &AudioHandler{
		logger:    deps.Logger,
		generator: deps.Generator,
		jobs:      deps.Jobs,
		queue:     deps.Queue,
		messenger: deps.Messenger,
	}
}
