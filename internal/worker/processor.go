package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cuongbtq/audio-pipeline/internal/domain"
)

// processJob runs the pipeline for one trigger. Transient failures come
// back as *RetryableError; everything else is final for this message.
// A trigger for a job another run holds is a duplicate and succeeds.
func (w *Worker) processJob(ctx context.Context, msg *JobMessage) error {
	w.logger.Info("Processing job",
		slog.String("email", msg.Request.Email),
		slog.String("transaction_id", msg.Request.TransactionID),
		slog.Bool("force", msg.Request.Force),
		slog.Bool("redelivered", msg.Delivery.Redelivered),
	)

	result, err := w.generator.Generate(ctx, msg.Request)
	if errors.Is(err, domain.ErrJobInProgress) {
		w.logger.Info("Duplicate trigger, audio job already in progress",
			slog.String("email", msg.Request.Email),
			slog.String("transaction_id", msg.Request.TransactionID),
		)
		return nil
	}
	if err != nil {
		if isTransient(err) {
			return NewRetryableError(err)
		}
		return err
	}

	w.logger.Info("Audio ready",
		slog.String("survey_response_id", result.SurveyResponseID),
		slog.String("audio_url", result.AudioURL),
		slog.Bool("cached", result.Cached),
		slog.Bool("crm_updated", result.CRMUpdated),
	)
	return nil
}

// isTransient reports whether another delivery could succeed
func isTransient(err error) bool {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInvalidScriptLength):
		return false
	case errors.Is(err, domain.ErrSynthesis),
		errors.Is(err, domain.ErrStorage):
		return true
	default:
		// database and other infrastructure errors
		return true
	}
}
