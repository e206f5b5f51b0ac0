package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/audio-pipeline/internal/artifact"
	"github.com/cuongbtq/audio-pipeline/internal/domain"
	"github.com/cuongbtq/audio-pipeline/internal/metrics"
	"github.com/cuongbtq/audio-pipeline/internal/notify"
	"github.com/cuongbtq/audio-pipeline/internal/provider"
	"github.com/cuongbtq/audio-pipeline/internal/script"
	"github.com/cuongbtq/audio-pipeline/internal/tts"
)

const (
	maxErrorMessage   = 1000
	finalizeTimeout   = 10 * time.Second
	defaultJobTimeout = 3 * time.Minute
	defaultStaleTime  = 10 * time.Minute
)

// Orchestrator runs the audio generation pipeline for one survey response
type Orchestrator struct {
	store     Store
	generator ScriptGenerator
	synth     tts.Synthesizer
	artifacts artifact.Store
	contacts  ContactFinder
	crm       FieldUpdater
	notifier  notify.Notifier
	config    Config
	logger    *slog.Logger
	now       func() time.Time
}

// Dependencies holds everything the orchestrator calls out to
type Dependencies struct {
	Store     Store
	Generator ScriptGenerator
	Synth     tts.Synthesizer
	Artifacts artifact.Store
	Contacts  ContactFinder
	CRM       FieldUpdater
	Notifier  notify.Notifier
	Logger    *slog.Logger
}

// NewOrchestrator creates a new Orchestrator instance
func NewOrchestrator(deps Dependencies, config Config) *Orchestrator {
	if config.MinScriptChars <= 0 {
		config.MinScriptChars = script.DefaultMinChars
	}
	if config.MaxScriptChars <= 0 {
		config.MaxScriptChars = script.DefaultMaxChars
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = defaultJobTimeout
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = defaultStaleTime
	}
	// a live run must time out before its record can be reclaimed
	if config.StaleAfter <= config.JobTimeout {
		config.StaleAfter = 2 * config.JobTimeout
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}

	return &Orchestrator{
		store:     deps.Store,
		generator: deps.Generator,
		synth:     deps.Synth,
		artifacts: deps.Artifacts,
		contacts:  deps.Contacts,
		crm:       deps.CRM,
		notifier:  notifier,
		config:    config,
		logger:    deps.Logger,
		now:       time.Now,
	}
}

// Generate runs the pipeline. A completed record is returned from cache
// unless req.Force is set. The run is detached from ctx cancellation so
// paid provider calls already in flight are not wasted; it is bounded by
// the configured job timeout instead.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (*Result, error) {
	start := o.now()
	req.Email = strings.TrimSpace(req.Email)
	req.TransactionID = strings.TrimSpace(req.TransactionID)
	req.GHLContactID = strings.TrimSpace(req.GHLContactID)

	if req.Email == "" && req.TransactionID == "" {
		return nil, domain.NewStageError(domain.StageValidate, domain.ErrInvalidRequest,
			errors.New("email or transaction_id is required"))
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.config.JobTimeout)
	defer cancel()

	logger := o.logger.With(
		slog.String("email", req.Email),
		slog.String("transaction_id", req.TransactionID),
	)

	survey, err := o.store.LatestSurvey(ctx, req.TransactionID, req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn("No survey response found")
			return nil, domain.NewStageError(domain.StageLoadSurvey, domain.ErrNotFound, nil)
		}
		return nil, fmt.Errorf("%s: %w", domain.StageLoadSurvey, err)
	}
	logger = logger.With(slog.String("survey_response_id", survey.ID))

	email := req.Email
	if email == "" {
		email = survey.Email
	}
	contactID := o.resolveContact(ctx, logger, req.GHLContactID, email)

	existing, err := o.store.GetAudioFile(ctx, survey.ID)
	if err != nil && !errors.Is(err, domain.ErrJobNotFound) {
		return nil, fmt.Errorf("%s: %w", domain.StageClaim, err)
	}
	if existing != nil && existing.Status == domain.StatusCompleted && !req.Force {
		return o.cached(ctx, logger, existing, contactID, start), nil
	}
	if existing != nil && !domain.CanTransition(existing.Status, domain.StatusProcessing, req.Force) && !o.isStale(existing) {
		logger.Warn("Audio job already in progress", slog.String("status", existing.Status))
		return nil, domain.NewStageError(domain.StageClaim, domain.ErrJobInProgress, nil)
	}

	file, err := o.store.ClaimAudioFile(ctx, domain.ClaimParams{
		SurveyResponseID: survey.ID,
		Email:            email,
		GHLContactID:     contactID,
		Force:            req.Force,
		StaleBefore:      o.now().Add(-o.config.StaleAfter),
	})
	if err != nil {
		if errors.Is(err, domain.ErrJobInProgress) {
			// a concurrent run may have finished between the read and the claim
			if current, gerr := o.store.GetAudioFile(ctx, survey.ID); gerr == nil && current.Status == domain.StatusCompleted && !req.Force {
				return o.cached(ctx, logger, current, contactID, start), nil
			}
			return nil, domain.NewStageError(domain.StageClaim, domain.ErrJobInProgress, nil)
		}
		return nil, fmt.Errorf("%s: %w", domain.StageClaim, err)
	}
	logger = logger.With(slog.String("audio_file_id", file.ID))
	logger.Info("Audio job started", slog.Bool("force", req.Force))

	result, err := o.run(ctx, logger, file, survey, email, contactID)
	if err != nil {
		metrics.IncreaseJobsTotal(domain.StatusFailed)
		return nil, err
	}

	result.ProcessingTime = o.now().Sub(start)
	metrics.IncreaseJobsTotal(domain.StatusCompleted)
	logger.Info("Audio job completed",
		slog.String("audio_url", result.AudioURL),
		slog.Int("duration_seconds", result.DurationSeconds),
		slog.Bool("fallback_script", result.FallbackScript),
		slog.Bool("crm_updated", result.CRMUpdated),
		slog.Duration("processing_time", result.ProcessingTime),
	)
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, logger *slog.Logger, file *domain.AudioFile, survey *domain.SurveyResponse, email, contactID string) (*Result, error) {
	input := script.PromptInputFromSurvey(survey)
	prompt := script.BuildPrompt(input)
	if err := o.store.SavePrompt(ctx, file.ID, prompt); err != nil {
		return nil, o.abort(ctx, logger, file, domain.StageScript, err)
	}

	stageStart := o.now()
	generated := o.generator.Generate(ctx, prompt, input.FirstName)
	metrics.ObserveStage(domain.StageScript, nil, o.now().Sub(stageStart))
	if generated.Fallback {
		metrics.IncreaseFallbackScripts()
	}

	text := script.Sanitize(generated.Text)
	update := domain.ScriptUpdate{
		ScriptText:     text,
		LLMRequestID:   generated.RequestID,
		FallbackScript: generated.Fallback,
	}
	if generated.Usage != nil {
		update.LLMPromptTokens = &generated.Usage.PromptTokens
		update.LLMCompletionTokens = &generated.Usage.CompletionTokens
	}
	if err := o.store.SaveScript(ctx, file.ID, update); err != nil {
		return nil, o.abort(ctx, logger, file, domain.StageScript, err)
	}

	if err := script.ValidateLength(text, o.config.MinScriptChars, o.config.MaxScriptChars); err != nil {
		return nil, o.fail(ctx, logger, file, domain.StageSanitize, domain.ErrInvalidScriptLength, err)
	}

	stageStart = o.now()
	audio, err := o.synth.Synthesize(ctx, text)
	metrics.ObserveStage(domain.StageSynthesis, err, o.now().Sub(stageStart))
	if err != nil {
		return nil, o.fail(ctx, logger, file, domain.StageSynthesis, domain.ErrSynthesis, err)
	}
	duration := tts.EstimateDuration(text, o.config.CharsPerSecond)

	stageStart = o.now()
	key := artifact.ObjectKey(survey.UserID, email, o.now())
	obj, err := o.artifacts.Put(ctx, key, audio.Data, audio.ContentType)
	metrics.ObserveStage(domain.StageUpload, err, o.now().Sub(stageStart))
	if err != nil {
		return nil, o.fail(ctx, logger, file, domain.StageUpload, domain.ErrStorage, err)
	}

	if err := o.store.Complete(ctx, file.ID, domain.CompletionUpdate{
		AudioURL:        obj.URL,
		StoragePath:     obj.Key,
		DurationSeconds: duration,
		TTSRequestID:    audio.RequestID,
	}); err != nil {
		return nil, o.abort(ctx, logger, file, domain.StageUpload, err)
	}

	result := &Result{
		AudioFileID:      file.ID,
		SurveyResponseID: survey.ID,
		AudioURL:         obj.URL,
		StoragePath:      obj.Key,
		Script:           text,
		DurationSeconds:  duration,
		FallbackScript:   generated.Fallback,
		ContactID:        contactID,
	}
	result.CRMUpdated, result.CRMError = o.propagate(ctx, logger, file.ID, contactID, obj.URL, text)

	o.notifier.Notify(notify.Event{
		Type:             notify.EventCompleted,
		SurveyResponseID: survey.ID,
		Email:            email,
		ContactID:        contactID,
		AudioURL:         obj.URL,
		CRMError:         result.CRMError,
	})
	return result, nil
}

// cached serves a completed record and re-pushes it to the CRM in case
// an earlier write did not land.
func (o *Orchestrator) cached(ctx context.Context, logger *slog.Logger, file *domain.AudioFile, contactID string, start time.Time) *Result {
	if contactID == "" {
		contactID = file.GHLContactID
	}

	result := &Result{
		AudioFileID:      file.ID,
		SurveyResponseID: file.SurveyResponseID,
		AudioURL:         file.AudioURL,
		StoragePath:      file.StoragePath,
		Script:           file.ScriptText,
		DurationSeconds:  file.DurationSeconds,
		Cached:           true,
		FallbackScript:   file.FallbackScript,
		ContactID:        contactID,
	}
	result.CRMUpdated, result.CRMError = o.propagate(ctx, logger, file.ID, contactID, file.AudioURL, file.ScriptText)
	result.ProcessingTime = o.now().Sub(start)

	metrics.IncreaseJobsTotal("cached")
	logger.Info("Returning cached audio",
		slog.String("audio_file_id", file.ID),
		slog.String("audio_url", file.AudioURL),
	)

	o.notifier.Notify(notify.Event{
		Type:             notify.EventCompleted,
		SurveyResponseID: file.SurveyResponseID,
		Email:            file.Email,
		ContactID:        contactID,
		AudioURL:         file.AudioURL,
		Cached:           true,
		CRMError:         result.CRMError,
	})
	return result
}

func (o *Orchestrator) resolveContact(ctx context.Context, logger *slog.Logger, contactID, email string) string {
	if contactID != "" || email == "" || o.contacts == nil {
		return contactID
	}

	stageStart := o.now()
	id, err := o.contacts.FindContactByEmail(ctx, email)
	metrics.ObserveStage(domain.StageContact, err, o.now().Sub(stageStart))
	if err != nil {
		logger.Warn("CRM contact lookup failed, continuing without CRM propagation",
			slog.String("stage", domain.StageContact),
			slog.Any("error", err),
		)
		return ""
	}
	return id
}

// propagate writes the result to the CRM. Failures are recorded on the
// job record and returned as a message; they never fail the run.
func (o *Orchestrator) propagate(ctx context.Context, logger *slog.Logger, fileID, contactID, audioURL, text string) (bool, string) {
	var err error
	stageStart := o.now()
	switch {
	case contactID == "":
		err = fmt.Errorf("%w: no crm contact id", domain.ErrCrmPropagation)
	case o.crm == nil:
		err = fmt.Errorf("%w: crm updates disabled", domain.ErrCrmPropagation)
	default:
		err = o.crm.Update(ctx, contactID, audioURL, text)
	}
	metrics.ObserveStage(domain.StageCRM, err, o.now().Sub(stageStart))
	metrics.IncreaseCRMPropagation(err)

	var crmError string
	if err != nil {
		crmError = provider.Truncate(err.Error(), maxErrorMessage)
		attrs := append([]any{
			slog.String("stage", domain.StageCRM),
			slog.String("contact_id", contactID),
			slog.Any("error", err),
		}, providerAttrs(err)...)
		logger.Warn("CRM propagation failed", attrs...)
	}

	if serr := o.store.SaveCRMResult(ctx, fileID, contactID, crmError); serr != nil {
		logger.Error("Failed to record CRM result", slog.Any("error", serr))
	}
	return err == nil, crmError
}

// fail records a terminal stage failure on the job record
func (o *Orchestrator) fail(ctx context.Context, logger *slog.Logger, file *domain.AudioFile, stage string, kind, cause error) error {
	stageErr := domain.NewStageError(stage, kind, cause)
	message := provider.Truncate(stageErr.Error(), maxErrorMessage)

	attrs := append([]any{
		slog.String("stage", stage),
		slog.Any("error", cause),
	}, providerAttrs(cause)...)
	logger.Error("Audio job failed", attrs...)

	o.markFailed(ctx, logger, file, message)

	o.notifier.Notify(notify.Event{
		Type:             notify.EventFailed,
		SurveyResponseID: file.SurveyResponseID,
		Email:            file.Email,
		ContactID:        file.GHLContactID,
		Stage:            stage,
		Error:            message,
	})
	return stageErr
}

// abort handles job record write failures. A record no longer in processing
// belongs to another run and is left alone.
func (o *Orchestrator) abort(ctx context.Context, logger *slog.Logger, file *domain.AudioFile, stage string, err error) error {
	if errors.Is(err, domain.ErrJobInProgress) {
		logger.Warn("Audio job record taken over by another run", slog.String("stage", stage))
		return domain.NewStageError(stage, domain.ErrJobInProgress, err)
	}
	logger.Error("Failed to update audio job record", slog.String("stage", stage), slog.Any("error", err))
	o.markFailed(ctx, logger, file, provider.Truncate(fmt.Sprintf("%s: %v", stage, err), maxErrorMessage))
	return fmt.Errorf("%s: %w", stage, err)
}

// markFailed uses a fresh context so the record reaches a terminal status
// even when the run's deadline has passed.
func (o *Orchestrator) markFailed(ctx context.Context, logger *slog.Logger, file *domain.AudioFile, message string) {
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if err := o.store.Fail(failCtx, file.ID, message); err != nil {
		logger.Error("Failed to mark audio job failed", slog.Any("error", err))
	}
}

func (o *Orchestrator) isStale(file *domain.AudioFile) bool {
	return file.Status == domain.StatusProcessing && file.UpdatedAt.Before(o.now().Add(-o.config.StaleAfter))
}

func providerAttrs(err error) []any {
	var providerErr *domain.ProviderError
	if !errors.As(err, &providerErr) {
		return nil
	}
	return []any{
		slog.String("provider", providerErr.Provider),
		slog.Int("status_code", providerErr.StatusCode),
		slog.String("payload", providerErr.Body),
	}
}
