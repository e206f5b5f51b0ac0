package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/audio-pipeline/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	// pq error codes
	foreignKeyViolation = "23503"
	invalidTextRep      = "22P02"
)

const surveyColumns = `
	id, COALESCE(user_id, '') AS user_id, email,
	COALESCE(transaction_id, '') AS transaction_id, answers, created_at`

const audioFileColumns = `
	id, survey_response_id, email,
	COALESCE(ghl_contact_id, '') AS ghl_contact_id,
	status,
	COALESCE(prompt_text, '') AS prompt_text,
	COALESCE(script_text, '') AS script_text,
	COALESCE(audio_url, '') AS audio_url,
	COALESCE(storage_path, '') AS storage_path,
	duration_seconds,
	COALESCE(llm_request_id, '') AS llm_request_id,
	llm_prompt_tokens, llm_completion_tokens,
	COALESCE(tts_request_id, '') AS tts_request_id,
	fallback_script,
	COALESCE(error_message, '') AS error_message,
	COALESCE(crm_error_message, '') AS crm_error_message,
	created_at, updated_at, completed_at`

// Storage handles all database operations for survey responses and audio jobs
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// LatestSurvey returns the most recent survey response for a transaction id,
// falling back to email when no transaction match exists.
func (s *Storage) LatestSurvey(ctx context.Context, transactionID, email string) (*domain.SurveyResponse, error) {
	if transactionID != "" {
		survey, err := s.latestSurveyBy(ctx, "transaction_id = $1", transactionID)
		if err == nil || !errors.Is(err, domain.ErrNotFound) {
			return survey, err
		}
	}
	if email != "" {
		return s.latestSurveyBy(ctx, "lower(email) = lower($1)", email)
	}
	return nil, domain.ErrNotFound
}

func (s *Storage) latestSurveyBy(ctx context.Context, where string, arg string) (*domain.SurveyResponse, error) {
	query := `SELECT ` + surveyColumns + `
		FROM survey_responses
		WHERE ` + where + `
		ORDER BY created_at DESC
		LIMIT 1`

	var survey domain.SurveyResponse
	if err := s.db.GetContext(ctx, &survey, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get survey response: %w", err)
	}
	return &survey, nil
}

// GetAudioFile retrieves the job record of a survey response
func (s *Storage) GetAudioFile(ctx context.Context, surveyResponseID string) (*domain.AudioFile, error) {
	query := `SELECT ` + audioFileColumns + `
		FROM audio_files
		WHERE survey_response_id = $1`

	var file domain.AudioFile
	if err := s.db.GetContext(ctx, &file, query, surveyResponseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		if isPQCode(err, invalidTextRep) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get audio file: %w", err)
	}
	return &file, nil
}

// ClaimAudioFile creates or takes over the job record of a survey response
// and moves it to processing. Only one caller can hold a record: the upsert
// succeeds for a new record, a pending or failed one, a completed one when
// forced, or a processing one not updated since StaleBefore. Otherwise it
// returns domain.ErrJobInProgress.
func (s *Storage) ClaimAudioFile(ctx context.Context, params domain.ClaimParams) (*domain.AudioFile, error) {
	query := `
		INSERT INTO audio_files (id, survey_response_id, email, ghl_contact_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, NOW(), NOW())
		ON CONFLICT (survey_response_id) DO UPDATE
		SET status = EXCLUDED.status,
		    email = EXCLUDED.email,
		    ghl_contact_id = COALESCE(EXCLUDED.ghl_contact_id, audio_files.ghl_contact_id),
		    error_message = NULL,
		    crm_error_message = NULL,
		    completed_at = NULL,
		    updated_at = NOW()
		WHERE audio_files.status IN ($6, $7)
		   OR ($8::boolean AND audio_files.status = $9)
		   OR (audio_files.status = $5 AND audio_files.updated_at < $10)
		RETURNING ` + audioFileColumns

	var file domain.AudioFile
	err := s.db.GetContext(ctx, &file, query,
		uuid.NewString(),
		params.SurveyResponseID,
		params.Email,
		params.GHLContactID,
		domain.StatusProcessing,
		domain.StatusPending,
		domain.StatusFailed,
		params.Force,
		domain.StatusCompleted,
		params.StaleBefore,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim audio file - held by another run",
				slog.String("survey_response_id", params.SurveyResponseID),
			)
			return nil, domain.ErrJobInProgress
		}
		if isPQCode(err, foreignKeyViolation) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to claim audio file: %w", err)
	}

	s.logger.Info("Audio file claimed",
		slog.String("audio_file_id", file.ID),
		slog.String("survey_response_id", params.SurveyResponseID),
		slog.Bool("force", params.Force),
	)
	return &file, nil
}

// SavePrompt records the prompt sent to the completion backend
func (s *Storage) SavePrompt(ctx context.Context, id, prompt string) error {
	query := `
		UPDATE audio_files
		SET prompt_text = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3`

	return s.execProcessing(ctx, "save prompt", query, id, prompt, domain.StatusProcessing)
}

// SaveScript records the generated script and its provider audit fields
func (s *Storage) SaveScript(ctx context.Context, id string, update domain.ScriptUpdate) error {
	query := `
		UPDATE audio_files
		SET script_text = $2,
		    llm_request_id = NULLIF($3, ''),
		    llm_prompt_tokens = $4,
		    llm_completion_tokens = $5,
		    fallback_script = $6,
		    updated_at = NOW()
		WHERE id = $1 AND status = $7`

	return s.execProcessing(ctx, "save script", query,
		id,
		update.ScriptText,
		update.LLMRequestID,
		update.LLMPromptTokens,
		update.LLMCompletionTokens,
		update.FallbackScript,
		domain.StatusProcessing,
	)
}

// Complete records the stored artifact and moves the job to completed
func (s *Storage) Complete(ctx context.Context, id string, update domain.CompletionUpdate) error {
	query := `
		UPDATE audio_files
		SET status = $2,
		    audio_url = $3,
		    storage_path = $4,
		    duration_seconds = $5,
		    tts_request_id = NULLIF($6, ''),
		    error_message = NULL,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND status = $7`

	if err := s.execProcessing(ctx, "complete", query,
		id,
		domain.StatusCompleted,
		update.AudioURL,
		update.StoragePath,
		update.DurationSeconds,
		update.TTSRequestID,
		domain.StatusProcessing,
	); err != nil {
		return err
	}

	s.logger.Info("Audio file status updated",
		slog.String("audio_file_id", id),
		slog.String("status", domain.StatusCompleted),
	)
	return nil
}

// Fail moves the job to failed with message
func (s *Storage) Fail(ctx context.Context, id, message string) error {
	query := `
		UPDATE audio_files
		SET status = $2,
		    error_message = $3,
		    updated_at = NOW()
		WHERE id = $1 AND status = $4`

	if err := s.execProcessing(ctx, "fail", query, id, domain.StatusFailed, message, domain.StatusProcessing); err != nil {
		return err
	}

	s.logger.Info("Audio file status updated",
		slog.String("audio_file_id", id),
		slog.String("status", domain.StatusFailed),
	)
	return nil
}

// SaveCRMResult records the contact used and the last CRM error, if any.
// It applies in any status since CRM propagation also runs for cached results.
func (s *Storage) SaveCRMResult(ctx context.Context, id, contactID, crmError string) error {
	query := `
		UPDATE audio_files
		SET ghl_contact_id = COALESCE(NULLIF($2, ''), ghl_contact_id),
		    crm_error_message = NULLIF($3, ''),
		    updated_at = NOW()
		WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, id, contactID, crmError); err != nil {
		return fmt.Errorf("failed to save crm result: %w", err)
	}
	return nil
}

// JobFilter narrows ListAudioFiles
type JobFilter struct {
	Status   string
	Email    string
	PageSize int
	Cursor   *JobCursor
}

// JobCursor is the keyset position after the last returned record
type JobCursor struct {
	CreatedAt time.Time
	ID        string
}

// ListAudioFiles returns up to PageSize+1 records, newest first, so the
// caller can tell whether another page exists.
func (s *Storage) ListAudioFiles(ctx context.Context, filter JobFilter) ([]domain.AudioFile, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		where = append(where, "status = "+arg(filter.Status))
	}
	if filter.Email != "" {
		where = append(where, "lower(email) = lower("+arg(filter.Email)+")")
	}
	if filter.Cursor != nil {
		where = append(where, fmt.Sprintf("(created_at, id) < (%s, %s)", arg(filter.Cursor.CreatedAt), arg(filter.Cursor.ID)))
	}

	query := `SELECT ` + audioFileColumns + ` FROM audio_files`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	// Order by created_at DESC, id DESC for consistent pagination
	query += " ORDER BY created_at DESC, id DESC LIMIT " + arg(filter.PageSize+1)

	var files []domain.AudioFile
	if err := s.db.SelectContext(ctx, &files, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list audio files: %w", err)
	}
	return files, nil
}

// execProcessing runs an update guarded by status=processing and reports
// domain.ErrJobInProgress when the run no longer holds the record.
func (s *Storage) execProcessing(ctx context.Context, op, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		s.logger.Warn("Audio file update - no rows affected (record not processing)",
			slog.String("op", op),
		)
		return fmt.Errorf("%s: %w", op, domain.ErrJobInProgress)
	}
	return nil
}

func isPQCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}
