package domain

import "time"

// AudioFile is the job record of one pipeline run, one per survey response
type AudioFile struct {
	ID                  string     `db:"id"`
	SurveyResponseID    string     `db:"survey_response_id"`
	Email               string     `db:"email"`
	GHLContactID        string     `db:"ghl_contact_id"`
	Status              string     `db:"status"`
	PromptText          string     `db:"prompt_text"`
	ScriptText          string     `db:"script_text"`
	AudioURL            string     `db:"audio_url"`
	StoragePath         string     `db:"storage_path"`
	DurationSeconds     int        `db:"duration_seconds"`
	LLMRequestID        string     `db:"llm_request_id"`
	LLMPromptTokens     *int64     `db:"llm_prompt_tokens"`
	LLMCompletionTokens *int64     `db:"llm_completion_tokens"`
	TTSRequestID        string     `db:"tts_request_id"`
	FallbackScript      bool       `db:"fallback_script"`
	ErrorMessage        string     `db:"error_message"`
	CRMErrorMessage     string     `db:"crm_error_message"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
	CompletedAt         *time.Time `db:"completed_at"`
}

// ClaimParams describes the start of a pipeline run
type ClaimParams struct {
	SurveyResponseID string
	Email            string
	GHLContactID     string
	Force            bool
	StaleBefore      time.Time
}

// ScriptUpdate records the outcome of script generation
type ScriptUpdate struct {
	ScriptText          string
	LLMRequestID        string
	LLMPromptTokens     *int64
	LLMCompletionTokens *int64
	FallbackScript      bool
}

// CompletionUpdate records a stored artifact and closes the job
type CompletionUpdate struct {
	AudioURL        string
	StoragePath     string
	DurationSeconds int
	TTSRequestID    string
}
