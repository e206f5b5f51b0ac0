package dto

type GenerateAudioRequest struct {
	Email         string `json:"email"`
	TransactionID string `json:"transaction_id"`
	GHLContactID  string `json:"ghl_contact_id"`
	Force         bool   `json:"force"`
}

type GenerateAudioResponse struct {
	Success          bool   `json:"success"`
	AudioURL         string `json:"audio_url,omitempty"`
	Script           string `json:"script,omitempty"`
	DurationSeconds  int    `json:"duration_seconds,omitempty"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
	Cached           bool   `json:"cached"`
	FallbackScript   bool   `json:"fallback_script"`
	CRMSynced        bool   `json:"crm_synced"`
	CRMError         string `json:"crm_error,omitempty"`
	Error            string `json:"error,omitempty"`
}

type EnqueueAudioResponse struct {
	Success bool   `json:"success"`
	Queued  bool   `json:"queued"`
	Error   string `json:"error,omitempty"`
}

type SendMessageRequest struct {
	GHLContactID string `json:"ghl_contact_id" binding:"required"`
	AudioURL     string `json:"audio_url" binding:"required"`
	Message      string `json:"message"`
}

type SendMessageResponse struct {
	Success        bool   `json:"success"`
	MessageID      string `json:"message_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

type ListJobsRequest struct {
	Email    string `form:"email"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	ID               string `json:"id"`
	SurveyResponseID string `json:"survey_response_id"`
	Email            string `json:"email"`
	GHLContactID     string `json:"ghl_contact_id,omitempty"`
	Status           string `json:"status"`
	Finished         bool   `json:"finished"`
	ScriptText       string `json:"script_text,omitempty"`
	AudioURL         string `json:"audio_url,omitempty"`
	DurationSeconds  int    `json:"duration_seconds,omitempty"`
	FallbackScript   bool   `json:"fallback_script"`
	ErrorMessage     string `json:"error_message,omitempty"`
	CRMErrorMessage  string `json:"crm_error_message,omitempty"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
	CompletedAt      string `json:"completed_at,omitempty"`
}
