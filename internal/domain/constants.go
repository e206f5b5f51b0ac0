package domain

// Job record status constants
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Pipeline stage names used in logs, metrics and stage errors
const (
	StageValidate   = "validate"
	StageContact    = "contact_lookup"
	StageLoadSurvey = "load_survey"
	StageClaim      = "claim"
	StageScript     = "script"
	StageSanitize   = "sanitize"
	StageSynthesis  = "synthesis"
	StageUpload     = "upload"
	StageCRM        = "crm"
)

// CanTransition reports whether a job record may move from one status to another.
// A forced regeneration is the only way out of completed.
func CanTransition(from, to string, force bool) bool {
	switch from {
	case "", StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	case StatusFailed:
		return to == StatusProcessing
	case StatusCompleted:
		return force && to == StatusProcessing
	default:
		return false
	}
}

// IsTerminal reports whether status is completed or failed.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}
