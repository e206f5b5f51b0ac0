package pipeline

import (
	"context"
	"time"

	"github.com/cuongbtq/audio-pipeline/internal/domain"
	"github.com/cuongbtq/audio-pipeline/internal/script"
)

// Store is the job record and survey persistence the orchestrator needs
type Store interface {
	LatestSurvey(ctx context.Context, transactionID, email string) (*domain.SurveyResponse, error)
	GetAudioFile(ctx context.Context, surveyResponseID string) (*domain.AudioFile, error)
	ClaimAudioFile(ctx context.Context, params domain.ClaimParams) (*domain.AudioFile, error)
	SavePrompt(ctx context.Context, id, prompt string) error
	SaveScript(ctx context.Context, id string, update domain.ScriptUpdate) error
	Complete(ctx context.Context, id string, update domain.CompletionUpdate) error
	Fail(ctx context.Context, id, message string) error
	SaveCRMResult(ctx context.Context, id, contactID, crmError string) error
}

// ScriptGenerator produces a script for a prompt and never fails
type ScriptGenerator interface {
	Generate(ctx context.Context, prompt, firstName string) *script.Script
}

// ContactFinder looks up a CRM contact id by email
type ContactFinder interface {
	FindContactByEmail(ctx context.Context, email string) (string, error)
}

// FieldUpdater publishes the audio URL and script onto a CRM contact
type FieldUpdater interface {
	Update(ctx context.Context, contactID, audioURL, script string) error
}

// Config holds the pipeline tunables
type Config struct {
	MinScriptChars int
	MaxScriptChars int
	CharsPerSecond float64
	// JobTimeout bounds a whole run independently of the caller
	JobTimeout time.Duration
	// StaleAfter is how long a processing record may go without updates
	// before another run may take it over. Raised to twice JobTimeout when
	// not longer than it.
	StaleAfter time.Duration
}

// Request identifies the survey response to generate audio for.
// At least one of Email and TransactionID is required.
type Request struct {
	Email         string `json:"email"`
	TransactionID string `json:"transaction_id"`
	GHLContactID  string `json:"ghl_contact_id"`
	Force         bool   `json:"force"`
}

// Result is the outcome of a successful run
type Result struct {
	AudioFileID      string
	SurveyResponseID string
	AudioURL         string
	StoragePath      string
	Script           string
	DurationSeconds  int
	ProcessingTime   time.Duration
	Cached           bool
	FallbackScript   bool
	ContactID        string
	CRMUpdated       bool
	CRMError         string
}
