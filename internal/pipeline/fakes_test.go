package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cuongbtq/audio-pipeline/internal/artifact"
	"github.com/cuongbtq/audio-pipeline/internal/domain"
	"github.com/cuongbtq/audio-pipeline/internal/llm"
	"github.com/cuongbtq/audio-pipeline/internal/tts"
	"github.com/google/uuid"
)

// memStore keeps surveys and audio files in memory with the same claim
// rules as the SQL upsert.
type memStore struct {
	mu      sync.Mutex
	surveys []*domain.SurveyResponse
	files   map[string]*domain.AudioFile // by survey response id

	completeErr error
	crmResults  []string
}

func newMemStore(surveys ...*domain.SurveyResponse) *memStore {
	return &memStore{surveys: surveys, files: map[string]*domain.AudioFile{}}
}

func (m *memStore) LatestSurvey(_ context.Context, transactionID, email string) (*domain.SurveyResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pick := func(match func(*domain.SurveyResponse) bool) *domain.SurveyResponse {
		var latest *domain.SurveyResponse
		for _, s := range m.surveys {
			if match(s) && (latest == nil || s.CreatedAt.After(latest.CreatedAt)) {
				latest = s
			}
		}
		return latest
	}

	if transactionID != "" {
		if s := pick(func(s *domain.SurveyResponse) bool { return s.TransactionID == transactionID }); s != nil {
			return s, nil
		}
	}
	if email != "" {
		if s := pick(func(s *domain.SurveyResponse) bool { return strings.EqualFold(s.Email, email) }); s != nil {
			return s, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memStore) GetAudioFile(_ context.Context, surveyResponseID string) (*domain.AudioFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[surveyResponseID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *memStore) ClaimAudioFile(_ context.Context, p domain.ClaimParams) (*domain.AudioFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[p.SurveyResponseID]
	if !ok {
		f = &domain.AudioFile{
			ID:               uuid.NewString(),
			SurveyResponseID: p.SurveyResponseID,
			CreatedAt:        time.Now(),
		}
		m.files[p.SurveyResponseID] = f
	} else {
		stale := f.Status == domain.StatusProcessing && f.UpdatedAt.Before(p.StaleBefore)
		if !domain.CanTransition(f.Status, domain.StatusProcessing, p.Force) && !stale {
			return nil, domain.ErrJobInProgress
		}
	}

	f.Status = domain.StatusProcessing
	f.Email = p.Email
	if p.GHLContactID != "" {
		f.GHLContactID = p.GHLContactID
	}
	f.ErrorMessage = ""
	f.CRMErrorMessage = ""
	f.CompletedAt = nil
	f.UpdatedAt = time.Now()
	cp := *f
	return &cp, nil
}

func (m *memStore) byID(id string) *domain.AudioFile {
	for _, f := range m.files {
		if f.ID == id {
			return f
		}
	}
	return nil
}

func (m *memStore) updateProcessing(id string, fn func(f *domain.AudioFile)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.byID(id)
	if f == nil || f.Status != domain.StatusProcessing {
		return domain.ErrJobInProgress
	}
	fn(f)
	f.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) SavePrompt(_ context.Context, id, prompt string) error {
	return m.updateProcessing(id, func(f *domain.AudioFile) { f.PromptText = prompt })
}

func (m *memStore) SaveScript(_ context.Context, id string, u domain.ScriptUpdate) error {
	return m.updateProcessing(id, func(f *domain.AudioFile) {
		f.ScriptText = u.ScriptText
		f.LLMRequestID = u.LLMRequestID
		f.LLMPromptTokens = u.LLMPromptTokens
		f.LLMCompletionTokens = u.LLMCompletionTokens
		f.FallbackScript = u.FallbackScript
	})
}

func (m *memStore) Complete(_ context.Context, id string, u domain.CompletionUpdate) error {
	if m.completeErr != nil {
		return m.completeErr
	}
	return m.updateProcessing(id, func(f *domain.AudioFile) {
		now := time.Now()
		f.Status = domain.StatusCompleted
		f.AudioURL = u.AudioURL
		f.StoragePath = u.StoragePath
		f.DurationSeconds = u.DurationSeconds
		f.TTSRequestID = u.TTSRequestID
		f.CompletedAt = &now
	})
}

func (m *memStore) Fail(_ context.Context, id, message string) error {
	return m.updateProcessing(id, func(f *domain.AudioFile) {
		f.Status = domain.StatusFailed
		f.ErrorMessage = message
	})
}

func (m *memStore) SaveCRMResult(_ context.Context, id, contactID, crmError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.byID(id)
	if f == nil {
		return domain.ErrJobNotFound
	}
	if contactID != "" {
		f.GHLContactID = contactID
	}
	f.CRMErrorMessage = crmError
	m.crmResults = append(m.crmResults, crmError)
	return nil
}

func (m *memStore) file(surveyID string) domain.AudioFile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.files[surveyID]
}

type fakeCompleter struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (f *fakeCompleter) Name() string { return "fake" }

func (f *fakeCompleter) Complete(context.Context, llm.Request) (*llm.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Completion{
		Text:      f.text,
		RequestID: "llm-req-1",
		Usage:     &llm.Usage{PromptTokens: 200, CompletionTokens: 120, TotalTokens: 320},
	}, nil
}

func (f *fakeCompleter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSynth struct {
	mu       sync.Mutex
	err      error
	calls    int
	lastText string
}

func (f *fakeSynth) Name() string { return "fake" }

func (f *fakeSynth) Synthesize(ctx context.Context, text string) (*tts.Audio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastText = text
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return &tts.Audio{Data: []byte("ID3audio"), ContentType: "audio/mpeg", RequestID: "tts-req-1"}, nil
}

func (f *fakeSynth) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeArtifacts struct {
	mu   sync.Mutex
	err  error
	keys []string
}

func (f *fakeArtifacts) Put(_ context.Context, key string, data []byte, _ string) (*artifact.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.keys = append(f.keys, key)
	return &artifact.Object{Key: key, URL: "https://cdn.example.com/audio/" + key, Size: int64(len(data))}, nil
}

type fakeContacts struct {
	id    string
	err   error
	calls int
}

func (f *fakeContacts) FindContactByEmail(context.Context, string) (string, error) {
	f.calls++
	return f.id, f.err
}

type crmCall struct {
	contactID string
	audioURL  string
	script    string
}

type fakeCRM struct {
	mu    sync.Mutex
	err   error
	calls []crmCall
}

func (f *fakeCRM) Update(_ context.Context, contactID, audioURL, script string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, crmCall{contactID: contactID, audioURL: audioURL, script: script})
	return f.err
}

var errProvider = errors.New("provider unavailable")
