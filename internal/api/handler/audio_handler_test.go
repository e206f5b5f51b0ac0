package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuongbtq/audio-pipeline/internal/api/dto"
	"github.com/cuongbtq/audio-pipeline/internal/crm"
	"github.com/cuongbtq/audio-pipeline/internal/domain"
	"github.com/cuongbtq/audio-pipeline/internal/pipeline"
	"github.com/cuongbtq/audio-pipeline/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	result *pipeline.Result
	err    error
	got    pipeline.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	f.got = req
	return f.result, f.err
}

type fakeJobs struct {
	file   *domain.AudioFile
	files  []domain.AudioFile
	err    error
	filter storage.JobFilter
}

func (f *fakeJobs) GetAudioFile(context.Context, string) (*domain.AudioFile, error) {
	return f.file, f.err
}

func (f *fakeJobs) ListAudioFiles(_ context.Context, filter storage.JobFilter) ([]domain.AudioFile, error) {
	f.filter = filter
	return f.files, f.err
}

type fakeQueue struct {
	bodies [][]byte
	err    error
}

func (f *fakeQueue) PublishWithRetry(_ context.Context, _ string, body []byte, _ string) error {
	f.bodies = append(f.bodies, body)
	return f.err
}

type fakeSender struct {
	err error
}

func (f *fakeSender) SendAudio(context.Context, string, string, string) (*crm.MessageResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &crm.MessageResult{MessageID: "msg-1", ConversationID: "conv-1"}, nil
}

func setupEngine(deps *Dependencies) *gin.Engine {
	gin.SetMode(gin.TestMode)
	deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewAudioHandler(deps)

	r := gin.New()
	r.POST("/generate", h.GenerateAudio)
	r.GET("/jobs", h.ListJobs)
	r.GET("/jobs/:survey_response_id", h.GetJob)
	r.POST("/messages", h.SendMessage)
	return r
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGenerateAudio(t *testing.T) {
	success := &pipeline.Result{
		AudioURL:        "https://cdn.example.com/a.mp3",
		Script:          "Hey Ana",
		DurationSeconds: 12,
		ProcessingTime:  1500 * time.Millisecond,
		Cached:          true,
		CRMUpdated:      false,
		CRMError:        "crm propagation error: timeout",
	}

	tests := []struct {
		name       string
		body       string
		result     *pipeline.Result
		err        error
		wantStatus int
		wantOK     bool
	}{
		{
			name:       "success",
			body:       `{"email":"ana@bakery.com","force":true}`,
			result:     success,
			wantStatus: http.StatusOK,
			wantOK:     true,
		},
		{
			name:       "malformed body",
			body:       `{"email":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid request",
			body:       `{}`,
			err:        domain.NewStageError(domain.StageValidate, domain.ErrInvalidRequest, nil),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid script length",
			body:       `{"email":"ana@bakery.com"}`,
			err:        domain.NewStageError(domain.StageSanitize, domain.ErrInvalidScriptLength, nil),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "not found",
			body:       `{"transaction_id":"tx-9"}`,
			err:        domain.NewStageError(domain.StageLoadSurvey, domain.ErrNotFound, nil),
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "in progress",
			body:       `{"email":"ana@bakery.com"}`,
			err:        domain.NewStageError(domain.StageClaim, domain.ErrJobInProgress, nil),
			wantStatus: http.StatusConflict,
		},
		{
			name:       "synthesis failure",
			body:       `{"email":"ana@bakery.com"}`,
			err:        domain.NewStageError(domain.StageSynthesis, domain.ErrSynthesis, errors.New("tts returned status 500")),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{result: tt.result, err: tt.err}
			r := setupEngine(&Dependencies{Generator: gen})

			w := doJSON(r, http.MethodPost, "/generate", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp dto.GenerateAudioResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantOK, resp.Success)
			if !tt.wantOK {
				assert.NotEmpty(t, resp.Error)
				return
			}
			assert.Equal(t, "https://cdn.example.com/a.mp3", resp.AudioURL)
			assert.Equal(t, int64(1500), resp.ProcessingTimeMs)
			assert.True(t, resp.Cached)
			assert.False(t, resp.CRMSynced)
			assert.NotEmpty(t, resp.CRMError)
			assert.True(t, gen.got.Force)
		})
	}
}

func TestGenerateAudio_Async(t *testing.T) {
	t.Run("queued", func(t *testing.T) {
		queue := &fakeQueue{}
		gen := &fakeGenerator{}
		r := setupEngine(&Dependencies{Generator: gen, Queue: queue})

		w := doJSON(r, http.MethodPost, "/generate?async=true", `{"transaction_id":"tx-1","ghl_contact_id":"c-1"}`)

		assert.Equal(t, http.StatusAccepted, w.Code)
		require.Len(t, queue.bodies, 1)
		assert.JSONEq(t, `{"email":"","transaction_id":"tx-1","ghl_contact_id":"c-1","force":false}`, string(queue.bodies[0]))
		assert.Empty(t, gen.got.TransactionID, "pipeline not run inline")
	})

	t.Run("missing identifiers", func(t *testing.T) {
		queue := &fakeQueue{}
		r := setupEngine(&Dependencies{Queue: queue})

		w := doJSON(r, http.MethodPost, "/generate?async=true", `{}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, queue.bodies)
	})

	t.Run("no queue", func(t *testing.T) {
		r := setupEngine(&Dependencies{})

		w := doJSON(r, http.MethodPost, "/generate?async=true", `{"email":"ana@bakery.com"}`)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("publish failure", func(t *testing.T) {
		r := setupEngine(&Dependencies{Queue: &fakeQueue{err: errors.New("channel closed")}})

		w := doJSON(r, http.MethodPost, "/generate?async=true", `{"email":"ana@bakery.com"}`)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestGetJob(t *testing.T) {
	completedAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	file := &domain.AudioFile{
		ID:               "f7a4c1de-8a8f-4a55-9d3c-0c7e1f6f2d11",
		SurveyResponseID: "0d5c9a3e-2b1f-4f6b-8c3e-7a9d1e2f3b4c",
		Status:           domain.StatusCompleted,
		AudioURL:         "https://cdn.example.com/a.mp3",
		CreatedAt:        completedAt.Add(-time.Minute),
		UpdatedAt:        completedAt,
		CompletedAt:      &completedAt,
	}

	tests := []struct {
		name       string
		id         string
		jobs       *fakeJobs
		wantStatus int
	}{
		{name: "found", id: file.SurveyResponseID, jobs: &fakeJobs{file: file}, wantStatus: http.StatusOK},
		{name: "invalid id", id: "not-a-uuid", jobs: &fakeJobs{}, wantStatus: http.StatusBadRequest},
		{name: "not found", id: file.SurveyResponseID, jobs: &fakeJobs{err: domain.ErrJobNotFound}, wantStatus: http.StatusNotFound},
		{name: "store failure", id: file.SurveyResponseID, jobs: &fakeJobs{err: errors.New("db down")}, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupEngine(&Dependencies{Jobs: tt.jobs})

			w := doJSON(r, http.MethodGet, "/jobs/"+tt.id, "")

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}
			var job dto.JobDTO
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
			assert.Equal(t, domain.StatusCompleted, job.Status)
			assert.True(t, job.Finished)
			assert.Equal(t, "2025-03-01T10:00:00Z", job.CompletedAt)
		})
	}
}

func TestListJobs(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	files := []domain.AudioFile{
		{ID: "c", Status: domain.StatusCompleted, CreatedAt: base.Add(2 * time.Minute)},
		{ID: "b", Status: domain.StatusCompleted, CreatedAt: base.Add(time.Minute)},
		{ID: "a", Status: domain.StatusCompleted, CreatedAt: base},
	}

	t.Run("next page", func(t *testing.T) {
		jobs := &fakeJobs{files: files}
		r := setupEngine(&Dependencies{Jobs: jobs})

		w := doJSON(r, http.MethodGet, "/jobs?page_size=2&status=completed", "")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 2, jobs.filter.PageSize)
		assert.Equal(t, domain.StatusCompleted, jobs.filter.Status)

		var resp dto.ListJobsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Jobs, 2)
		require.NotEmpty(t, resp.NextCursor)

		cursor, err := DecodeJobCursor(resp.NextCursor)
		require.NoError(t, err)
		assert.Equal(t, "b", cursor.ID)
		assert.True(t, cursor.CreatedAt.Equal(base.Add(time.Minute)))
	})

	t.Run("last page", func(t *testing.T) {
		jobs := &fakeJobs{files: files[:1]}
		r := setupEngine(&Dependencies{Jobs: jobs})

		w := doJSON(r, http.MethodGet, "/jobs?page_size=500", "")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, maxPageSize, jobs.filter.PageSize)
		var resp dto.ListJobsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Jobs, 1)
		assert.Empty(t, resp.NextCursor)
	})

	t.Run("invalid cursor", func(t *testing.T) {
		r := setupEngine(&Dependencies{Jobs: &fakeJobs{}})

		w := doJSON(r, http.MethodGet, "/jobs?cursor=%25%25", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSendMessage(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		sender     AudioSender
		wantStatus int
	}{
		{
			name:       "sent",
			body:       `{"ghl_contact_id":"c-1","audio_url":"https://cdn.example.com/a.mp3"}`,
			sender:     &fakeSender{},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing audio url",
			body:       `{"ghl_contact_id":"c-1"}`,
			sender:     &fakeSender{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "crm failure",
			body:       `{"ghl_contact_id":"c-1","audio_url":"https://cdn.example.com/a.mp3"}`,
			sender:     &fakeSender{err: errors.Join(domain.ErrCrmPropagation, errors.New("401"))},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "not configured",
			body:       `{"ghl_contact_id":"c-1","audio_url":"https://cdn.example.com/a.mp3"}`,
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := &Dependencies{}
			if tt.sender != nil {
				deps.Messenger = tt.sender
			}
			r := setupEngine(deps)

			w := doJSON(r, http.MethodPost, "/messages", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp dto.SendMessageResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			if tt.wantStatus == http.StatusOK {
				assert.True(t, resp.Success)
				assert.Equal(t, "msg-1", resp.MessageID)
			}
		})
	}
}
