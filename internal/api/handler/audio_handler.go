package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/audio-pipeline/internal/api/dto"
	"github.com/cuongbtq/audio-pipeline/internal/domain"
	"github.com/cuongbtq/audio-pipeline/internal/pipeline"
	"github.com/cuongbtq/audio-pipeline/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// GenerateAudio handles POST /api/v1/audio/generate
// Runs the pipeline and waits for the result. With ?async=true the request
// is queued for the worker service instead.
func (h *AudioHandler) GenerateAudio(c *gin.Context) {
	var req dto.GenerateAudioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log(c).Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.GenerateAudioResponse{
			Error: "Invalid request body",
		})
		return
	}

	h.log(c).Info("GenerateAudio called",
		slog.String("email", req.Email),
		slog.String("transaction_id", req.TransactionID),
		slog.Bool("force", req.Force),
	)

	if c.Query("async") == "true" {
		h.enqueue(c, req)
		return
	}

	result, err := h.generator.Generate(c.Request.Context(), pipeline.Request{
		Email:         req.Email,
		TransactionID: req.TransactionID,
		GHLContactID:  req.GHLContactID,
		Force:         req.Force,
	})
	if err != nil {
		status := statusFor(err)
		h.log(c).Error("Failed to generate audio",
			slog.Int("status", status),
			slog.String("stage", domain.StageOf(err)),
			slog.String("error", err.Error()),
		)
		c.JSON(status, dto.GenerateAudioResponse{
			Error: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, dto.GenerateAudioResponse{
		Success:          true,
		AudioURL:         result.AudioURL,
		Script:           result.Script,
		DurationSeconds:  result.DurationSeconds,
		ProcessingTimeMs: result.ProcessingTime.Milliseconds(),
		Cached:           result.Cached,
		FallbackScript:   result.FallbackScript,
		CRMSynced:        result.CRMUpdated,
		CRMError:         result.CRMError,
	})
}

func (h *AudioHandler) enqueue(c *gin.Context, req dto.GenerateAudioRequest) {
	if req.Email == "" && req.TransactionID == "" {
		c.JSON(http.StatusBadRequest, dto.EnqueueAudioResponse{
			Error: "email or transaction_id is required",
		})
		return
	}
	if h.queue == nil {
		c.JSON(http.StatusServiceUnavailable, dto.EnqueueAudioResponse{
			Error: "Queue is not configured",
		})
		return
	}

	body, err := json.Marshal(req)
	if err != nil {
		h.log(c).Error("Failed to encode trigger", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.EnqueueAudioResponse{
			Error: "Failed to encode request",
		})
		return
	}

	if err := h.queue.PublishWithRetry(c.Request.Context(), "", body, "application/json"); err != nil {
		h.log(c).Error("Failed to enqueue audio job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.EnqueueAudioResponse{
			Error: "Failed to enqueue audio job",
		})
		return
	}

	c.JSON(http.StatusAccepted, dto.EnqueueAudioResponse{
		Success: true,
		Queued:  true,
	})
}

// GetJob handles GET /api/v1/audio/jobs/:survey_response_id
func (h *AudioHandler) GetJob(c *gin.Context) {
	surveyResponseID := c.Param("survey_response_id")

	h.log(c).Info("GetJob called", slog.String("survey_response_id", surveyResponseID))

	if _, err := uuid.Parse(surveyResponseID); err != nil {
		h.log(c).Error("Invalid survey_response_id format",
			slog.String("survey_response_id", surveyResponseID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "survey_response_id must be a valid UUID",
		})
		return
	}

	file, err := h.jobs.GetAudioFile(c.Request.Context(), surveyResponseID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Audio job not found",
			})
			return
		}
		h.log(c).Error("Failed to get audio job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get audio job",
		})
		return
	}

	c.JSON(http.StatusOK, toJobDTO(file))
}

// ListJobs handles GET /api/v1/audio/jobs
// Lists job records newest first with keyset pagination
func (h *AudioHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.log(c).Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.log(c).Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	files, err := h.jobs.ListAudioFiles(c.Request.Context(), storage.JobFilter{
		Status:   req.Status,
		Email:    req.Email,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.log(c).Error("Failed to list audio jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list audio jobs",
		})
		return
	}

	hasMore := len(files) > req.PageSize
	if hasMore {
		files = files[:req.PageSize]
	}

	jobs := make([]dto.JobDTO, len(files))
	for i := range files {
		jobs[i] = toJobDTO(&files[i])
	}

	var nextCursor string
	if hasMore {
		last := files[len(files)-1]
		nextCursor = EncodeJobCursor(&storage.JobCursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobs,
		NextCursor: nextCursor,
	})
}

// SendMessage handles POST /api/v1/audio/messages
// Sends an audio URL to a CRM contact on the configured channel
func (h *AudioHandler) SendMessage(c *gin.Context) {
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log(c).Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.SendMessageResponse{
			Error: "ghl_contact_id and audio_url are required",
		})
		return
	}
	if h.messenger == nil {
		c.JSON(http.StatusServiceUnavailable, dto.SendMessageResponse{
			Error: "Messaging is not configured",
		})
		return
	}

	result, err := h.messenger.SendAudio(c.Request.Context(), req.GHLContactID, req.AudioURL, req.Message)
	if err != nil {
		status := statusFor(err)
		h.log(c).Error("Failed to send message",
			slog.Int("status", status),
			slog.String("contact_id", req.GHLContactID),
			slog.String("error", err.Error()),
		)
		c.JSON(status, dto.SendMessageResponse{
			Error: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, dto.SendMessageResponse{
		Success:        true,
		MessageID:      result.MessageID,
		ConversationID: result.ConversationID,
	})
}

func toJobDTO(f *domain.AudioFile) dto.JobDTO {
	job := dto.JobDTO{
		ID:               f.ID,
		SurveyResponseID: f.SurveyResponseID,
		Email:            f.Email,
		GHLContactID:     f.GHLContactID,
		Status:           f.Status,
		Finished:         domain.IsTerminal(f.Status),
		ScriptText:       f.ScriptText,
		AudioURL:         f.AudioURL,
		DurationSeconds:  f.DurationSeconds,
		FallbackScript:   f.FallbackScript,
		ErrorMessage:     f.ErrorMessage,
		CRMErrorMessage:  f.CRMErrorMessage,
		CreatedAt:        f.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        f.UpdatedAt.Format(time.RFC3339),
	}
	if f.CompletedAt != nil {
		job.CompletedAt = f.CompletedAt.Format(time.RFC3339)
	}
	return job
}
