package router

import (
	"net/http"
	"sort"

	"github.com/cuongbtq/audio-pipeline/internal/api/handler"
	"github.com/cuongbtq/audio-pipeline/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())
	r.Use(metrics.Middleware())

	service := deps.Service
	if service == "" {
		service = "audio-api-service"
	}

	// Health check endpoint, one entry per dependency
	r.GET("/health", func(c *gin.Context) {
		names := make([]string, 0, len(deps.HealthChecks))
		for name := range deps.HealthChecks {
			names = append(names, name)
		}
		sort.Strings(names)

		status := http.StatusOK
		checks := make(gin.H, len(names))
		for _, name := range names {
			if err := deps.HealthChecks[name](c.Request.Context()); err != nil {
				status = http.StatusServiceUnavailable
				checks[name] = err.Error()
				continue
			}
			checks[name] = "ok"
		}

		state := "healthy"
		if status != http.StatusOK {
			state = "unhealthy"
		}
		c.JSON(status, gin.H{
			"status":  state,
			"service": service,
			"checks":  checks,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	audioHandler := handler.NewAudioHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		audio := v1.Group("/audio")
		{
			// POST /api/v1/audio/generate - Generate (or return cached) audio for a survey response
			audio.POST("/generate", audioHandler.GenerateAudio)

			// GET /api/v1/audio/jobs - List job records with filtering and pagination
			audio.GET("/jobs", audioHandler.ListJobs)

			// GET /api/v1/audio/jobs/:survey_response_id - Get the job record of a survey response
			audio.GET("/jobs/:survey_response_id", audioHandler.GetJob)

			// POST /api/v1/audio/messages - Send an audio URL to a CRM contact
			audio.POST("/messages", audioHandler.SendMessage)
		}
	}

	return r
}
