package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cuongbtq/audio-pipeline/internal/api/handler"
	"github.com/cuongbtq/audio-pipeline/internal/pipeline"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct{}

func (stubGenerator) Generate(context.Context, pipeline.Request) (*pipeline.Result, error) {
	return &pipeline.Result{AudioURL: "https://cdn.example.com/a.mp3"}, nil
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return SetupRouter(&handler.Dependencies{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Generator: stubGenerator{},
		Service:   "audio-api-test",
	})
}

func TestSetupRouter(t *testing.T) {
	r := newTestRouter()

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{name: "health", method: http.MethodGet, path: "/health", wantStatus: http.StatusOK, wantBody: "audio-api-test"},
		{name: "generate", method: http.MethodPost, path: "/api/v1/audio/generate", body: `{"email":"ana@bakery.com"}`, wantStatus: http.StatusOK, wantBody: "cdn.example.com"},
		{name: "unknown route", method: http.MethodGet, path: "/api/v1/jobs", wantStatus: http.StatusNotFound},
		{name: "preflight", method: http.MethodOptions, path: "/api/v1/audio/generate", wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter()

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "audio_pipeline_http_requests_total")
}

func TestHealthChecks(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]func(context.Context) error
		wantStatus int
		wantBody   []string
	}{
		{
			name:       "no checks",
			wantStatus: http.StatusOK,
			wantBody:   []string{`"status":"healthy"`},
		},
		{
			name: "all healthy",
			checks: map[string]func(context.Context) error{
				"database": func(context.Context) error { return nil },
				"rabbitmq": func(context.Context) error { return nil },
			},
			wantStatus: http.StatusOK,
			wantBody:   []string{`"database":"ok"`, `"rabbitmq":"ok"`},
		},
		{
			name: "one failing",
			checks: map[string]func(context.Context) error{
				"database": func(context.Context) error { return nil },
				"rabbitmq": func(context.Context) error { return errors.New("rabbitmq is not connected") },
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   []string{`"status":"unhealthy"`, `"database":"ok"`, `"rabbitmq":"rabbitmq is not connected"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			r := SetupRouter(&handler.Dependencies{
				Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
				HealthChecks: tt.checks,
			})
			w := httptest.NewRecorder()

			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			for _, want := range tt.wantBody {
				assert.Contains(t, w.Body.String(), want)
			}
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "generated when missing"},
		{name: "kept from caller", incoming: "req-123", keep: true},
		{name: "replaced when too long", incoming: strings.Repeat("x", maxRequestIDLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter()
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			if tt.incoming != "" {
				req.Header.Set(handler.RequestIDHeader, tt.incoming)
			}
			w := httptest.NewRecorder()

			r.ServeHTTP(w, req)

			got := w.Header().Get(handler.RequestIDHeader)
			require.NotEmpty(t, got)
			if tt.keep {
				assert.Equal(t, tt.incoming, got)
			} else {
				assert.NotEqual(t, tt.incoming, got)
				assert.LessOrEqual(t, len(got), maxRequestIDLength)
			}
		})
	}
}

func TestLoggerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	r := SetupRouter(&handler.Dependencies{
		Logger:    slog.New(slog.NewJSONHandler(&buf, nil)),
		Generator: stubGenerator{},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/audio/generate", strings.NewReader(`not json`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(handler.RequestIDHeader, "req-log-1")
	r.ServeHTTP(httptest.NewRecorder(), req)

	var access map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.Equal(t, "req-log-1", entry[handler.RequestIDKey], "every record carries the request id")
		if entry["msg"] == "HTTP Request" {
			access = entry
		}
	}
	require.NotNil(t, access)
	assert.Equal(t, "WARN", access["level"])
	assert.Equal(t, "/api/v1/audio/generate", access["route"])
	assert.EqualValues(t, http.StatusBadRequest, access["status"])
}

func TestCORSMiddleware(t *testing.T) {
	r := newTestRouter()
	w := httptest.NewRecorder()

	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, handler.RequestIDHeader, w.Header().Get("Access-Control-Expose-Headers"))
}
