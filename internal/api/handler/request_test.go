package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudioHandler_LogCarriesRequestID(t *testing.T) {
	tests := []struct {
		name      string
		requestID string
	}{
		{name: "with request id", requestID: "req-42"},
		{name: "without request id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			var buf bytes.Buffer
			h := NewAudioHandler(&Dependencies{Logger: slog.New(slog.NewJSONHandler(&buf, nil))})

			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/jobs", nil)
			if tt.requestID != "" {
				c.Set(RequestIDKey, tt.requestID)
			}

			assert.Equal(t, tt.requestID, RequestID(c))
			h.log(c).Info("listing jobs")

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			if tt.requestID == "" {
				assert.NotContains(t, entry, RequestIDKey)
				return
			}
			assert.Equal(t, tt.requestID, entry[RequestIDKey])
		})
	}
}
