package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	RequestsCollectorName = "http_requests_total"
	LatencyCollectorName  = "http_request_duration_milliseconds"
)

var requestsMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: audioPipeline,
		Name:      RequestsCollectorName,
		Help:      "Number of HTTP requests partitioned by status code, method and HTTP path.",
	}, []string{"code", "method", "path"})

var latencyMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: audioPipeline,
		Name:      LatencyCollectorName,
		Help:      "Time spent on the request partitioned by status code, method and HTTP path.",
		Buckets:   []float64{50, 300, 1000, 5000, 15000, 60000},
	}, []string{"code", "method", "path"})

// Middleware records request count and latency by route pattern
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		code := strconv.Itoa(c.Writer.Status())
		requestsMetric.WithLabelValues(code, c.Request.Method, path).Inc()
		latencyMetric.WithLabelValues(code, c.Request.Method, path).
			Observe(float64(time.Since(start).Milliseconds()))
	}
}
