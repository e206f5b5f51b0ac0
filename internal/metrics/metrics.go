package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	audioPipeline = "audio_pipeline"

	jobsTotal            = "jobs_total"
	stageDurationSeconds = "stage_duration_seconds"
	fallbackScriptsTotal = "fallback_scripts_total"
	crmPropagationTotal  = "crm_propagation_total"

	// Labels
	outcomeLabel = "outcome"
	stageLabel   = "stage"
	resultLabel  = "result"
)

// Result label values
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

/**
* Metrics definition
**/
var jobsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: audioPipeline,
		Name:      jobsTotal,
		Help:      "number of pipeline runs by outcome",
	},
	[]string{outcomeLabel},
)

var stageDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: audioPipeline,
		Name:      stageDurationSeconds,
		Help:      "time spent in each pipeline stage",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	},
	[]string{stageLabel, resultLabel},
)

var fallbackScriptsMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: audioPipeline,
		Name:      fallbackScriptsTotal,
		Help:      "number of runs that used the static fallback script",
	},
)

var crmPropagationMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: audioPipeline,
		Name:      crmPropagationTotal,
		Help:      "number of CRM field writes by result",
	},
	[]string{resultLabel},
)

func IncreaseJobsTotal(outcome string) {
	jobsTotalMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func ObserveStage(stage string, err error, d time.Duration) {
	stageDurationMetric.With(prometheus.Labels{
		stageLabel:  stage,
		resultLabel: result(err),
	}).Observe(d.Seconds())
}

func IncreaseFallbackScripts() {
	fallbackScriptsMetric.Inc()
}

func IncreaseCRMPropagation(err error) {
	crmPropagationMetric.With(prometheus.Labels{resultLabel: result(err)}).Inc()
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsTotalMetric)
	prometheus.MustRegister(stageDurationMetric)
	prometheus.MustRegister(fallbackScriptsMetric)
	prometheus.MustRegister(crmPropagationMetric)
	prometheus.MustRegister(requestsMetric)
	prometheus.MustRegister(latencyMetric)
}
