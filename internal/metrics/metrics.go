package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "practice",
		Name:      "http_responses_total",
		Help:      "HTTP responses by route pattern and status code.",
	}, []string{"route", "status"})

	analyses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "practice",
		Name:      "analyses_total",
		Help:      "Analyses created by target and outcome.",
	}, []string{"target", "outcome"})

	segments = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "practice",
		Name:      "segments_recorded_total",
		Help:      "Practice segments stored.",
	})

	jobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "practice",
		Name:      "job_runs_total",
		Help:      "Background job runs by job and result.",
	}, []string{"job", "result"})

	jobAffected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "practice",
		Name:      "job_rows_affected_total",
		Help:      "Rows changed by background jobs.",
	}, []string{"job"})
)

func ObserveResponse(route string, status int) {
	if route == "" {
		route = "unmatched"
	}
	httpResponses.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// ObserveAnalysis records one analysis for target "session" or "segment";
// outcome is "model" or "fallback".
func ObserveAnalysis(target string, fallback bool) {
	outcome := "model"
	if fallback {
		outcome = "fallback"
	}
	analyses.WithLabelValues(target, outcome).Inc()
}

func ObserveSegment() {
	segments.Inc()
}

func ObserveJob(job string, affected int64, err error) {
	if err != nil {
		jobRuns.WithLabelValues(job, "error").Inc()
		return
	}
	jobRuns.WithLabelValues(job, "ok").Inc()
	jobAffected.WithLabelValues(job).Add(float64(affected))
}
