package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	processedJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_worker_jobs_total",
		Help: "Jobs completed by handlers.",
	}, []string{"type"})
	failedJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_worker_failures_total",
		Help: "Jobs whose handler returned an error.",
	}, []string{"type"})
	dedupedJobs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_worker_deduped_total",
		Help: "Jobs skipped because their idempotency key was seen recently.",
	})
	malformedEntries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_worker_malformed_total",
		Help: "Stream entries dropped at decode time.",
	})
)
