package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scheduledJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_scheduler_jobs_total",
		Help: "Session jobs accepted and republished by the scheduler.",
	}, []string{"type"})
	scheduleFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_scheduler_failures_total",
		Help: "User-facing scheduling failures by code.",
	}, []string{"code"})
	crashFailovers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_scheduler_failovers_total",
		Help: "Sessions released because their bound worker lost presence.",
	})
	sweptSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_sweeper_sessions_total",
		Help: "Orphaned sessions reclaimed by the background sweeper.",
	})
)
