package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 按最终状态统计执行过的任务，status 为 completed 或 failed
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "text_distorter",
		Subsystem: "worker",
		Name:      "runs_total",
		Help:      "Distortion runs executed by the worker, by final status",
	}, []string{"status"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "text_distorter",
		Subsystem: "worker",
		Name:      "run_duration_seconds",
		Help:      "Wall-clock time of a single distortion run",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s ~ 34min
	}, []string{"status"})

	// reason: missing, not_pending, claimed, malformed
	skippedJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "text_distorter",
		Subsystem: "worker",
		Name:      "skipped_jobs_total",
		Help:      "Jobs acknowledged without running, by reason",
	}, []string{"reason"})
)
