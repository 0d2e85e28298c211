package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(importJobsStartedTotal, importJobsFinishedTotal) }

var importJobsStartedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "import_jobs_started_total",
		Help: "Total number of import jobs for which provisioning succeeded.",
	},
)

var importJobsFinishedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "import_jobs_finished_total",
		Help: "Total number of import jobs reaching a terminal status.",
	},
	[]string{"status"}, // 'complete', 'failed'
)

func IncJobStarted() {
	importJobsStartedTotal.Inc()
}

func IncJobFinished(status string) {
	importJobsFinishedTotal.WithLabelValues(norm(status)).Inc()
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
