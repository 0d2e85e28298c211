package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cleanupStepFailuresTotal, orphansReapedTotal) }

var cleanupStepFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "import_cleanup_step_failures_total",
		Help: "Cleanup step failures by step (revoke_credential/destroy_machine/destroy_volume).",
	},
	[]string{"step"},
)

var orphansReapedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "import_orphans_reaped_total",
		Help: "Orphaned provider resources destroyed by the reaper sweep.",
	},
	[]string{"resource"}, // 'machine', 'volume'
)

func IncCleanupFailure(step string) {
	cleanupStepFailuresTotal.WithLabelValues(norm(step)).Inc()
}

func IncOrphanReaped(resource string) {
	orphansReapedTotal.WithLabelValues(norm(resource)).Inc()
}
