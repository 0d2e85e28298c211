package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(webhooksReceivedTotal) }

var webhooksReceivedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "import_webhooks_received_total",
		Help: "Progress webhooks by outcome (applied/rejected/unknown_job).",
	},
	[]string{"outcome"},
)

func IncWebhook(outcome string) {
	webhooksReceivedTotal.WithLabelValues(norm(outcome)).Inc()
}
