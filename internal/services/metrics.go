package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// subscriptionsTotal counts subscription flow outcomes.
	subscriptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriptions_total",
			Help: "Subscription requests and confirmations by outcome.",
		},
		[]string{"outcome"},
	)

	// deliveriesTotal counts per-recipient newsletter delivery outcomes.
	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsletter_deliveries_total",
			Help: "Newsletter deliveries by outcome (delivered, failed, skipped).",
		},
		[]string{"outcome"},
	)

	// publishReplaysTotal counts publish requests answered from the idempotency store.
	publishReplaysTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "newsletter_publish_replays_total",
			Help: "Publish requests served from a stored response.",
		},
	)
)

func init() {
	prometheus.MustRegister(subscriptionsTotal, deliveriesTotal, publishReplaysTotal)
}
