package adminmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SitesBySubscriptionStatus tracks the number of sites per persisted subscription status.
	SitesBySubscriptionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pageit",
		Subsystem: "admin",
		Name:      "sites_by_subscription_status",
		Help:      "Number of sites by persisted subscription status.",
	}, []string{"status"})

	// WebhookRequestsTotal counts Stripe webhook requests by event type and status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pageit",
		Subsystem: "admin",
		Name:      "webhook_requests_total",
		Help:      "Total Stripe webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// WebhookDuration tracks Stripe webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pageit",
		Subsystem: "admin",
		Name:      "webhook_duration_seconds",
		Help:      "Stripe webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// WebhookEventsTotal counts reconciled webhook events by type and outcome.
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pageit",
		Subsystem: "admin",
		Name:      "webhook_events_total",
		Help:      "Webhook events by type and outcome (applied, unresolved, ignored, failed).",
	}, []string{"event_type", "outcome"})

	// StatusChecksTotal counts live subscription status checks by result.
	StatusChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pageit",
		Subsystem: "admin",
		Name:      "status_checks_total",
		Help:      "Live subscription status checks by resulting display status.",
	}, []string{"status"})

	// NotificationsTotal counts notification email deliveries by outcome.
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pageit",
		Subsystem: "admin",
		Name:      "notifications_total",
		Help:      "Notification emails by outcome (sent, failed, dropped).",
	}, []string{"outcome"})
)
