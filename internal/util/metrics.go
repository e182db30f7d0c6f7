package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	}, []string{"payment_method"})

	OrdersClaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_claimed_total",
		Help: "Total number of orders claimed by drivers",
	})

	OrderClaimConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_claim_conflicts_total",
		Help: "Total number of claims lost to another driver or a cancellation",
	})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of cancelled orders",
	})

	OrderStageTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_stage_transitions_total",
		Help: "Total number of order stage transitions",
	}, []string{"stage"})

	PaymentsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_created_total",
		Help: "Total number of payments initiated",
	}, []string{"provider"})

	PaymentsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_finished_total",
		Help: "Total number of payments reaching a final status",
	}, []string{"provider", "status"})

	PaymentWebhooksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhooks_total",
		Help: "Total number of provider webhook calls by result code",
	}, []string{"provider", "method", "code"})

	SubscriptionsActivatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subscriptions_activated_total",
		Help: "Total number of subscription activations",
	}, []string{"plan", "period"})

	TrialsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trials_expired_total",
		Help: "Total number of trials flipped to expired",
	})

	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Total number of notifications pushed",
	}, []string{"trigger"})

	NotificationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_failures_total",
		Help: "Total number of notifications that could not be delivered",
	}, []string{"trigger"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
