// Package metrics provides Prometheus collectors for the bot service.
//
// Metrics are registered with the default registry on package import and
// exposed by the ops server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "referral_ai_bot"

var (
	// UpdatesHandled counts inbound Telegram updates by outcome.
	UpdatesHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "updates_total",
			Help:      "Total number of handled updates by outcome",
		},
		[]string{"outcome"}, // handled, flood_limited, error, panic
	)

	// AccessDecisions counts access policy outcomes by reason.
	AccessDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "access",
			Name:      "decisions_total",
			Help:      "Total number of access decisions by reason",
		},
		[]string{"reason"}, // admin, first_question, referrals, insufficient_referrals, store_error
	)

	// ReferralRegistrations counts registration attempts by result.
	ReferralRegistrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "referral",
			Name:      "registrations_total",
			Help:      "Total number of referral registration attempts by result",
		},
		[]string{"result"}, // success, self_referral, already_referred, duplicate, unknown_user, store_error
	)

	// BroadcastDeliveries counts per-recipient broadcast sends by result.
	BroadcastDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "deliveries_total",
			Help:      "Total number of broadcast deliveries by result",
		},
		[]string{"result"}, // delivered, failed, retried
	)

	// BroadcastRuns counts broadcast starts by outcome.
	BroadcastRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "runs_total",
			Help:      "Total number of broadcast run attempts by outcome",
		},
		[]string{"outcome"}, // started, busy, reclaimed, completed, cancelled
	)

	// CompletionDuration measures completion service round trips.
	CompletionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ai",
			Name:      "completion_duration_seconds",
			Help:      "Duration of completion service requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"result"}, // success, error, empty
	)
)
