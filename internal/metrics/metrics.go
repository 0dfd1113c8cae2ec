package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Reconciles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classroom_schedule_reconciles_total",
		Help: "Schedule reconciliations by outcome (noop, recreated, degraded, failed).",
	}, []string{"outcome"})

	SessionsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classroom_sessions_generated_total",
		Help: "Session occurrences inserted by reconciliation.",
	})

	SessionsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classroom_sessions_deleted_total",
		Help: "Future session occurrences removed by reconciliation.",
	})

	MeetingProvisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classroom_meeting_provisions_total",
		Help: "Meeting provisioning attempts by path and result.",
	}, []string{"path", "result"})

	DispatchPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classroom_dispatch_publishes_total",
		Help: "Background job publishes by result.",
	}, []string{"result"})

	JobAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classroom_job_attempts_total",
		Help: "Background job attempts by result (ok, retry, dead).",
	}, []string{"result"})

	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classroom_webhook_events_total",
		Help: "Meeting webhook events by kind and outcome.",
	}, []string{"kind", "outcome"})

	TokensIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classroom_customer_keys_total",
		Help: "Customer key requests by result (minted, reused).",
	}, []string{"result"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classroom_notifications_total",
		Help: "Schedule-change notifications by result (sent, deduped, failed).",
	}, []string{"result"})
)
