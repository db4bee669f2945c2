package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationsRecorded counts stored notifications by category.
	NotificationsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crewbell_notifications_recorded_total",
			Help: "Total number of notifications recorded",
		},
		[]string{"category"},
	)

	// NotificationsPruned counts notifications removed by the retention policy.
	NotificationsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crewbell_notifications_pruned_total",
			Help: "Total number of notifications removed by retention",
		},
	)

	// BusListenerPanics counts listeners that panicked during a publish.
	BusListenerPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crewbell_bus_listener_panics_total",
			Help: "Total number of recovered listener panics",
		},
	)

	// DutyGateDecisions records dedup gate outcomes (fire|suppress).
	DutyGateDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crewbell_duty_gate_decisions_total",
			Help: "Duty change notifications fired or suppressed by the dedup gate",
		},
		[]string{"result"},
	)

	// SoundPlaybacks records playback outcomes (played|fallback|skipped|failed).
	SoundPlaybacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crewbell_sound_playbacks_total",
			Help: "Alert sound playback attempts by outcome",
		},
		[]string{"result"},
	)

	// EscalationsFired counts escalation reminders that fired.
	EscalationsFired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crewbell_escalations_fired_total",
			Help: "Total number of escalation reminders fired",
		},
	)

	// ButtonPresses records cabin button messages by outcome (created|ignored|rejected).
	ButtonPresses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crewbell_button_presses_total",
			Help: "Cabin call button messages received over MQTT by outcome",
		},
		[]string{"result"},
	)

	// HandlerPanics counts HTTP handler panics turned into 500 responses.
	HandlerPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crewbell_http_handler_panics_total",
			Help: "Total number of recovered HTTP handler panics",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crewbell_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
