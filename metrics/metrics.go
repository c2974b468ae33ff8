package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_connections_active",
			Help: "Client connections currently open",
		},
	)

	MatchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_match_requests_total",
			Help: "Match requests by outcome",
		},
		[]string{"result"}, // queued|banned|unavailable|duplicate|invalid
	)

	AssignmentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_session_assignments_total",
			Help: "Session assignments delivered to players",
		},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_queue_depth",
			Help: "Players waiting in the match queue",
		},
	)

	BanChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_ban_checks_total",
			Help: "Ban lookups by result",
		},
		[]string{"result"}, // clear|banned|error
	)

	BanCheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_ban_check_duration_seconds",
			Help:    "Duration of ban lookups",
			Buckets: prometheus.DefBuckets,
		},
	)

	LivenessUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_liveness_up",
			Help: "Last observed liveness of a monitored endpoint (1 up, 0 down)",
		},
		[]string{"component"},
	)

	ProbeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_probe_errors_total",
			Help: "Liveness probes that failed unexpectedly",
		},
		[]string{"component"},
	)

	AdminCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_admin_commands_total",
			Help: "Ban administration commands by source and outcome",
		},
		[]string{"source", "outcome"}, // console|pubsub; applied|rejected|failed
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_notifications_total",
			Help: "Outbound notifications by sink and result",
		},
		[]string{"sink", "result"}, // success|failure
	)
)

func init() {
	prometheus.MustRegister(ConnectionsActive)
	prometheus.MustRegister(MatchRequestsTotal)
	prometheus.MustRegister(AssignmentsTotal)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(BanChecksTotal)
	prometheus.MustRegister(BanCheckDuration)
	prometheus.MustRegister(LivenessUp)
	prometheus.MustRegister(ProbeErrorsTotal)
	prometheus.MustRegister(AdminCommandsTotal)
	prometheus.MustRegister(NotificationsTotal)
}

func Register(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
}
