// Package metrics defines the Prometheus collectors shared by the relay,
// the alert service and the audit worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "invigilens"

// Drop reasons for RelayDropped.
const (
	ReasonLaneFull  = "lane_full"
	ReasonOversized = "oversized"
)

// Metrics groups every collector the service exports.
type Metrics struct {
	RelayParticipants prometheus.Gauge
	RelayInbound      *prometheus.CounterVec
	RelayDelivered    *prometheus.CounterVec
	RelayDropped      *prometheus.CounterVec

	AlertsCreated      *prometheus.CounterVec
	AlertStatusChanges *prometheus.CounterVec
	AlertsCleared      prometheus.Counter

	AuditEvents   *prometheus.CounterVec
	ReviewLatency prometheus.Histogram
}

// New builds the collectors and registers them with reg. A nil reg leaves
// them unregistered, which lets tests create as many instances as they like.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RelayParticipants: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "participants",
			Help:      "Connected relay participants.",
		}),
		RelayInbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "inbound_messages_total",
			Help:      "Messages received from participants, by event.",
		}, []string{"event"}),
		RelayDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "delivered_messages_total",
			Help:      "Messages queued for delivery to a participant, by lane.",
		}, []string{"lane"}),
		RelayDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "dropped_messages_total",
			Help:      "Messages dropped for a single participant, by lane and reason.",
		}, []string{"lane", "reason"}),
		AlertsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "created_total",
			Help:      "Alerts created, by violation type.",
		}, []string{"violation_type"}),
		AlertStatusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "status_updates_total",
			Help:      "Alert status writes, by new status.",
		}, []string{"status"}),
		AlertsCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "cleared_total",
			Help:      "Alerts removed by bulk clear.",
		}),
		AuditEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "events_total",
			Help:      "Alert lifecycle events consumed, by type.",
		}, []string{"type"}),
		ReviewLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "review_latency_seconds",
			Help:      "Time from alert creation to its first review decision.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.RelayParticipants,
			m.RelayInbound,
			m.RelayDelivered,
			m.RelayDropped,
			m.AlertsCreated,
			m.AlertStatusChanges,
			m.AlertsCleared,
			m.AuditEvents,
			m.ReviewLatency,
		)
	}
	return m
}
