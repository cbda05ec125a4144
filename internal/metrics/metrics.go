// Package metrics exposes Prometheus collectors for the enrollment feed, the
// presence view and dashboard push connections. Collectors register with the
// default registry; serve them with promhttp.Handler().
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsApplied counts change events applied to the aggregation store.
	EventsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrollment_events_applied_total",
			Help: "Enrollment change events applied, by record kind and direction",
		},
		[]string{"kind", "direction"},
	)

	// EventsRejected counts change events the store refused.
	EventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrollment_events_rejected_total",
			Help: "Enrollment change events rejected, by reason",
		},
		[]string{"reason"},
	)

	// OrphanRemovals counts removes for records that were never counted.
	OrphanRemovals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "enrollment_orphan_removals_total",
			Help: "Remove events that referenced no counted record",
		},
	)

	// Enrollments is the current global count per record kind.
	Enrollments = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "enrollment_records",
			Help: "Current number of records, by kind",
		},
		[]string{"kind"},
	)

	// Organizations is the number of organizations with at least one record.
	Organizations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "enrollment_organizations",
			Help: "Organizations with at least one record",
		},
	)

	// OnlineOrganizations is the size of the last resolved online set.
	OnlineOrganizations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "presence_online_organizations",
			Help: "Organizations currently online",
		},
	)

	// PresenceResolutions counts presence resolution passes, by trigger.
	PresenceResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_resolutions_total",
			Help: "Presence resolution passes, by trigger",
		},
		[]string{"trigger"},
	)

	// WSConnections is the number of connected dashboard viewers.
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashboard_websocket_connections",
			Help: "Connected dashboard WebSocket clients",
		},
	)

	// Broadcasts counts dashboard updates pushed to viewers.
	Broadcasts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dashboard_broadcasts_total",
			Help: "Dashboard updates broadcast to connected viewers",
		},
	)
)

// Direction labels a delta for EventsApplied.
func Direction(delta int) string {
	if delta < 0 {
		return "remove"
	}
	return "add"
}
