package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Viewer / broadcaster metrics
var (
	// ConnectedViewers tracks the number of currently connected dashboard viewers
	ConnectedViewers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "carrera_connected_viewers",
			Help: "Number of currently connected dashboard viewers",
		},
	)

	// BroadcastsTotal counts broadcast messages by message type
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carrera_broadcasts_total",
			Help: "Total broadcast messages by message type",
		},
		[]string{"type"},
	)

	// SlowViewersEvicted counts viewers disconnected because their send buffer filled
	SlowViewersEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "carrera_slow_viewers_evicted_total",
			Help: "Total viewers disconnected for not keeping up with broadcasts",
		},
	)

	// ViewerSendFailures counts failed writes to viewer connections
	ViewerSendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "carrera_viewer_send_failures_total",
			Help: "Total failed writes to viewer connections",
		},
	)

	// ViewerCommandsThrottled counts viewer commands dropped by the per-connection rate limit
	ViewerCommandsThrottled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "carrera_viewer_commands_throttled_total",
			Help: "Total viewer commands dropped by the per-connection rate limit",
		},
	)
)

// Race metrics
var (
	// RacesStartedTotal counts completed light sequences ending in a race start
	RacesStartedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "carrera_races_started_total",
			Help: "Total races started (light sequences completed to lights-out)",
		},
	)

	// SequenceAbortsTotal counts light sequences that were superseded or failed
	SequenceAbortsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "carrera_sequence_aborts_total",
			Help: "Total light sequences aborted before lights-out",
		},
	)

	// LapsRecorded counts recorded laps by track
	LapsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carrera_laps_recorded_total",
			Help: "Total laps recorded by track",
		},
		[]string{"track"},
	)

	// FinishEventsDropped counts finish events ignored outside a running race
	FinishEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carrera_finish_events_dropped_total",
			Help: "Total finish events dropped (no active lap) by track",
		},
		[]string{"track"},
	)
)

// Bus metrics
var (
	// BusMessagesTotal counts inbound bus messages by topic
	BusMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carrera_bus_messages_total",
			Help: "Total inbound sensor bus messages by topic",
		},
		[]string{"topic"},
	)

	// BusDisconnects counts sensor bus subscription losses
	BusDisconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "carrera_bus_disconnects_total",
			Help: "Total sensor bus subscription losses",
		},
	)
)
