package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the coordinator. Each
// Metrics value carries its own registry so tests can build as many as
// they like without duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	// Sensor data plane
	Snapshots  *prometheus.CounterVec
	Reconnects prometheus.Counter
	RPCRetries *prometheus.CounterVec

	// Match control plane
	Turns *prometheus.CounterVec

	// Pool state
	SensorsAvailable *prometheus.GaugeVec
	MatchesLive      prometheus.Gauge

	// Board sensor round trips
	ConfirmMoveSeconds prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		// Snapshot counter, split by sensor kind and verdict
		Snapshots: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tablesrv_snapshots_total",
				Help: "Total number of sensor snapshots processed",
			},
			[]string{"sensor", "result"}, // sensor: board, rack; result: accepted, rejected
		),

		// Reconnect counter
		Reconnects: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tablesrv_sensor_reconnects_total",
				Help: "Total number of assigned sensors revived over a fresh connection",
			},
		),

		// RPC retry counter
		RPCRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tablesrv_sensor_rpc_retries_total",
				Help: "Total number of retried server-to-sensor RPC attempts",
			},
			[]string{"rpc"}, // rpc: assign_match, confirm_move
		),

		// Turn counter, split by classification
		Turns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tablesrv_turns_total",
				Help: "Total number of committed turns",
			},
			[]string{"kind"}, // kind: play, exchange, pass
		),

		// Available sensor gauge
		SensorsAvailable: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tablesrv_sensors_available",
				Help: "Number of registered sensors waiting in the pool",
			},
			[]string{"sensor"}, // sensor: board, rack
		),

		// Live match gauge
		MatchesLive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tablesrv_matches_live",
				Help: "Number of matches with sensors currently assigned",
			},
		),

		// Confirm-move round trip histogram
		ConfirmMoveSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tablesrv_confirm_move_seconds",
				Help:    "Round-trip duration of confirm-move pushes to the board sensor",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
		),
	}
}

// Handler returns an HTTP handler exposing this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSnapshot records one processed snapshot and its verdict
func (m *Metrics) RecordSnapshot(sensor string, accepted bool) {
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	m.Snapshots.WithLabelValues(sensor, result).Inc()
}

// RecordReconnect records a successful sensor reconnection
func (m *Metrics) RecordReconnect() {
	m.Reconnects.Inc()
}

// RecordRPCRetry records a failed RPC attempt that will be retried
func (m *Metrics) RecordRPCRetry(rpc string) {
	m.RPCRetries.WithLabelValues(rpc).Inc()
}

// RecordTurn records a committed turn by classification
func (m *Metrics) RecordTurn(kind string) {
	m.Turns.WithLabelValues(kind).Inc()
}

// SetSensorsAvailable updates the pool gauge for one sensor kind
func (m *Metrics) SetSensorsAvailable(sensor string, n int) {
	m.SensorsAvailable.WithLabelValues(sensor).Set(float64(n))
}

// SetMatchesLive updates the live match gauge
func (m *Metrics) SetMatchesLive(n int) {
	m.MatchesLive.Set(float64(n))
}

// ObserveConfirmMove records one confirm-move round trip
func (m *Metrics) ObserveConfirmMove(seconds float64) {
	m.ConfirmMoveSeconds.Observe(seconds)
}
