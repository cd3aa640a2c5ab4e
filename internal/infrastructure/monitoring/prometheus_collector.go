package monitoring

import (
	"time"

	"roomrelay/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	registry *prometheus.Registry

	// Gauges
	connectionsActive prometheus.Gauge
	roomsActive       prometheus.Gauge

	// Counters, one per stat, labelled by reason where the stat has one
	events map[domain.Stat]*prometheus.CounterVec

	// Histograms
	dispatchDuration *prometheus.HistogramVec
}

// NewPrometheusCollector registers the relay metrics, plus the Go and
// process collectors, on a fresh registry.
func NewPrometheusCollector() *PrometheusCollector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	p := &PrometheusCollector{
		registry: reg,

		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "roomrelay_connections_active",
			Help: "Number of currently admitted WebSocket connections",
		}),

		roomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "roomrelay_rooms_active",
			Help: "Number of rooms in the registry",
		}),

		dispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roomrelay_dispatch_duration_seconds",
			Help:    "Time spent dispatching one inbound message",
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}, []string{"type"}),

		events: make(map[domain.Stat]*prometheus.CounterVec, len(domain.AllStats)),
	}

	help := map[domain.Stat]string{
		domain.StatConnectionsAccepted: "Total number of admitted connections",
		domain.StatConnectionsRejected: "Total number of connections refused after authentication",
		domain.StatAuthFailures:        "Total number of failed authentications",
		domain.StatMessagesReceived:    "Total number of inbound messages",
		domain.StatMessagesRejected:    "Total number of rejected inbound messages",
		domain.StatDeliveries:          "Total number of successful broadcast deliveries",
		domain.StatSignalsRelayed:      "Total number of relayed signal messages",
		domain.StatChatsRelayed:        "Total number of relayed chat messages",
		domain.StatRoomsCreated:        "Total number of rooms created",
		domain.StatRoomsDeleted:        "Total number of rooms deleted after their last member left",
		domain.StatRoomsSwept:          "Total number of rooms reclaimed by the TTL sweep",
		domain.StatLivenessEvictions:   "Total number of connections evicted by the liveness monitor",
	}
	for _, stat := range domain.AllStats {
		p.events[stat] = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roomrelay_" + string(stat) + "_total",
			Help: help[stat],
		}, []string{"reason"})
	}

	return p
}

// Registry returns the registry backing the /metrics endpoint.
func (p *PrometheusCollector) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PrometheusCollector) RecordStat(stat domain.Stat, label string, delta int64) {
	counter, ok := p.events[stat]
	if !ok || delta <= 0 {
		return
	}
	counter.WithLabelValues(label).Add(float64(delta))
}

func (p *PrometheusCollector) SetActiveConnections(n int) {
	p.connectionsActive.Set(float64(n))
}

func (p *PrometheusCollector) SetActiveRooms(n int) {
	p.roomsActive.Set(float64(n))
}

func (p *PrometheusCollector) ObserveDispatch(messageType string, d time.Duration) {
	p.dispatchDuration.WithLabelValues(messageType).Observe(d.Seconds())
}
