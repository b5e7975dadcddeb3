// Package metrics exports organism run activity as Prometheus metrics by
// subscribing to the event bus.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/normanking/organism/internal/bus"
)

// Collector subscribes to the bus and aggregates run events. It owns a
// private registry so several collectors can coexist in tests.
type Collector struct {
	bus      *bus.Bus
	registry *prometheus.Registry

	runs        *prometheus.CounterVec
	ticks       *prometheus.CounterVec
	emitted     *prometheus.CounterVec
	formed      *prometheus.CounterVec
	removed     *prometheus.CounterVec
	driveLevel  *prometheus.GaugeVec
	emotionLvl  *prometheus.GaugeVec
	lastInstant *prometheus.GaugeVec

	mu      sync.Mutex
	subs    []bus.SubscriptionID
	stopped bool
}

// NewCollector creates a collector for b.
func NewCollector(b *bus.Bus) *Collector {
	c := &Collector{
		bus:      b,
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "organism_runs_total",
			Help: "Scenario runs by final status",
		}, []string{"organism", "status"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "organism_ticks_total",
			Help: "Completed ticks",
		}, []string{"organism"}),
		emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "organism_responses_emitted_total",
			Help: "Emitting responses observed at the end of a tick, per action",
		}, []string{"organism", "action"}),
		formed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "organism_associations_formed_total",
			Help: "Operant associations formed",
		}, []string{"organism"}),
		removed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "organism_associations_removed_total",
			Help: "Operant associations removed by extinction",
		}, []string{"organism"}),
		driveLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "organism_drive_level",
			Help: "Current drive value",
		}, []string{"organism", "drive"}),
		emotionLvl: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "organism_emotion_level",
			Help: "Current emotion value",
		}, []string{"organism", "emotion"}),
		lastInstant: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "organism_instant",
			Help: "Instant of the latest completed tick",
		}, []string{"organism"}),
	}
	c.registry.MustRegister(c.runs, c.ticks, c.emitted, c.formed, c.removed, c.driveLevel, c.emotionLvl, c.lastInstant)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Start subscribes to the bus.
func (c *Collector) Start() {
	if c.bus == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || len(c.subs) > 0 {
		return
	}
	for _, et := range []bus.EventType{
		bus.EventTickCompleted,
		bus.EventResponseEmitted,
		bus.EventAssociationFormed,
		bus.EventAssociationRemoved,
		bus.EventRunCompleted,
		bus.EventRunFailed,
	} {
		c.subs = append(c.subs, c.bus.Subscribe(et, c.handleEvent))
	}
}

// Stop unsubscribes from the bus.
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	for _, id := range c.subs {
		_ = c.bus.Unsubscribe(id)
	}
	c.subs = nil
}

func (c *Collector) handleEvent(e bus.Event) {
	switch e.Type {
	case bus.EventTickCompleted:
		c.ticks.WithLabelValues(e.Organism).Inc()
		c.lastInstant.WithLabelValues(e.Organism).Set(float64(e.Instant))
		for name, v := range e.Drives {
			c.driveLevel.WithLabelValues(e.Organism, name).Set(v)
		}
		for name, v := range e.Emotions {
			c.emotionLvl.WithLabelValues(e.Organism, name).Set(v)
		}
	case bus.EventResponseEmitted:
		c.emitted.WithLabelValues(e.Organism, e.Action).Inc()
	case bus.EventAssociationFormed:
		c.formed.WithLabelValues(e.Organism).Inc()
	case bus.EventAssociationRemoved:
		c.removed.WithLabelValues(e.Organism).Inc()
	case bus.EventRunCompleted:
		c.runs.WithLabelValues(e.Organism, "completed").Inc()
	case bus.EventRunFailed:
		c.runs.WithLabelValues(e.Organism, "failed").Inc()
	}
}
