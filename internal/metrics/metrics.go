// Package metrics exports runtime activity of an object registry as
// prometheus metrics.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/conduit-lang/objrt/runtime/object"
)

const namespace = "objrt"

// Metrics contains the runtime metrics
type Metrics struct {
	TypesRegistered    *prometheus.CounterVec
	InstancesCreated   *prometheus.CounterVec
	InstancesFinalized *prometheus.CounterVec
	InstancesLive      *prometheus.GaugeVec
	Emissions          *prometheus.CounterVec
	PropertyChanges    *prometheus.CounterVec
}

// NewMetrics creates the runtime metrics
func NewMetrics() *Metrics {
	return &Metrics{
		TypesRegistered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "types",
				Name:      "registered_total",
				Help:      "Total number of registered types",
			},
			[]string{"kind"},
		),

		InstancesCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "instances",
				Name:      "created_total",
				Help:      "Total number of constructed instances",
			},
			[]string{"type"},
		),

		InstancesFinalized: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "instances",
				Name:      "finalized_total",
				Help:      "Total number of finalized instances",
			},
			[]string{"type"},
		),

		InstancesLive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "instances",
				Name:      "live",
				Help:      "Number of instances constructed and not yet finalized",
			},
			[]string{"type"},
		),

		Emissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "signals",
				Name:      "emissions_total",
				Help:      "Total number of completed signal emissions",
			},
			[]string{"type", "signal"},
		),

		PropertyChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "properties",
				Name:      "changes_total",
				Help:      "Total number of property change notifications",
			},
			[]string{"type", "property"},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.TypesRegistered,
		m.InstancesCreated,
		m.InstancesFinalized,
		m.InstancesLive,
		m.Emissions,
		m.PropertyChanges,
	}
}

// Collector feeds Metrics from registry events
type Collector struct {
	registry *prometheus.Registry
	metrics  *Metrics
	reg      *object.Registry
}

// NewCollector creates a collector with its own prometheus registry, including
// Go runtime and process metrics
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()
	c := &Collector{registry: registry, metrics: NewMetrics()}

	for _, col := range c.metrics.collectors() {
		if err := registry.Register(col); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				return nil, fmt.Errorf("metric already registered: %w", err)
			}
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c, nil
}

// PrometheusRegistry returns the underlying prometheus registry
func (c *Collector) PrometheusRegistry() *prometheus.Registry {
	return c.registry
}

// Metrics returns the runtime metrics
func (c *Collector) Metrics() *Metrics {
	return c.metrics
}

// Attach subscribes the collector to reg and counts the types it already
// holds. The returned function unsubscribes.
func (c *Collector) Attach(reg *object.Registry) func() {
	c.reg = reg
	for _, t := range reg.Types() {
		c.metrics.TypesRegistered.WithLabelValues(kind(reg, t)).Inc()
	}
	id := reg.Subscribe(c)
	return func() { reg.Unsubscribe(id) }
}

// OnObjectEvent implements object.Observer
func (c *Collector) OnObjectEvent(e object.Event) {
	m := c.metrics
	switch e.Type {
	case object.EventTypeRegistered:
		k := "class"
		if c.reg != nil {
			k = kind(c.reg, e.TypeID)
		}
		m.TypesRegistered.WithLabelValues(k).Inc()
	case object.EventCreated:
		m.InstancesCreated.WithLabelValues(e.TypeName).Inc()
		m.InstancesLive.WithLabelValues(e.TypeName).Inc()
	case object.EventFinalized:
		m.InstancesFinalized.WithLabelValues(e.TypeName).Inc()
		m.InstancesLive.WithLabelValues(e.TypeName).Dec()
	case object.EventEmitted:
		m.Emissions.WithLabelValues(e.TypeName, e.Signal).Inc()
	case object.EventPropertyChanged:
		m.PropertyChanges.WithLabelValues(e.TypeName, e.Property).Inc()
	}
}

func kind(reg *object.Registry, t object.Type) string {
	if t.IsFundamental() {
		return "fundamental"
	}
	c, err := reg.Class(t)
	if err != nil {
		return "unknown"
	}
	if c.IsInterface() {
		return "interface"
	}
	return "class"
}
