// SPDX-License-Identifier: GPL-3.0-or-later

// Package metrics bundles the daemon's Prometheus metrics and
// provides the /metrics handler.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ZhuChongjing/NetLabX/sim"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the daemon's metrics. All methods are safe on a
// nil receiver, so callers can wire metrics in unconditionally.
type Collector struct {
	gatherer prometheus.Gatherer

	// Simulations counts runs by protocol and outcome, where outcome
	// is "success" or the failure kind.
	Simulations *prometheus.CounterVec

	// SimDuration tracks run latency by protocol.
	SimDuration *prometheus.HistogramVec

	// TopologyDevices and TopologyConnections mirror the size of the
	// working topology.
	TopologyDevices     prometheus.Gauge
	TopologyConnections prometheus.Gauge

	// Submissions counts stored student submissions.
	Submissions prometheus.Counter

	// ScenarioLoads counts scenario activations.
	ScenarioLoads prometheus.Counter
}

// NewCollector registers the metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	simulations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netlab_simulations_total",
		Help: "Total number of simulation runs, labeled by protocol and outcome.",
	}, []string{"protocol", "outcome"})
	simulations, err := registerCounterVec(reg, simulations, "netlab_simulations_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "netlab_simulation_duration_seconds",
		Help:    "Simulation run latency in seconds.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"protocol"})
	durations, err = registerHistogramVec(reg, durations, "netlab_simulation_duration_seconds")
	if err != nil {
		return nil, err
	}

	devices, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "netlab_topology_devices",
		Help: "Current number of devices in the working topology.",
	}), "netlab_topology_devices")
	if err != nil {
		return nil, err
	}
	connections, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "netlab_topology_connections",
		Help: "Current number of connections in the working topology.",
	}), "netlab_topology_connections")
	if err != nil {
		return nil, err
	}

	submissions, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netlab_submissions_total",
		Help: "Total number of stored student submissions.",
	}), "netlab_submissions_total")
	if err != nil {
		return nil, err
	}
	scenarioLoads, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netlab_scenario_loads_total",
		Help: "Total number of scenario activations.",
	}), "netlab_scenario_loads_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:            gatherer,
		Simulations:         simulations,
		SimDuration:         durations,
		TopologyDevices:     devices,
		TopologyConnections: connections,
		Submissions:         submissions,
		ScenarioLoads:       scenarioLoads,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveSimulation records one simulation run.
func (c *Collector) ObserveSimulation(res *sim.Result, elapsed time.Duration) {
	if c == nil || res == nil {
		return
	}
	outcome := "success"
	if !res.Success {
		outcome = string(res.Kind)
	}
	if c.Simulations != nil {
		c.Simulations.WithLabelValues(res.Protocol, outcome).Inc()
	}
	if c.SimDuration != nil {
		c.SimDuration.WithLabelValues(res.Protocol).Observe(elapsed.Seconds())
	}
}

// SetTopologyCounts mirrors the working topology's size.
func (c *Collector) SetTopologyCounts(devices, connections int) {
	if c == nil {
		return
	}
	if c.TopologyDevices != nil {
		c.TopologyDevices.Set(float64(devices))
	}
	if c.TopologyConnections != nil {
		c.TopologyConnections.Set(float64(connections))
	}
}

// IncSubmissions counts one stored submission.
func (c *Collector) IncSubmissions() {
	if c != nil && c.Submissions != nil {
		c.Submissions.Inc()
	}
}

// IncScenarioLoads counts one scenario activation.
func (c *Collector) IncScenarioLoads() {
	if c != nil && c.ScenarioLoads != nil {
		c.ScenarioLoads.Inc()
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
