// SPDX-License-Identifier: GPL-3.0-or-later

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ZhuChongjing/NetLabX/sim"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveSimulation(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.ObserveSimulation(&sim.Result{Success: true, Protocol: "ping"}, time.Millisecond)
	c.ObserveSimulation(&sim.Result{Success: true, Protocol: "ping"}, time.Millisecond)
	c.ObserveSimulation(&sim.Result{
		Success:  false,
		Protocol: "http",
		Kind:     sim.FailNoRoute,
	}, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Simulations.WithLabelValues("ping", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Simulations.WithLabelValues("http", "no-route")))
	assert.Equal(t, uint64(2), histogramSampleCount(t, reg,
		"netlab_simulation_duration_seconds", map[string]string{"protocol": "ping"}))
}

func TestTopologyGaugesAndCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.SetTopologyCounts(6, 5)
	c.IncSubmissions()
	c.IncScenarioLoads()
	c.IncScenarioLoads()

	assert.Equal(t, 6.0, testutil.ToFloat64(c.TopologyDevices))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.TopologyConnections))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Submissions))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.ScenarioLoads))
}

func TestNewCollectorTwiceReusesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	require.NoError(t, err)
	second, err := NewCollector(reg)
	require.NoError(t, err)

	first.IncSubmissions()
	second.IncSubmissions()
	assert.Equal(t, 2.0, testutil.ToFloat64(first.Submissions))
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.SetTopologyCounts(3, 2)
	c.ObserveSimulation(&sim.Result{Success: true, Protocol: "dns"}, time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "netlab_simulations_total")
	assert.Contains(t, body, "netlab_simulation_duration_seconds")
	assert.Contains(t, body, "netlab_topology_devices 3")
	assert.Contains(t, body, "netlab_topology_connections 2")
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.ObserveSimulation(&sim.Result{Success: true, Protocol: "ping"}, time.Millisecond)
	c.SetTopologyCounts(1, 1)
	c.IncSubmissions()
	c.IncScenarioLoads()
	assert.NotNil(t, c.Handler())
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	require.NoError(t, err)
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
