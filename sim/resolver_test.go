// SPDX-License-Identifier: GPL-3.0-or-later

package sim_test

import (
	"testing"

	"github.com/ZhuChongjing/NetLabX/sim"
	"github.com/ZhuChongjing/NetLabX/topo"
	"github.com/rbmk-project/common/errclass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPingAcrossRouters(t *testing.T) {
	l := twoRouterLab(t)

	res := sim.Ping(l.s, "192.168.1.10", "192.168.2.10")
	require.True(t, res.Success, "unexpected failure: %s", res.Message)
	assert.Equal(t, []string{"PC1", "R1", "R2", "PC2"}, res.Path)
	assert.Equal(t, "ping", res.Protocol)
	assert.Empty(t, res.Kind)
	assert.Empty(t, res.ErrClass)
	assert.NotEmpty(t, res.Steps)

	// The other direction works symmetrically.
	back := sim.Ping(l.s, "192.168.2.10", "192.168.1.10")
	require.True(t, back.Success)
	assert.Equal(t, []string{"PC2", "R2", "R1", "PC1"}, back.Path)
}

func TestPingSameDevice(t *testing.T) {
	l := twoRouterLab(t)

	res := sim.Ping(l.s, "192.168.1.10", "192.168.1.10")
	require.True(t, res.Success)
	assert.Equal(t, []string{"PC1"}, res.Path)
}

func TestPingWithinLAN(t *testing.T) {
	l := twoRouterLab(t)
	l.add("PC3", topo.KindPC, "192.168.1.11")
	l.connect("PC3", "R1")

	res := sim.Ping(l.s, "192.168.1.10", "192.168.1.11")
	require.True(t, res.Success, "unexpected failure: %s", res.Message)
	assert.Equal(t, []string{"PC1", "R1", "PC3"}, res.Path)
}

func TestPingBadAddress(t *testing.T) {
	l := twoRouterLab(t)

	res := sim.Ping(l.s, "192.168.1.999", "192.168.2.10")
	require.False(t, res.Success)
	assert.Equal(t, sim.FailBadAddress, res.Kind)
	assert.Equal(t, string(errclass.EINVAL), res.ErrClass)
	assert.Contains(t, res.Message, "source")

	res = sim.Ping(l.s, "192.168.1.10", "192.168.2.0")
	require.False(t, res.Success)
	assert.Equal(t, sim.FailBadAddress, res.Kind)
	assert.Contains(t, res.Message, "destination")
}

func TestPingSourceNotFound(t *testing.T) {
	l := twoRouterLab(t)

	res := sim.Ping(l.s, "192.168.1.99", "192.168.2.10")
	require.False(t, res.Success)
	assert.Equal(t, sim.FailSourceNotFound, res.Kind)
	assert.Equal(t, string(errclass.EADDRNOTAVAIL), res.ErrClass)
	assert.Contains(t, res.Message, "192.168.1.99")
}

func TestPingNoGateway(t *testing.T) {
	l := newLab(t)
	l.add("PC1", topo.KindPC, "192.168.1.10")
	l.add("PC2", topo.KindPC, "192.168.2.10")

	res := sim.Ping(l.s, "192.168.1.10", "192.168.2.10")
	require.False(t, res.Success)
	assert.Equal(t, sim.FailNoGateway, res.Kind)
	assert.Equal(t, string(errclass.ENETUNREACH), res.ErrClass)
	assert.Contains(t, res.Message, "192.168.1.0")
	assert.Equal(t, []string{"PC1"}, res.Path)
}

func TestPingGatewayWithoutLink(t *testing.T) {
	// R1 owns an interface in PC1's subnet, but nobody plugged the
	// cable in. Distinct from having no gateway at all.
	l := newLab(t)
	l.add("PC1", topo.KindPC, "192.168.1.10")
	l.add("R1", topo.KindRouter, "192.168.1.1")

	res := sim.Ping(l.s, "192.168.1.10", "192.168.2.10")
	require.False(t, res.Success)
	assert.Equal(t, sim.FailNoLink, res.Kind)
	assert.Equal(t, string(errclass.ENETDOWN), res.ErrClass)
	assert.Contains(t, res.Message, "R1")
	assert.Contains(t, res.Message, "physical link")
}

func TestPingEmptyRoutingTable(t *testing.T) {
	l := twoRouterLab(t)
	l.routes("R1")

	res := sim.Ping(l.s, "192.168.1.10", "192.168.2.10")
	require.False(t, res.Success)
	assert.Equal(t, sim.FailEmptyTable, res.Kind)
	assert.Equal(t, string(errclass.ENETUNREACH), res.ErrClass)
	assert.Equal(t, []string{"PC1", "R1"}, res.Path)
}

func TestPingNoRoute(t *testing.T) {
	// Removing R1's entry for PC2's network strands the packet at
	// R1; the message names the missing network and dumps the table.
	l := twoRouterLab(t)
	l.routes("R1",
		topo.Route{Destination: "192.168.1.0", NextHop: topo.NextHopDirect, Metric: 0},
	)

	res := sim.Ping(l.s, "192.168.1.10", "192.168.2.10")
	require.False(t, res.Success)
	assert.Equal(t, sim.FailNoRoute, res.Kind)
	assert.Equal(t, string(errclass.ENETUNREACH), res.ErrClass)
	assert.Equal(t, []string{"PC1", "R1"}, res.Path)
	assert.Contains(t, res.Message, "no routing-table entry for 192.168.2.0")
	assert.Contains(t, res.Message, "192.168.1.0 via direct (metric 0)")
}

func TestPingMetricFallback(t *testing.T) {
	// R1 prefers R2 (metric 1) for PC2's network but the link is
	// gone; the metric-2 route through R3 carries the packet, and
	// the trace keeps the failed attempt.
	l := twoRouterLab(t)
	l.add("R3", topo.KindRouter, "192.168.2.2")
	l.connect("R1", "R3")
	l.connect("PC2", "R3")
	l.routes("R3",
		topo.Route{Destination: "192.168.2.0", NextHop: topo.NextHopDirect, Metric: 0},
	)
	l.routes("R1",
		topo.Route{Destination: "192.168.1.0", NextHop: topo.NextHopDirect, Metric: 0},
		topo.Route{Destination: "192.168.2.0", NextHop: "R2", Metric: 1},
		topo.Route{Destination: "192.168.2.0", NextHop: "R3", Metric: 2},
	)
	l.disconnect("R1", "R2")

	res := sim.Ping(l.s, "192.168.1.10", "192.168.2.10")
	require.True(t, res.Success, "unexpected failure: %s", res.Message)
	assert.Equal(t, []string{"PC1", "R1", "R3", "PC2"}, res.Path)

	var sawSkip bool
	for _, step := range res.Steps {
		if step.Device == "R1" && step.Route != nil && step.Route.NextHop == "R2" {
			assert.Contains(t, step.Action, "skip route")
			assert.Contains(t, step.Action, "no physical link")
			sawSkip = true
		}
	}
	assert.True(t, sawSkip, "trace should keep the failed metric-1 attempt")
}

func TestPingRoutesExhausted(t *testing.T) {
	// Both candidate routes point at routers R1 cannot actually
	// reach; the failure enumerates every attempt.
	l := twoRouterLab(t)
	l.routes("R1",
		topo.Route{Destination: "192.168.2.0", NextHop: "R2", Metric: 1},
		topo.Route{Destination: "192.168.2.0", NextHop: "R9", Metric: 2},
	)
	l.disconnect("R1", "R2")

	res := sim.Ping(l.s, "192.168.1.10", "192.168.2.10")
	require.False(t, res.Success)
	assert.Equal(t, sim.FailRoutesExhausted, res.Kind)
	assert.Equal(t, string(errclass.EHOSTUNREACH), res.ErrClass)
	assert.Contains(t, res.Message, "no physical link")
	assert.Contains(t, res.Message, `"R9" not found`)
	assert.Equal(t, []string{"PC1", "R1"}, res.Path)
}

func TestPingDirectRouteSkips(t *testing.T) {
	t.Run("no device owns the address", func(t *testing.T) {
		l := twoRouterLab(t)
		res := sim.Ping(l.s, "192.168.1.10", "192.168.1.99")
		require.False(t, res.Success)
		assert.Equal(t, sim.FailRoutesExhausted, res.Kind)
		assert.Contains(t, res.Message, "no device owns 192.168.1.99")
	})

	t.Run("no interface in the destination subnet", func(t *testing.T) {
		l := twoRouterLab(t)
		l.add("PC5", topo.KindPC, "192.168.5.10")
		l.routes("R1",
			topo.Route{Destination: "192.168.5.0", NextHop: topo.NextHopDirect, Metric: 0},
		)
		res := sim.Ping(l.s, "192.168.1.10", "192.168.5.10")
		require.False(t, res.Success)
		assert.Equal(t, sim.FailRoutesExhausted, res.Kind)
		assert.Contains(t, res.Message, "no interface in 192.168.5.0")
	})

	t.Run("no physical link to the destination", func(t *testing.T) {
		l := twoRouterLab(t)
		l.add("PC3", topo.KindPC, "192.168.1.11")
		res := sim.Ping(l.s, "192.168.1.10", "192.168.1.11")
		require.False(t, res.Success)
		assert.Equal(t, sim.FailRoutesExhausted, res.Kind)
		assert.Contains(t, res.Message, "no physical link between R1 and PC3")
	})
}

func TestPingNextHopSkips(t *testing.T) {
	t.Run("next hop is not a router", func(t *testing.T) {
		l := twoRouterLab(t)
		l.routes("R1",
			topo.Route{Destination: "192.168.2.0", NextHop: "PC1", Metric: 1},
		)
		res := sim.Ping(l.s, "192.168.1.10", "192.168.2.10")
		require.False(t, res.Success)
		assert.Contains(t, res.Message, "PC1 is a pc, not a router")
	})

	t.Run("no shared subnet despite a link", func(t *testing.T) {
		// A hand-written topology file can claim a link between
		// routers without the backbone interfaces that normally
		// come with it.
		l := twoRouterLab(t)
		r1 := l.s.DeviceByName("R1")
		r2 := l.s.DeviceByName("R2")
		r1.Interfaces = r1.Interfaces[:1]
		r2.Interfaces = r2.Interfaces[:1]
		res := sim.Ping(l.s, "192.168.1.10", "192.168.2.10")
		require.False(t, res.Success)
		assert.Equal(t, sim.FailRoutesExhausted, res.Kind)
		assert.Contains(t, res.Message, "share no subnet")
	})
}

func TestPingNextHopByAddress(t *testing.T) {
	// Students may write the neighbor's backbone or LAN address
	// instead of its name.
	l := twoRouterLab(t)
	l.routes("R1",
		topo.Route{Destination: "192.168.2.0", NextHop: "10.0.0.2", Metric: 1},
	)

	res := sim.Ping(l.s, "192.168.1.10", "192.168.2.10")
	require.True(t, res.Success, "unexpected failure: %s", res.Message)
	assert.Equal(t, []string{"PC1", "R1", "R2", "PC2"}, res.Path)

	l.routes("R1",
		topo.Route{Destination: "192.168.2.0", NextHop: "192.168.2.1", Metric: 1},
	)
	res = sim.Ping(l.s, "192.168.1.10", "192.168.2.10")
	require.True(t, res.Success)
	assert.Equal(t, []string{"PC1", "R1", "R2", "PC2"}, res.Path)
}

func TestPingRoutingLoop(t *testing.T) {
	// R1 and R2 bounce packets for an absent network between each
	// other; the loop is caught on the first revisit, not at the
	// hop budget.
	l := twoRouterLab(t)
	l.routes("R1",
		topo.Route{Destination: "192.168.3.0", NextHop: "R2", Metric: 1},
	)
	l.routes("R2",
		topo.Route{Destination: "192.168.3.0", NextHop: "R1", Metric: 1},
	)
	l.add("PC3", topo.KindPC, "192.168.3.10")

	res := sim.Ping(l.s, "192.168.1.10", "192.168.3.10")
	require.False(t, res.Success)
	assert.Equal(t, sim.FailRoutingLoop, res.Kind)
	assert.Equal(t, string(errclass.ETIMEDOUT), res.ErrClass)
	assert.Equal(t, []string{"PC1", "R1", "R2", "R1"}, res.Path)
	assert.Contains(t, res.Message, "came back to R1")
}

func TestPingHopBudget(t *testing.T) {
	l := twoRouterLab(t)

	tight := &sim.Engine{MaxHops: 2}
	res := tight.Ping(l.s, "192.168.1.10", "192.168.2.10")
	require.False(t, res.Success)
	assert.Equal(t, sim.FailHopBudget, res.Kind)
	assert.Equal(t, string(errclass.ETIMEDOUT), res.ErrClass)
	assert.Equal(t, []string{"PC1", "R1", "R2"}, res.Path)

	// One more hop is enough for this topology.
	enough := &sim.Engine{MaxHops: 3}
	assert.True(t, enough.Ping(l.s, "192.168.1.10", "192.168.2.10").Success)
}

func TestPingHostRouteBeatsNetworkRoute(t *testing.T) {
	// A host-specific entry wins over a network entry even with a
	// worse metric.
	l := twoRouterLab(t)
	l.add("R3", topo.KindRouter, "192.168.2.3")
	l.connect("R1", "R3")
	l.connect("PC2", "R3")
	l.routes("R3",
		topo.Route{Destination: "192.168.2.0", NextHop: topo.NextHopDirect, Metric: 0},
	)
	l.routes("R1",
		topo.Route{Destination: "192.168.2.0", NextHop: "R2", Metric: 0},
		topo.Route{Destination: "192.168.2.10", NextHop: "R3", Metric: 5},
	)

	res := sim.Ping(l.s, "192.168.1.10", "192.168.2.10")
	require.True(t, res.Success, "unexpected failure: %s", res.Message)
	assert.Equal(t, []string{"PC1", "R1", "R3", "PC2"}, res.Path)
}

func TestPingEqualMetricKeepsTableOrder(t *testing.T) {
	// Two equally-good routes: the one listed first wins, every
	// time. Hand-built snapshot because the mutation API refuses to
	// save such a table.
	build := func(first, second string) *topo.Snapshot {
		s := &topo.Snapshot{
			Devices: []*topo.Device{
				{ID: "pc1", Name: "PC1", Kind: topo.KindPC, Address: "192.168.1.10"},
				{ID: "r1", Name: "R1", Kind: topo.KindRouter, Address: "192.168.1.1",
					Routes: []topo.Route{
						{Destination: "192.168.2.0", NextHop: first, Metric: 1},
						{Destination: "192.168.2.0", NextHop: second, Metric: 1},
					}},
				{ID: "r2", Name: "R2", Kind: topo.KindRouter, Address: "192.168.2.1",
					Routes: []topo.Route{
						{Destination: "192.168.2.0", NextHop: topo.NextHopDirect, Metric: 0},
					}},
				{ID: "r3", Name: "R3", Kind: topo.KindRouter, Address: "192.168.2.2",
					Routes: []topo.Route{
						{Destination: "192.168.2.0", NextHop: topo.NextHopDirect, Metric: 0},
					}},
				{ID: "pc2", Name: "PC2", Kind: topo.KindPC, Address: "192.168.2.10"},
			},
			Connections: []*topo.Connection{
				{A: "pc1", B: "r1"},
				{A: "pc2", B: "r2"},
				{A: "pc2", B: "r3"},
			},
		}
		s.Normalize()
		// Backbones r1<->r2 and r1<->r3.
		r1, r2, r3 := s.DeviceByID("r1"), s.DeviceByID("r2"), s.DeviceByID("r3")
		r1.Interfaces = append(r1.Interfaces,
			&topo.Interface{ID: "r1-eth0", Name: "eth0", Address: "10.0.0.1", Mask: "255.255.255.0"},
			&topo.Interface{ID: "r1-eth1", Name: "eth1", Address: "10.0.1.1", Mask: "255.255.255.0"},
		)
		r2.Interfaces = append(r2.Interfaces,
			&topo.Interface{ID: "r2-eth0", Name: "eth0", Address: "10.0.0.2", Mask: "255.255.255.0"})
		r3.Interfaces = append(r3.Interfaces,
			&topo.Interface{ID: "r3-eth1", Name: "eth1", Address: "10.0.1.2", Mask: "255.255.255.0"})
		s.Connections = append(s.Connections,
			&topo.Connection{A: "r1", B: "r2", AIface: "r1-eth0", BIface: "r2-eth0"},
			&topo.Connection{A: "r1", B: "r3", AIface: "r1-eth1", BIface: "r3-eth1"},
		)
		return s
	}

	res := sim.Ping(build("R2", "R3"), "192.168.1.10", "192.168.2.10")
	require.True(t, res.Success, "unexpected failure: %s", res.Message)
	assert.Equal(t, []string{"PC1", "R1", "R2", "PC2"}, res.Path)

	res = sim.Ping(build("R3", "R2"), "192.168.1.10", "192.168.2.10")
	require.True(t, res.Success)
	assert.Equal(t, []string{"PC1", "R1", "R3", "PC2"}, res.Path)
}

func TestPingIsIdempotent(t *testing.T) {
	l := twoRouterLab(t)
	before := l.s.Clone()

	first := sim.Ping(l.s, "192.168.1.10", "192.168.2.10")
	second := sim.Ping(l.s, "192.168.1.10", "192.168.2.10")
	assert.Equal(t, first, second)

	// Failures repeat identically too, and nothing mutates the
	// snapshot along the way.
	l.routes("R1")
	failed1 := sim.Ping(l.s, "192.168.1.10", "192.168.2.10")
	failed2 := sim.Ping(l.s, "192.168.1.10", "192.168.2.10")
	assert.Equal(t, failed1, failed2)
	assert.Equal(t, before.Devices[0], l.s.Devices[0])
}
