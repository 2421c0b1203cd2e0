// SPDX-License-Identifier: GPL-3.0-or-later

package sim_test

import (
	"testing"

	"github.com/ZhuChongjing/NetLabX/topo"
	"github.com/stretchr/testify/require"
)

// lab builds topology snapshots through the public mutation API,
// failing the test on unexpected errors. Devices are addressed by
// name.
type lab struct {
	t *testing.T
	s *topo.Snapshot
}

func newLab(t *testing.T) *lab {
	return &lab{t: t, s: &topo.Snapshot{}}
}

func (l *lab) id(name string) string {
	l.t.Helper()
	d := l.s.DeviceByName(name)
	require.NotNil(l.t, d, "no device named %s", name)
	return d.ID
}

func (l *lab) add(name string, kind topo.DeviceKind, address string) {
	l.t.Helper()
	next, _, err := topo.AddDevice(l.s, name, kind, address)
	require.NoError(l.t, err)
	l.s = next
}

func (l *lab) connect(a, b string) {
	l.t.Helper()
	next, err := topo.Connect(l.s, l.id(a), l.id(b))
	require.NoError(l.t, err)
	l.s = next
}

func (l *lab) disconnect(a, b string) {
	l.t.Helper()
	next, err := topo.Disconnect(l.s, l.id(a), l.id(b))
	require.NoError(l.t, err)
	l.s = next
}

func (l *lab) routes(router string, routes ...topo.Route) {
	l.t.Helper()
	next, err := topo.SetRoutes(l.s, l.id(router), routes)
	require.NoError(l.t, err)
	l.s = next
}

func (l *lab) dns(server string, records topo.DNSRecords) {
	l.t.Helper()
	next, err := topo.SetDNSRecords(l.s, l.id(server), records)
	require.NoError(l.t, err)
	l.s = next
}

func (l *lab) web(server string, cfg topo.WebConfig) {
	l.t.Helper()
	next, err := topo.SetWebConfig(l.s, l.id(server), cfg)
	require.NoError(l.t, err)
	l.s = next
}

// twoRouterLab builds the canonical teaching topology:
//
//	PC1 --- R1 ===== R2 --- PC2
//	         |        |
//	        NS       WWW
//
// PC1 and NS live in 192.168.1.0/24 behind R1, PC2 and WWW live in
// 192.168.2.0/24 behind R2, and the routers share the 10.0.0.0/24
// backbone. Both routing tables are complete, NS knows
// www.school.com, and WWW serves a page on port 80.
func twoRouterLab(t *testing.T) *lab {
	l := newLab(t)
	l.add("PC1", topo.KindPC, "192.168.1.10")
	l.add("R1", topo.KindRouter, "192.168.1.1")
	l.add("R2", topo.KindRouter, "192.168.2.1")
	l.add("PC2", topo.KindPC, "192.168.2.10")
	l.add("NS", topo.KindDNSServer, "192.168.1.53")
	l.add("WWW", topo.KindWebServer, "192.168.2.80")

	l.connect("PC1", "R1")
	l.connect("NS", "R1")
	l.connect("PC2", "R2")
	l.connect("WWW", "R2")
	l.connect("R1", "R2")

	l.routes("R1",
		topo.Route{Destination: "192.168.1.0", NextHop: topo.NextHopDirect, Metric: 0},
		topo.Route{Destination: "192.168.2.0", NextHop: "R2", Metric: 1},
	)
	l.routes("R2",
		topo.Route{Destination: "192.168.2.0", NextHop: topo.NextHopDirect, Metric: 0},
		topo.Route{Destination: "192.168.1.0", NextHop: "R1", Metric: 1},
	)

	l.dns("NS", topo.DNSRecords{"www.school.com": "192.168.2.80"})
	l.web("WWW", topo.WebConfig{Port: 80, Content: "<h1>School Portal</h1>"})
	return l
}
