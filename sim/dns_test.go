// SPDX-License-Identifier: GPL-3.0-or-later

package sim_test

import (
	"strings"
	"testing"

	"github.com/ZhuChongjing/NetLabX/sim"
	"github.com/ZhuChongjing/NetLabX/topo"
	"github.com/rbmk-project/common/errclass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryResolves(t *testing.T) {
	l := twoRouterLab(t)

	res := sim.Query(l.s, "192.168.1.10", "192.168.1.53", "www.school.com")
	require.True(t, res.Success, "unexpected failure: %s", res.Message)
	assert.Equal(t, "dns", res.Protocol)
	assert.Equal(t, "192.168.2.80", res.ResolvedAddr)
	assert.Equal(t, []string{"PC1", "R1", "NS"}, res.RequestPath)
	assert.Equal(t, []string{"NS", "R1", "PC1"}, res.ResponsePath)

	last := res.Steps[len(res.Steps)-1]
	assert.Equal(t, "NS", last.Device)
	assert.Contains(t, last.Action, "www.school.com")
}

func TestQueryLookupIsForgiving(t *testing.T) {
	l := twoRouterLab(t)

	for _, domain := range []string{"WWW.SCHOOL.COM", "www.school.com."} {
		res := sim.Query(l.s, "192.168.1.10", "192.168.1.53", domain)
		require.True(t, res.Success, "lookup of %q failed: %s", domain, res.Message)
		assert.Equal(t, "192.168.2.80", res.ResolvedAddr)
	}
}

func TestQueryNoRecord(t *testing.T) {
	l := twoRouterLab(t)

	res := sim.Query(l.s, "192.168.1.10", "192.168.1.53", "ftp.school.com")
	require.False(t, res.Success)
	assert.Equal(t, sim.FailDNSNoRecord, res.Kind)
	assert.Equal(t, string(errclass.EDNS_NONAME), res.ErrClass)
	assert.True(t, strings.HasSuffix(res.Message, "no such host"), "message %q", res.Message)

	// The server answered, so the round trip is still visible.
	assert.Equal(t, []string{"PC1", "R1", "NS"}, res.RequestPath)
	assert.Equal(t, []string{"NS", "R1", "PC1"}, res.ResponsePath)
}

func TestQueryWrongKind(t *testing.T) {
	// Pointing the client at a PC instead of the DNS server.
	l := twoRouterLab(t)

	res := sim.Query(l.s, "192.168.1.10", "192.168.2.10", "www.school.com")
	require.False(t, res.Success)
	assert.Equal(t, sim.FailDNSWrongKind, res.Kind)
	assert.Equal(t, string(errclass.ECONNREFUSED), res.ErrClass)
	assert.Contains(t, res.Message, "PC2")
	assert.Contains(t, res.Message, "not a DNS server")
}

func TestQueryDuplicateServerAddress(t *testing.T) {
	// Two devices share the server address; the packet lands on
	// whichever comes first in the topology, which is the impostor.
	l := newLab(t)
	l.add("PC-impostor", topo.KindPC, "192.168.1.53")
	l.add("PC1", topo.KindPC, "192.168.1.10")
	l.add("R1", topo.KindRouter, "192.168.1.1")
	l.connect("PC-impostor", "R1")
	l.connect("PC1", "R1")
	l.add("NS", topo.KindDNSServer, "192.168.1.53")
	l.routes("R1",
		topo.Route{Destination: "192.168.1.0", NextHop: topo.NextHopDirect, Metric: 0},
	)

	res := sim.Query(l.s, "192.168.1.10", "192.168.1.53", "www.school.com")
	require.False(t, res.Success)
	assert.Equal(t, sim.FailDNSWrongKind, res.Kind)
	assert.Contains(t, res.Message, "PC-impostor")
}

func TestQueryServerUnreachable(t *testing.T) {
	// The DNS server sits behind a link that is gone; the transport
	// failure surfaces with its own error class.
	l := twoRouterLab(t)
	l.disconnect("NS", "R1")

	res := sim.Query(l.s, "192.168.1.10", "192.168.1.53", "www.school.com")
	require.False(t, res.Success)
	assert.Equal(t, sim.FailDNSUnreachable, res.Kind)
	assert.Equal(t, string(errclass.EHOSTUNREACH), res.ErrClass)
	assert.Contains(t, res.Message, "192.168.1.53")
	assert.Empty(t, res.ResponsePath)
}

func TestQueryBadInputPassesThrough(t *testing.T) {
	l := twoRouterLab(t)

	res := sim.Query(l.s, "192.168.1.10", "not-an-address", "www.school.com")
	require.False(t, res.Success)
	assert.Equal(t, sim.FailBadAddress, res.Kind)

	res = sim.Query(l.s, "192.168.1.77", "192.168.1.53", "www.school.com")
	require.False(t, res.Success)
	assert.Equal(t, sim.FailSourceNotFound, res.Kind)
}
