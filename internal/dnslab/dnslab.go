// SPDX-License-Identifier: GPL-3.0-or-later

// Package dnslab answers real DNS queries from the records of the
// topology's dns-server devices, so students can interrogate the lab
// with standard tools (dig, drill, nslookup) over UDP and TCP.
package dnslab

import (
	"errors"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/ZhuChongjing/NetLabX/internal/closers"
	"github.com/ZhuChongjing/NetLabX/topo"
	"github.com/miekg/dns"
	"github.com/rbmk-project/dnscore/dnscoretest"
)

// Server serves the lab zone. Use [New] to create one, [Server.Update]
// to load records, and [Server.Start] to begin listening.
type Server struct {
	// Addr is the UDP/TCP listen address, e.g. "127.0.0.1:5353".
	Addr string

	// Logger optionally logs queries; nil logs nothing.
	Logger *slog.Logger

	zone    atomic.Pointer[zone]
	pool    closers.Pool
	udpAddr net.Addr
}

// zone is an immutable set of answerable records; updates swap the
// whole zone.
type zone struct {
	records map[string][]dns.RR
}

// New creates a server that will listen on addr. The zone starts
// empty.
func New(addr string, logger *slog.Logger) *Server {
	srv := &Server{Addr: addr, Logger: logger}
	srv.zone.Store(&zone{records: make(map[string][]dns.RR)})
	return srv
}

// Update replaces the served zone with the records of every
// dns-server device in the snapshot. Record values that do not parse
// as IPv4 addresses are skipped; topology validation reports them
// through its own channel. Update is safe while queries are being
// answered.
func (s *Server) Update(snap *topo.Snapshot) {
	records := make(map[string][]dns.RR)
	for _, d := range snap.Devices {
		if d.Kind != topo.KindDNSServer {
			continue
		}
		for name, addr := range d.DNS {
			ipAddr := net.ParseIP(addr)
			if ipAddr == nil || ipAddr.To4() == nil {
				continue
			}
			cname := dns.CanonicalName(name)
			rr := &dns.A{
				Hdr: dns.RR_Header{
					Name:   cname,
					Rrtype: dns.TypeA,
					Class:  dns.ClassINET,
					Ttl:    300,
				},
				A: ipAddr.To4(),
			}
			records[cname] = append(records[cname], rr)
		}
	}
	s.zone.Store(&zone{records: records})
}

// Start binds the UDP and TCP listeners and begins answering. The
// sockets are bound eagerly so address errors surface here rather
// than inside the serving goroutines.
func (s *Server) Start() error {
	if s.Addr == "" {
		return errors.New("dnslab: no listen address")
	}

	pc, err := net.ListenPacket("udp", s.Addr)
	if err != nil {
		return err
	}
	s.udpAddr = pc.LocalAddr()
	udp := &dnscoretest.Server{
		ListenPacket: func(network, address string) (net.PacketConn, error) {
			return pc, nil
		},
	}
	<-udp.StartUDP(s)
	s.pool.Add("dns-over-udp listener", udp)

	// TCP binds the same port UDP got, which matters when Addr asked
	// for port 0.
	ln, err := net.Listen("tcp", s.udpAddr.String())
	if err != nil {
		s.pool.Close()
		return err
	}
	tcp := &dnscoretest.Server{
		Listen: func(network, address string) (net.Listener, error) {
			return ln, nil
		},
	}
	<-tcp.StartTCP(s)
	s.pool.Add("dns-over-tcp listener", tcp)

	if s.Logger != nil {
		s.Logger.Info("dnslab listening", slog.String("addr", s.udpAddr.String()))
	}
	return nil
}

// BoundAddr returns the address the UDP listener actually bound,
// which differs from Addr when Addr named port 0. Empty before
// Start.
func (s *Server) BoundAddr() string {
	if s.udpAddr == nil {
		return ""
	}
	return s.udpAddr.String()
}

// Ensure [*Server] implements [dnscoretest.Handler].
var _ dnscoretest.Handler = (*Server)(nil)

// Handle implements [dnscoretest.Handler].
func (s *Server) Handle(rw dnscoretest.ResponseWriter, rawQuery []byte) {
	rawResp, err := s.reply(rawQuery)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Debug("dropping query", slog.Any("err", err))
		}
		return
	}
	rw.Write(rawResp)
}

// reply builds the wire response for one raw query. Factored out of
// Handle so tests can drive it without sockets.
func (s *Server) reply(rawQuery []byte) ([]byte, error) {
	query := &dns.Msg{}
	if err := query.Unpack(rawQuery); err != nil {
		return nil, err
	}
	if query.Response || query.Opcode != dns.OpcodeQuery || len(query.Question) != 1 {
		return nil, errors.New("not a single-question query")
	}

	response := &dns.Msg{}
	response.SetReply(query)

	q0 := query.Question[0]
	name := dns.CanonicalName(q0.Name)
	rrs, known := s.zone.Load().records[name]
	switch {
	case q0.Qclass != dns.ClassINET:
		response.Rcode = dns.RcodeRefused
	case !known:
		response.Rcode = dns.RcodeNameError
	case q0.Qtype == dns.TypeA:
		response.Answer = rrs
	default:
		// the name exists but not with this record type: NODATA,
		// which is success with an empty answer section
	}

	if s.Logger != nil {
		s.Logger.Debug(
			"dns query",
			slog.String("name", name),
			slog.String("qtype", dns.TypeToString[q0.Qtype]),
			slog.String("rcode", dns.RcodeToString[response.Rcode]),
		)
	}
	return response.Pack()
}

// Close stops the listeners.
func (s *Server) Close() error {
	return s.pool.Close()
}
