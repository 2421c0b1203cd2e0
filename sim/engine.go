// SPDX-License-Identifier: GPL-3.0-or-later

package sim

import (
	"log/slog"
	"time"

	"github.com/ZhuChongjing/NetLabX/topo"
)

// DefaultMaxHops bounds how many devices a packet may traverse after
// leaving the source when [Engine.MaxHops] is zero. Lab topologies
// are small; anything longer than this is a loop in practice.
const DefaultMaxHops = 10

// Engine simulates protocol operations over topology snapshots.
//
// The zero value is ready to use.
type Engine struct {
	// Logger optionally emits structured events for each simulated
	// operation. A nil logger emits nothing.
	Logger *slog.Logger

	// MaxHops optionally overrides [DefaultMaxHops].
	MaxHops int
}

// DefaultEngine is the engine used by the package-level [Ping],
// [Query], and [Fetch] functions.
var DefaultEngine = &Engine{}

// Ping simulates a reachability probe from the device owning src to
// the device owning dst, using the [DefaultEngine].
func Ping(s *topo.Snapshot, src, dst string) *Result {
	return DefaultEngine.Ping(s, src, dst)
}

// Query simulates a DNS lookup using the [DefaultEngine].
func Query(s *topo.Snapshot, src, server, domain string) *Result {
	return DefaultEngine.Query(s, src, server, domain)
}

// Fetch simulates an HTTP GET using the [DefaultEngine].
func Fetch(s *topo.Snapshot, src, target string, port int) *Result {
	return DefaultEngine.Fetch(s, src, target, port)
}

// Ping simulates a reachability probe from the device owning src to
// the device owning dst and returns the hop-by-hop outcome.
func (e *Engine) Ping(s *topo.Snapshot, src, dst string) *Result {
	e.emitStart("ping", src, dst)
	res := e.resolvePath(s, src, dst)
	res.Protocol = "ping"
	e.emitDone(res)
	return res
}

// maxHops returns the configured hop budget.
func (e *Engine) maxHops() int {
	if e.MaxHops > 0 {
		return e.MaxHops
	}
	return DefaultMaxHops
}

// emitStart emits the event at the beginning of an operation.
func (e *Engine) emitStart(protocol, src, dst string) {
	if e.Logger != nil {
		e.Logger.Info(
			protocol+"Start",
			slog.String("src", src),
			slog.String("dst", dst),
			slog.Time("t", time.Now()),
		)
	}
}

// emitDone emits the event describing a finished operation.
func (e *Engine) emitDone(res *Result) {
	if e.Logger != nil {
		e.Logger.Info(
			res.Protocol+"Done",
			slog.Bool("success", res.Success),
			slog.String("kind", string(res.Kind)),
			slog.String("errClass", res.ErrClass),
			slog.Any("path", res.Path),
			slog.Time("t", time.Now()),
		)
	}
}
