// Package reqengine implements the DNS request engine: given a destination
// and either a structured message or a pre-rendered wire buffer, it sends
// the query over UDP or TCP, collects a single response, enforces timeouts
// with UDP retransmission, and delivers exactly one completion to the
// caller.
//
// Grounded on the teacher's forwarding resolver for the connect/send/
// receive split and on its UDP/TCP server for socket and buffer-pool
// discipline, generalized from an inbound request handler to an outbound,
// cancellable, reference-counted request engine in the style of BIND9's
// lib/dns/request.c.
package reqengine

import (
	"github.com/jroosing/hydrareq/internal/dispatch"
	"github.com/jroosing/hydrareq/internal/reqstats"
	"github.com/jroosing/hydrareq/internal/wire"
)

// Env bundles every external capability the engine depends on. This
// package's tests substitute an in-memory fake for Dispatch to drive
// scenarios without real sockets; they run on the real TimerService.
type Env struct {
	Timer     TimerService
	Scheduler Scheduler
	Dispatch  dispatch.Manager
	Codec     wire.Codec

	// DefaultUDPv4/DefaultUDPv6 are the engine's process-wide default UDP
	// dispatch handles, used when a request specifies no source address.
	// A nil entry means that address family is unsupported by this engine
	// instance.
	DefaultUDPv4 dispatch.Handle
	DefaultUDPv6 dispatch.Handle

	// Stats, if non-nil, is fed send/outcome counters as requests progress.
	Stats *reqstats.Stats
}
