// Package reqstats collects request-engine statistics: per-outcome counters
// plus a host memory snapshot for diagnostics. All methods are safe for
// concurrent use.
package reqstats

import (
	"sync/atomic"

	"github.com/shirou/gopsutil/v3/mem"
)

// Stats collects request-engine counters.
type Stats struct {
	sent          atomic.Uint64
	retransmitted atomic.Uint64
	succeeded     atomic.Uint64
	timedOut      atomic.Uint64
	canceled      atomic.Uint64
	blackholed    atomic.Uint64
	rateLimited   atomic.Uint64
	formErr       atomic.Uint64
	latencyTotal  atomic.Uint64 // nanoseconds, successful requests only
}

// New creates a new statistics collector.
func New() *Stats {
	return &Stats{}
}

// RecordSend records one wire send, whether an original transmission or a
// UDP retransmission.
func (s *Stats) RecordSend(retransmit bool) {
	s.sent.Add(1)
	if retransmit {
		s.retransmitted.Add(1)
	}
}

// RecordOutcome records the terminal result of a request and, for
// successful ones, the latency from creation to delivery.
func (s *Stats) RecordOutcome(result string, latencyNs int64) {
	switch result {
	case "success":
		s.succeeded.Add(1)
		if latencyNs > 0 {
			s.latencyTotal.Add(uint64(latencyNs))
		}
	case "timeout":
		s.timedOut.Add(1)
	case "canceled":
		s.canceled.Add(1)
	case "blackholed":
		s.blackholed.Add(1)
	case "rate-limited":
		s.rateLimited.Add(1)
	case "formerr":
		s.formErr.Add(1)
	}
}

// Snapshot is a point-in-time view of engine and host statistics.
type Snapshot struct {
	Sent          uint64
	Retransmitted uint64
	Succeeded     uint64
	TimedOut      uint64
	Canceled      uint64
	Blackholed    uint64
	RateLimited   uint64
	FormErr       uint64
	AvgLatencyMs  float64

	HostMemTotalMB float64
	HostMemUsedMB  float64
	HostMemPercent float64
}

// Snapshot returns the current counters plus a fresh host memory reading.
// The memory reading is best-effort: a gopsutil failure leaves the host
// fields zeroed rather than failing the whole snapshot.
func (s *Stats) Snapshot() Snapshot {
	succeeded := s.succeeded.Load()
	latencyNs := s.latencyTotal.Load()

	avgLatencyMs := 0.0
	if succeeded > 0 {
		avgLatencyMs = float64(latencyNs) / float64(succeeded) / 1e6
	}

	snap := Snapshot{
		Sent:          s.sent.Load(),
		Retransmitted: s.retransmitted.Load(),
		Succeeded:     succeeded,
		TimedOut:      s.timedOut.Load(),
		Canceled:      s.canceled.Load(),
		Blackholed:    s.blackholed.Load(),
		RateLimited:   s.rateLimited.Load(),
		FormErr:       s.formErr.Load(),
		AvgLatencyMs:  avgLatencyMs,
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		snap.HostMemTotalMB = float64(vm.Total) / 1024 / 1024
		snap.HostMemUsedMB = float64(vm.Used) / 1024 / 1024
		snap.HostMemPercent = vm.UsedPercent
	}

	return snap
}
