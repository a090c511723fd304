// Command reqenginebench drives the request engine with many concurrent
// outstanding queries against a single destination and reports throughput
// and latency percentiles.
package main

import (
	"flag"
	"fmt"
	"net/netip"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jroosing/hydrareq/internal/dispatch"
	"github.com/jroosing/hydrareq/internal/reqengine"
	"github.com/jroosing/hydrareq/internal/reqstats"
	"github.com/jroosing/hydrareq/internal/wire"
)

func main() {
	var (
		server      = flag.String("server", "127.0.0.1:1053", "DNS server HOST:PORT")
		name        = flag.String("name", "example.com", "Query name")
		qtype       = flag.Int("qtype", int(wire.TypeA), "Query type (numeric, A=1)")
		concurrency = flag.Int("concurrency", 200, "Number of concurrently outstanding requests")
		requests    = flag.Int("requests", 20000, "Total number of requests")
		timeout     = flag.Duration("timeout", 2*time.Second, "Per-request timeout")
		udpRetries  = flag.Int("udp-retries", 0, "UDP retransmission count")
	)
	flag.Parse()

	dest, err := netip.ParseAddrPort(*server)
	if err != nil {
		panic(err)
	}
	src := netip.AddrPortFrom(netip.IPv4Unspecified(), 0)
	if dest.Addr().Is6() {
		src = netip.AddrPortFrom(netip.IPv6Unspecified(), 0)
	}

	mgr := dispatch.NewManager(dispatch.ManagerOptions{})
	stats := reqstats.New()
	engine := reqengine.New(reqengine.Env{
		Dispatch: mgr,
		Codec:    wire.NewStandardCodec(),
		Stats:    stats,
	})
	defer engine.Detach()

	sched := reqengine.NewScheduler()

	msg := wire.Packet{
		Header:    wire.Header{Flags: wire.RDFlag},
		Questions: []wire.Question{{Name: strings.TrimSuffix(*name, "."), Type: wire.RecordType(*qtype), Class: wire.ClassIN}},
	}

	total := *requests
	if total < 1 {
		total = 1
	}
	conc := *concurrency
	if conc < 1 {
		conc = 1
	}
	if conc > total {
		conc = total
	}

	var issued atomic.Int64
	var lat []float64
	var latMu sync.Mutex

	t0 := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < conc; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				n := issued.Add(1)
				if n > int64(total) {
					return
				}
				start := time.Now()
				done := make(chan *reqengine.Handle, 1)
				h, err := engine.CreateVia(reqengine.CreateViaParams{
					Message:      msg,
					Dest:         dest,
					Src:          src,
					TotalTimeout: *timeout,
					UDPRetries:   *udpRetries,
					Task:         sched.NewTask(),
					Callback: func(h *reqengine.Handle, _ any) {
						done <- h
					},
				})
				if err != nil {
					continue
				}
				h = <-done
				if result, _ := h.Result(); result == reqengine.Success {
					ms := float64(time.Since(start).Microseconds()) / 1000.0
					latMu.Lock()
					lat = append(lat, ms)
					latMu.Unlock()
				}
				h.Destroy()
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(t0).Seconds()

	if len(lat) == 0 {
		fmt.Println("no successful requests")
		return
	}
	sort.Float64s(lat)
	p50 := percentile(lat, 50)
	p95 := percentile(lat, 95)
	p99 := percentile(lat, 99)
	qps := float64(len(lat)) / elapsed

	snap := stats.Snapshot()
	fmt.Printf("server=%s name=%q qtype=%d concurrency=%d requests=%d\n", *server, *name, *qtype, conc, len(lat))
	fmt.Printf("elapsed_s=%.3f qps=%.1f sent=%d retransmitted=%d timed_out=%d\n",
		elapsed, qps, snap.Sent, snap.Retransmitted, snap.TimedOut)
	fmt.Printf("latency_ms p50=%.3f p95=%.3f p99=%.3f min=%.3f max=%.3f\n", p50, p95, p99, lat[0], lat[len(lat)-1])
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	idx := int(float64(len(sorted))*float64(p)/100.0) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
