// Command dnsrequest sends a single DNS query through the request engine
// and prints the parsed response.
package main

import (
	"flag"
	"fmt"
	"net/netip"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jroosing/hydrareq/internal/acl"
	"github.com/jroosing/hydrareq/internal/config"
	"github.com/jroosing/hydrareq/internal/dispatch"
	"github.com/jroosing/hydrareq/internal/logging"
	"github.com/jroosing/hydrareq/internal/reqengine"
	"github.com/jroosing/hydrareq/internal/wire"
)

func main() {
	var (
		server     = flag.String("server", "8.8.8.8:53", "DNS server HOST:PORT")
		name       = flag.String("name", "example.com", "Query name")
		qtype      = flag.Int("qtype", int(wire.TypeA), "Query type (numeric, A=1)")
		useTCP     = flag.Bool("tcp", false, "Force TCP")
		timeout    = flag.Duration("timeout", 2*time.Second, "Overall timeout")
		udpRetries = flag.Int("udp-retries", 3, "UDP retransmission count")
		configPath = flag.String("config", "", "Path to YAML config file")
		quiet      = flag.Bool("quiet", false, "Suppress output (exit status indicates success)")
	)
	flag.Parse()

	cfg, err := config.Load(config.ResolveConfigPath(*configPath))
	if err != nil {
		fatal(*quiet, "dnsrequest: config: %v", err)
	}

	logger := logging.Configure(logging.Config{
		Level:            cfg.Logging.Level,
		Structured:       cfg.Logging.Structured,
		StructuredFormat: cfg.Logging.StructuredFormat,
		IncludePID:       cfg.Logging.IncludePID,
		ExtraFields:      cfg.Logging.ExtraFields,
	})

	dest, err := netip.ParseAddrPort(*server)
	if err != nil {
		fatal(*quiet, "dnsrequest: invalid server address: %v", err)
	}
	src := netip.AddrPortFrom(netip.IPv4Unspecified(), 0)
	if dest.Addr().Is6() {
		src = netip.AddrPortFrom(netip.IPv6Unspecified(), 0)
	}

	blackhole := acl.NewSetFromPrefixes(cfg.Dispatch.Blackhole)
	mgr := dispatch.NewManager(dispatch.ManagerOptions{Blackhole: blackhole})

	engine := reqengine.New(reqengine.Env{
		Dispatch: mgr,
		Codec:    wire.NewStandardCodec(),
	})
	defer engine.Detach()

	sched := reqengine.NewScheduler()

	msg := wire.Packet{
		Header:    wire.Header{ID: uint16(time.Now().UnixNano()), Flags: wire.RDFlag},
		Questions: []wire.Question{{Name: strings.TrimSuffix(*name, "."), Type: wire.RecordType(*qtype), Class: wire.ClassIN}},
	}

	opts := reqengine.Options(0)
	if *useTCP {
		opts |= reqengine.OptTCP
	}

	done := make(chan *reqengine.Handle, 1)
	h, err := engine.CreateVia(reqengine.CreateViaParams{
		Message:      msg,
		Dest:         dest,
		Src:          src,
		Options:      opts,
		TotalTimeout: *timeout,
		UDPRetries:   *udpRetries,
		Task:         sched.NewTask(),
		Callback: func(h *reqengine.Handle, _ any) {
			done <- h
		},
	})
	if err != nil {
		fatal(*quiet, "dnsrequest: %v", err)
	}

	h = <-done
	defer h.Destroy()

	result, _ := h.Result()
	logger.Debug("query completed", "trace_id", h.TraceID(), "result", result.String(), "tcp", h.UsedTCP())
	if result != reqengine.Success {
		if !*quiet {
			fmt.Fprintf(os.Stderr, "dnsrequest: %s\n", result)
		}
		os.Exit(1)
	}
	if *quiet {
		return
	}

	p, err := h.Response()
	if err != nil {
		fmt.Printf("received %d bytes (unparseable)\n", len(h.Answer()))
		return
	}

	fmt.Printf("id=%d rcode=%d answers=%d authorities=%d additionals=%d tcp=%v\n",
		p.Header.ID,
		wire.RCodeFromFlags(p.Header.Flags),
		len(p.Answers),
		len(p.Authorities),
		len(p.Additionals),
		h.UsedTCP(),
	)

	rows := make([]string, 0, len(p.Answers))
	for _, rr := range p.Answers {
		rows = append(rows, formatRR(rr))
	}
	sort.Strings(rows)
	for _, row := range rows {
		fmt.Println(row)
	}
}

func formatRR(rr wire.Record) string {
	h := rr.Header()
	switch r := rr.(type) {
	case *wire.IPRecord:
		return fmt.Sprintf("%s\t%d\tIN\t%d\t%s", h.Name, h.TTL, r.Type(), r.Addr)
	case *wire.NameRecord:
		return fmt.Sprintf("%s\t%d\tIN\t%d\t%s", h.Name, h.TTL, r.Type(), r.Target)
	case *wire.OpaqueRecord:
		return fmt.Sprintf("%s\t%d\tIN\t%d\t%d bytes", h.Name, h.TTL, r.Type(), len(r.Data))
	default:
		return fmt.Sprintf("%s\t%d\tIN\t?\t(unknown)", h.Name, h.TTL)
	}
}

func fatal(quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
	os.Exit(1)
}
