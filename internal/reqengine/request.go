package reqengine

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jroosing/hydrareq/internal/dispatch"
	"github.com/jroosing/hydrareq/internal/wire"
)

// reqFlags holds the independent state bits from §4.3. At most one of
// flagConnecting/flagSending is ever set; flagCanceled, once set, is never
// cleared.
type reqFlags uint8

const (
	flagConnecting reqFlags = 1 << iota
	flagSending
	flagCanceled
	flagTimedOut
	flagTCP
)

// Callback is invoked exactly once when a request reaches a terminal
// state. Fetch the outcome and payload via the Handle's accessors.
type Callback func(h *Handle, arg any)

// request is a single in-flight query's state machine. All mutable fields
// below mu are guarded by it; mu itself is one of the engine's shard locks,
// assigned once at admission and held for the request's whole life.
type request struct {
	engine *Engine
	shard  int
	mu     *sync.Mutex

	flags         reqFlags
	cancelPending bool

	result    Result
	resultSet bool
	delivered bool

	wireBuf  []byte
	response []byte

	dest netip.AddrPort
	src  netip.AddrPort
	dscp int

	handle dispatch.Handle
	entry  *dispatch.Entry

	// ctx/cancelFunc scope every dispatcher call (Connect/Send/StartTCP)
	// issued on this request's behalf, so cancel() can ask the socket
	// layer to abandon an in-flight connect or send rather than letting
	// it run to completion unobserved.
	ctx        context.Context
	cancelFunc context.CancelFunc

	timer Timer

	tsigKey  *wire.TSIGKey
	queryMAC []byte

	udpRemaining int
	udpInterval  time.Duration
	totalTimeout time.Duration

	task     Task
	callback Callback
	arg      any

	options   Options
	createdAt time.Time
	traceID   string
}

// newTraceID generates the opaque per-request identifier exposed by
// Handle.TraceID. reqengine writes no log lines itself; callers attach the
// ID to their own.
func newTraceID() string {
	return uuid.NewString()
}

// setResult records result/buf the first time it is called; later calls
// (the response racing a late connect/send completion, for instance) are
// no-ops, preserving "the response wins".
func (r *request) setResult(result Result, buf []byte) {
	r.mu.Lock()
	if !r.resultSet {
		r.result = result
		r.response = buf
		r.resultSet = true
	}
	r.mu.Unlock()
}
