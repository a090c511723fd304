package dispatch

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/jroosing/hydrareq/internal/pool"
	"github.com/jroosing/hydrareq/internal/wire"
)

// maxIDAllocAttempts bounds the random-probe loop AddResponse uses to find
// a free message ID; it is not a hard limit on in-flight requests, only on
// how hard we retry a collision before giving up in pathological cases
// (thousands of entries sharing one handle).
const maxIDAllocAttempts = 16

// incomingBufferPool reduces allocations for inbound response datagrams.
var incomingBufferPool = pool.New(func() *[]byte {
	buf := make([]byte, 65535)
	return &buf
})

// udpHandle is the shared-socket Dispatch capability for UDP: one bound
// socket, a receive loop that demultiplexes arriving datagrams by DNS
// message ID, and a table of outstanding Entry reservations.
type udpHandle struct {
	sock  Socket
	conn  *udpSocket
	attrs Attrs

	mu      sync.Mutex
	entries map[uint16]*Entry
	closed  bool

	refs   atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}
}

// newUDPHandle wraps an already-bound UDP socket and starts its receive
// loop. attrs should include AttrUDP plus the address family bit.
func newUDPHandle(sock Socket, attrs Attrs) (*udpHandle, error) {
	us, ok := sock.(*udpSocket)
	if !ok {
		return nil, fmt.Errorf("dispatch: udp handle requires a UDP socket")
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &udpHandle{
		sock:    sock,
		conn:    us,
		attrs:   attrs | AttrUDP,
		entries: make(map[uint16]*Entry),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	h.refs.Store(1)
	go h.recvLoop(ctx)
	return h, nil
}

func (h *udpHandle) Attributes() Attrs { return h.attrs }

func (h *udpHandle) Socket() Socket { return h.sock }

func (h *udpHandle) StartTCP(context.Context) error {
	return fmt.Errorf("dispatch: StartTCP called on a UDP handle")
}

// AddResponse reserves a message ID (random, or opts.RequestedID for the
// FIXED_ID path) and registers onResponse against it.
func (h *udpHandle) AddResponse(opts ResponseOptions, dest netip.AddrPort, onResponse ResponseHandler) (uint16, *Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, nil, fmt.Errorf("dispatch: handle is closed")
	}

	if opts.RequestedID != nil {
		id := *opts.RequestedID
		if _, exists := h.entries[id]; exists {
			return 0, nil, ErrIDInUse
		}
		e := &Entry{ID: id, Dest: dest, handler: onResponse}
		h.entries[id] = e
		return id, e, nil
	}

	for range maxIDAllocAttempts {
		id := uint16(rand.IntN(1 << 16))
		if _, exists := h.entries[id]; exists {
			continue
		}
		e := &Entry{ID: id, Dest: dest, handler: onResponse}
		h.entries[id] = e
		return id, e, nil
	}
	return 0, nil, fmt.Errorf("dispatch: could not allocate a free message ID")
}

func (h *udpHandle) RemoveResponse(e *Entry) {
	if e == nil {
		return
	}
	h.mu.Lock()
	if cur, ok := h.entries[e.ID]; ok && cur == e {
		delete(h.entries, e.ID)
	}
	h.mu.Unlock()
}

func (h *udpHandle) Detach() {
	if h.refs.Add(-1) != 0 {
		return
	}
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.cancel()
	_ = h.sock.Close()
	<-h.done
}

// attach increments the reference count; used by Manager when handing out
// an already-constructed shared handle to a second caller.
func (h *udpHandle) attach() {
	h.refs.Add(1)
}

func (h *udpHandle) recvLoop(ctx context.Context) {
	defer close(h.done)
	for {
		bufPtr := incomingBufferPool.Get()
		buf := *bufPtr

		n, _, err := h.conn.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			incomingBufferPool.Put(bufPtr)
			if ctx.Err() != nil {
				return
			}
			return
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		incomingBufferPool.Put(bufPtr)

		id, err := wire.MessageID(payload)
		if err != nil {
			continue
		}

		h.mu.Lock()
		e, ok := h.entries[id]
		if ok {
			delete(h.entries, id)
		}
		h.mu.Unlock()

		if !ok || e.handler == nil {
			continue
		}
		e.handler(nil, payload)
	}
}
