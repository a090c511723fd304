package dispatch

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/jroosing/hydrareq/internal/wire"
)

// tcpHandle is the Dispatch capability for a single TCP connection: one
// socket, a length-prefixed read loop started by StartTCP, and a table of
// outstanding Entry reservations. Unlike UDP, a TCP dispatch handle always
// demultiplexes at most a handful of in-flight requests sharing one byte
// stream (SHARE reuses the same handle; a FIXED_ID collision retry gets a
// fresh one).
type tcpHandle struct {
	sock Socket
	dest netip.AddrPort
	src  netip.AddrPort

	mu      sync.Mutex
	entries map[uint16]*Entry
	closed  bool

	refs    atomic.Int32
	started atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func newTCPHandle(sock Socket, dest, src netip.AddrPort) *tcpHandle {
	h := &tcpHandle{
		sock:    sock,
		dest:    dest,
		src:     src,
		entries: make(map[uint16]*Entry),
		done:    make(chan struct{}),
	}
	h.refs.Store(1)
	close(h.done)
	return h
}

func (h *tcpHandle) Attributes() Attrs {
	a := AttrTCP
	if h.dest.Addr().Is6() {
		a |= AttrV6
	} else {
		a |= AttrV4
	}
	return a
}

func (h *tcpHandle) Socket() Socket { return h.sock }

func (h *tcpHandle) AddResponse(opts ResponseOptions, dest netip.AddrPort, onResponse ResponseHandler) (uint16, *Entry, error) {
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

	for id := uint16(0); ; id++ {
		if _, exists := h.entries[id]; !exists {
			e := &Entry{ID: id, Dest: dest, handler: onResponse}
			h.entries[id] = e
			return id, e, nil
		}
		if id == 0xFFFF {
			return 0, nil, fmt.Errorf("dispatch: could not allocate a free message ID")
		}
	}
}

func (h *tcpHandle) RemoveResponse(e *Entry) {
	if e == nil {
		return
	}
	h.mu.Lock()
	if cur, ok := h.entries[e.ID]; ok && cur == e {
		delete(h.entries, e.ID)
	}
	h.mu.Unlock()
}

// StartTCP begins the framed read loop on an already-connected socket. It
// is a no-op, not an error, on a second call: SHARE-reused handles call it
// once per caller.
func (h *tcpHandle) StartTCP(ctx context.Context) error {
	if !h.started.CompareAndSwap(false, true) {
		return nil
	}
	ts, ok := h.sock.(*tcpSocket)
	if !ok || ts.conn == nil {
		return fmt.Errorf("dispatch: StartTCP requires a connected TCP socket")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})
	go h.recvLoop(loopCtx, ts)
	return nil
}

func (h *tcpHandle) Detach() {
	if h.refs.Add(-1) != 0 {
		return
	}
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
	}
	_ = h.sock.Close()
	if h.started.Load() {
		<-h.done
	}
}

func (h *tcpHandle) attach() {
	h.refs.Add(1)
}

// recvLoop reads 2-byte big-endian length-prefixed DNS messages (RFC 1035
// Section 4.2.2) and dispatches each to its waiting Entry by message ID.
func (h *tcpHandle) recvLoop(ctx context.Context, ts *tcpSocket) {
	defer close(h.done)
	r := bufio.NewReader(ts.conn)
	var lenBuf [2]byte

	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			h.failAll(err)
			return
		}
		msgLen := binary.BigEndian.Uint16(lenBuf[:])
		payload := make([]byte, msgLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			h.failAll(err)
			return
		}

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

// failAll notifies every outstanding entry that the connection died, so
// requests waiting on this handle don't hang until their own timers fire.
func (h *tcpHandle) failAll(err error) {
	h.mu.Lock()
	entries := h.entries
	h.entries = make(map[uint16]*Entry)
	h.closed = true
	h.mu.Unlock()

	for _, e := range entries {
		if e.handler != nil {
			e.handler(err, nil)
		}
	}
}
