package reqengine_test

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/jroosing/hydrareq/internal/acl"
	"github.com/jroosing/hydrareq/internal/dispatch"
)

// fakeSocket is an in-memory stand-in for dispatch.Socket: it records
// every Connect/Send and, unless configured to fail, reports success
// without touching the network. Responses are injected directly into the
// owning fakeHandle by the test via Deliver.
type fakeSocket struct {
	mu          sync.Mutex
	sendCount   atomic.Int32
	connectErr  error
	sendErr     error
	lastPayload []byte
}

func (s *fakeSocket) Connect(context.Context, netip.AddrPort) error { return s.connectErr }

func (s *fakeSocket) Send(_ context.Context, payload []byte, _ netip.AddrPort) (int, error) {
	s.sendCount.Add(1)
	s.mu.Lock()
	s.lastPayload = append([]byte(nil), payload...)
	s.mu.Unlock()
	return len(payload), s.sendErr
}

func (s *fakeSocket) payload() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPayload
}

func (s *fakeSocket) LocalAddr() netip.AddrPort { return netip.MustParseAddrPort("127.0.0.1:0") }
func (s *fakeSocket) SetDSCP(int) error          { return nil }
func (s *fakeSocket) Close() error               { return nil }

// fakeHandle is an in-memory dispatch.Handle: AddResponse/RemoveResponse
// operate on a plain map, and the test drives responses directly via
// Deliver instead of a real socket receive loop.
type fakeEntry struct {
	entry   *dispatch.Entry
	handler dispatch.ResponseHandler
}

type fakeHandle struct {
	sock  *fakeSocket
	attrs dispatch.Attrs

	mu      sync.Mutex
	entries map[uint16]fakeEntry
	nextID  uint16
	refs    atomic.Int32
}

func newFakeHandle(attrs dispatch.Attrs) *fakeHandle {
	h := &fakeHandle{sock: &fakeSocket{}, attrs: attrs, entries: make(map[uint16]fakeEntry)}
	h.refs.Store(1)
	return h
}

func (h *fakeHandle) Attributes() dispatch.Attrs { return h.attrs }
func (h *fakeHandle) Socket() dispatch.Socket    { return h.sock }

func (h *fakeHandle) StartTCP(context.Context) error { return nil }

func (h *fakeHandle) AddResponse(opts dispatch.ResponseOptions, dest netip.AddrPort, onResponse dispatch.ResponseHandler) (uint16, *dispatch.Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var id uint16
	if opts.RequestedID != nil {
		id = *opts.RequestedID
		if _, exists := h.entries[id]; exists {
			return 0, nil, dispatch.ErrIDInUse
		}
	} else {
		id = h.nextID
		h.nextID++
	}

	e := &dispatch.Entry{ID: id, Dest: dest}
	h.entries[id] = fakeEntry{entry: e, handler: onResponse}
	return id, e, nil
}

func (h *fakeHandle) RemoveResponse(e *dispatch.Entry) {
	if e == nil {
		return
	}
	h.mu.Lock()
	delete(h.entries, e.ID)
	h.mu.Unlock()
}

func (h *fakeHandle) Detach() {
	h.refs.Add(-1)
}

// Deliver simulates a response for id arriving on this handle.
func (h *fakeHandle) Deliver(id uint16, payload []byte) {
	h.mu.Lock()
	fe, ok := h.entries[id]
	h.mu.Unlock()
	if !ok || fe.handler == nil {
		return
	}
	fe.handler(nil, payload)
}

// DeliverError simulates the connection backing id failing (a dead TCP
// socket, for instance) rather than a response arriving.
func (h *fakeHandle) DeliverError(id uint16, err error) {
	h.mu.Lock()
	fe, ok := h.entries[id]
	h.mu.Unlock()
	if !ok || fe.handler == nil {
		return
	}
	fe.handler(err, nil)
}

// fakeManager is an in-memory dispatch.Manager.
type fakeManager struct {
	mu        sync.Mutex
	udp       map[netip.AddrPort]*fakeHandle
	blackhole *acl.Set

	// failGetUDP and failCreateTCP force the corresponding method (and, for
	// failCreateTCP, GetTCP too) to return an error, for exercising
	// createCommon's unwind paths.
	failGetUDP    bool
	failCreateTCP bool

	// fixedIDCollision, when true, pre-seeds ID 0 on the next TCP handle
	// CreateTCP mints, so a fixed-ID AddResponse for ID 0 on it fails with
	// ErrIDInUse, to exercise property 9.
	fixedIDCollision atomic.Bool

	// tcpCreated records every TCP handle minted by CreateTCP, in order,
	// so tests can inspect what createCommon actually sent on them.
	tcpCreated []*fakeHandle

	// released records every handle passed to ReleaseTCP, in order.
	released []dispatch.Handle

	// denyNext, when true, makes the next Allow call return false once.
	denyNext atomic.Bool
}

func newFakeManager() *fakeManager {
	return &fakeManager{udp: make(map[netip.AddrPort]*fakeHandle), blackhole: acl.NewSet()}
}

func (m *fakeManager) Blackhole() *acl.Set { return m.blackhole }

func (m *fakeManager) Allow() bool { return !m.denyNext.CompareAndSwap(true, false) }

func (m *fakeManager) ReleaseTCP(dest, src netip.AddrPort, h dispatch.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, h)
}

func (m *fakeManager) GetUDP(src *netip.AddrPort) (dispatch.Handle, error) {
	if src == nil {
		return nil, fmt.Errorf("fake: GetUDP requires a source")
	}
	if m.failGetUDP {
		return nil, fmt.Errorf("fake: GetUDP forced failure")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.udp[*src]; ok {
		h.refs.Add(1)
		return h, nil
	}
	h := newFakeHandle(dispatch.AttrUDP)
	m.udp[*src] = h
	return h, nil
}

func (m *fakeManager) GetTCP(ctx context.Context, dest, src netip.AddrPort) (dispatch.Handle, bool, error) {
	h, err := m.CreateTCP(dest, src)
	if err != nil {
		return nil, false, err
	}
	return h, false, nil
}

func (m *fakeManager) CreateTCP(dest, src netip.AddrPort) (dispatch.Handle, error) {
	if m.failCreateTCP {
		return nil, fmt.Errorf("fake: CreateTCP forced failure")
	}
	h := newFakeHandle(dispatch.AttrTCP)
	if m.fixedIDCollision.CompareAndSwap(true, false) {
		// Pre-seed entry 0 so the very next fixed-ID AddResponse collides.
		h.entries[0] = fakeEntry{entry: &dispatch.Entry{ID: 0}}
	}
	m.mu.Lock()
	m.tcpCreated = append(m.tcpCreated, h)
	m.mu.Unlock()
	return h, nil
}
