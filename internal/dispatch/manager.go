package dispatch

import (
	"context"
	"fmt"
	"net/netip"
	"sync"

	"golang.org/x/time/rate"

	"github.com/jroosing/hydrareq/internal/acl"
)

// Manager is the Dispatcher capability reqengine depends on: it hands out
// shared UDP handles per local source address, pools TCP connections for
// SHARE reuse, always mints a fresh TCP handle when one is asked for, and
// tracks the destination blackhole.
type Manager interface {
	// GetUDP returns the shared UDP dispatch handle bound to src. src must
	// be non-nil: per-source dispatch only, never a process-wide default
	// (defaults are supplied by the caller's environment instead).
	GetUDP(src *netip.AddrPort) (Handle, error)

	// GetTCP returns a pooled TCP handle for dest/src if SHARE reuse has
	// one already connected, or dials a new one. connected reports whether
	// the returned handle's socket is already connected (true for a pool
	// hit; false means the caller must Connect then StartTCP).
	GetTCP(ctx context.Context, dest, src netip.AddrPort) (h Handle, connected bool, err error)

	// CreateTCP always creates a fresh, unpooled TCP handle: used for
	// FIXED_ID's collision-retry path, which must not reuse a connection
	// whose ID space already has the requested ID in use.
	CreateTCP(dest, src netip.AddrPort) (Handle, error)

	// Blackhole is the set of destination addresses requests must never
	// be sent to.
	Blackhole() *acl.Set

	// ReleaseTCP evicts a pooled TCP handle once its connection has failed,
	// so a future GetTCP for the same dest/src dials fresh rather than
	// handing out a dead connection. A no-op if h is not the currently
	// pooled handle for dest/src (e.g. it was already evicted or was never
	// pooled — CreateTCP's handles are not).
	ReleaseTCP(dest, src netip.AddrPort, h Handle)

	// Allow reports whether the configured send-rate cap currently admits
	// one more request. Always true when no RateLimit was configured.
	Allow() bool
}

// managerImpl is the concrete Manager backed by a real SocketManager.
type managerImpl struct {
	sockets   *SocketManager
	blackhole *acl.Set

	limiter *rate.Limiter

	mu      sync.Mutex
	udp     map[netip.AddrPort]*udpHandle
	tcpPool map[tcpPoolKey]*tcpHandle
}

type tcpPoolKey struct {
	dest netip.AddrPort
	src  netip.AddrPort
}

// ManagerOptions configures a Manager's shared state.
type ManagerOptions struct {
	// Blackhole lists destination prefixes requests must never reach. Nil
	// means nothing is blackholed.
	Blackhole *acl.Set

	// RateLimit, if positive, caps the aggregate rate of new sends the
	// Manager will authorize per second (token-bucket, burst = rate).
	// Zero disables limiting.
	RateLimit rate.Limit
}

// NewManager constructs a Manager around a fresh SocketManager.
func NewManager(opts ManagerOptions) Manager {
	bh := opts.Blackhole
	if bh == nil {
		bh = acl.NewSet()
	}
	m := &managerImpl{
		sockets:   NewSocketManager(),
		blackhole: bh,
		udp:       make(map[netip.AddrPort]*udpHandle),
		tcpPool:   make(map[tcpPoolKey]*tcpHandle),
	}
	if opts.RateLimit > 0 {
		m.limiter = rate.NewLimiter(opts.RateLimit, int(opts.RateLimit))
	}
	return m
}

func (m *managerImpl) Blackhole() *acl.Set { return m.blackhole }

func (m *managerImpl) GetUDP(src *netip.AddrPort) (Handle, error) {
	if src == nil {
		return nil, fmt.Errorf("dispatch: GetUDP requires a non-nil source address")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.udp[*src]; ok {
		h.attach()
		return h, nil
	}

	sock, err := m.sockets.CreateUDP(context.Background(), *src)
	if err != nil {
		return nil, err
	}
	attrs := AttrUDP
	if src.Addr().Is6() {
		attrs |= AttrV6
	} else {
		attrs |= AttrV4
	}
	h, err := newUDPHandle(sock, attrs)
	if err != nil {
		_ = sock.Close()
		return nil, err
	}
	m.udp[*src] = h
	return h, nil
}

func (m *managerImpl) GetTCP(ctx context.Context, dest, src netip.AddrPort) (Handle, bool, error) {
	key := tcpPoolKey{dest: dest, src: src}

	m.mu.Lock()
	if h, ok := m.tcpPool[key]; ok {
		h.attach()
		m.mu.Unlock()
		return h, true, nil
	}
	m.mu.Unlock()

	h, err := m.dialTCP(ctx, dest, src)
	if err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	if existing, ok := m.tcpPool[key]; ok {
		m.mu.Unlock()
		_ = h.sock.Close()
		existing.attach()
		return existing, true, nil
	}
	m.tcpPool[key] = h
	m.mu.Unlock()

	return h, false, nil
}

func (m *managerImpl) CreateTCP(dest, src netip.AddrPort) (Handle, error) {
	return m.dialTCP(context.Background(), dest, src)
}

func (m *managerImpl) dialTCP(ctx context.Context, dest, src netip.AddrPort) (*tcpHandle, error) {
	sock, err := m.sockets.CreateTCP()
	if err != nil {
		return nil, err
	}
	return newTCPHandle(sock, dest, src), nil
}

// Allow reports whether the configured rate limiter authorizes a new send
// right now; always true when no limiter is configured.
func (m *managerImpl) Allow() bool {
	if m.limiter == nil {
		return true
	}
	return m.limiter.Allow()
}

// ReleaseTCP removes a pooled TCP handle once its connection has failed, so
// a future GetTCP dials fresh instead of handing out a dead connection.
// reqengine's statemachine calls this from its onResponse error path for
// TCP requests that used a shared (SHARE) handle.
func (m *managerImpl) ReleaseTCP(dest, src netip.AddrPort, h Handle) {
	key := tcpPoolKey{dest: dest, src: src}
	m.mu.Lock()
	if cur, ok := m.tcpPool[key]; ok && Handle(cur) == h {
		delete(m.tcpPool, key)
	}
	m.mu.Unlock()
}
