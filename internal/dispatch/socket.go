package dispatch

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"syscall"

	"golang.org/x/sys/unix"
)

// Socket is the SocketManager capability's per-connection handle: enough
// to connect (TCP only), send, mark DSCP, and report the bound local
// address. UDP sockets in this dispatcher are never "connected" in the
// BSD-socket sense — outgoing datagrams always carry an explicit
// destination — so Connect is a no-op for them.
type Socket interface {
	Connect(ctx context.Context, dest netip.AddrPort) error
	Send(ctx context.Context, payload []byte, dest netip.AddrPort) (int, error)
	LocalAddr() netip.AddrPort
	SetDSCP(dscp int) error
	Close() error
}

// SocketManager is the concrete SocketManager capability: it creates the
// raw UDP/TCP sockets dispatch handles operate on, wrapping net.Dialer and
// net.ListenConfig the way the teacher's udp_server.go/tcp_server.go wrap
// them for the inbound side.
type SocketManager struct {
	dialer net.Dialer
}

// NewSocketManager constructs a SocketManager using default dial settings.
func NewSocketManager() *SocketManager {
	return &SocketManager{}
}

// CreateUDP opens an unconnected UDP socket bound to local (or an
// ephemeral port of the right family if local is the zero value).
func (m *SocketManager) CreateUDP(ctx context.Context, local netip.AddrPort) (Socket, error) {
	addr := "udp"
	if local.Addr().Is6() {
		addr = "udp6"
	} else if local.Addr().Is4() {
		addr = "udp4"
	}
	lc := net.ListenConfig{}
	pc, err := lc.ListenPacket(ctx, addr, local.String())
	if err != nil {
		return nil, fmt.Errorf("dispatch: create UDP socket: %w", err)
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		_ = pc.Close()
		return nil, fmt.Errorf("dispatch: unexpected packet conn type %T", pc)
	}
	return &udpSocket{conn: conn}, nil
}

// CreateTCP allocates a TCP socket value; the underlying connection is
// established lazily by Connect (mirrors isc_socket_create followed by a
// later isc_socket_connect).
func (m *SocketManager) CreateTCP() (Socket, error) {
	return &tcpSocket{dialer: &m.dialer}, nil
}

type udpSocket struct {
	conn *net.UDPConn
}

func (s *udpSocket) Connect(context.Context, netip.AddrPort) error { return nil }

func (s *udpSocket) Send(_ context.Context, payload []byte, dest netip.AddrPort) (int, error) {
	return s.conn.WriteToUDPAddrPort(payload, dest)
}

func (s *udpSocket) LocalAddr() netip.AddrPort {
	addr, _ := netip.ParseAddrPort(s.conn.LocalAddr().String())
	return addr
}

func (s *udpSocket) SetDSCP(dscp int) error {
	return setDSCP(s.conn, dscp)
}

func (s *udpSocket) Close() error { return s.conn.Close() }

type tcpSocket struct {
	dialer *net.Dialer
	conn   net.Conn
}

func (s *tcpSocket) Connect(ctx context.Context, dest netip.AddrPort) error {
	conn, err := s.dialer.DialContext(ctx, "tcp", dest.String())
	if err != nil {
		return fmt.Errorf("dispatch: tcp connect: %w", err)
	}
	s.conn = conn
	return nil
}

func (s *tcpSocket) Send(_ context.Context, payload []byte, _ netip.AddrPort) (int, error) {
	if s.conn == nil {
		return 0, fmt.Errorf("dispatch: send on unconnected TCP socket")
	}
	return s.conn.Write(payload)
}

func (s *tcpSocket) LocalAddr() netip.AddrPort {
	if s.conn == nil {
		return netip.AddrPort{}
	}
	addr, _ := netip.ParseAddrPort(s.conn.LocalAddr().String())
	return addr
}

func (s *tcpSocket) SetDSCP(dscp int) error {
	if s.conn == nil {
		return fmt.Errorf("dispatch: cannot set DSCP before connect")
	}
	return setDSCP(s.conn, dscp)
}

func (s *tcpSocket) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// setDSCP applies a differentiated-services code point to outgoing
// packets, via IP_TOS for IPv4 or IPV6_TCLASS for IPv6. DSCP occupies the
// top 6 bits of the field; it is shifted into place here.
func setDSCP(conn net.Conn, dscp int) error {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return fmt.Errorf("dispatch: connection does not expose a raw fd for DSCP")
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return fmt.Errorf("dispatch: get raw conn: %w", err)
	}

	tos := (dscp << 2) & 0xFC
	var setErr error
	isV6 := false
	if la, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		isV6 = la.IP.To4() == nil
	} else if la, ok := conn.LocalAddr().(*net.TCPAddr); ok {
		isV6 = la.IP.To4() == nil
	}

	ctrlErr := raw.Control(func(fd uintptr) {
		if isV6 {
			setErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_TCLASS, tos)
		} else {
			setErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TOS, tos)
		}
	})
	if ctrlErr != nil {
		return fmt.Errorf("dispatch: set DSCP: %w", ctrlErr)
	}
	return setErr
}
