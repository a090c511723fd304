// Package dispatch implements the Dispatcher capability reqengine consumes:
// a pool of shared UDP sockets and cached TCP connections, 16-bit DNS
// message ID allocation, and demultiplexing of incoming responses back to
// the request that registered a given ID.
//
// Grounded on the teacher's forwarding resolver (connection pooling,
// upstream TCP framing) and UDP/TCP server (SO_REUSEPORT socket
// construction, buffer pooling, graceful shutdown), generalized from an
// inbound server's socket lifecycle to an outbound dispatcher's.
package dispatch

// Attrs describes the transport and address-family properties of a
// dispatch handle, mirroring the UDP/TCP/EXCLUSIVE/v4/v6 attribute bits
// the original dispatcher exposes via attributes().
type Attrs uint8

const (
	AttrUDP Attrs = 1 << iota
	AttrTCP
	AttrExclusive
	AttrV4
	AttrV6
)

// Has reports whether all bits in want are set.
func (a Attrs) Has(want Attrs) bool {
	return a&want == want
}
