package dispatch

import (
	"context"
	"net/netip"
)

// Handle is the Dispatch capability: a socket (or pooled set of sockets)
// plus ID allocation and response demultiplexing, shared across many
// in-flight requests. reqengine depends on this interface, never a
// concrete type, so its tests can substitute an in-memory fake.
type Handle interface {
	// Attributes reports the transport and address-family bits for this
	// handle (UDP/TCP/EXCLUSIVE/v4/v6).
	Attributes() Attrs

	// AddResponse reserves a message ID and registers onResponse to be
	// invoked when a reply for it arrives.
	AddResponse(opts ResponseOptions, dest netip.AddrPort, onResponse ResponseHandler) (uint16, *Entry, error)

	// RemoveResponse releases a reservation; safe to call multiple times.
	RemoveResponse(e *Entry)

	// Socket returns the handle's underlying socket for connect/send.
	Socket() Socket

	// StartTCP begins the framed read loop that demultiplexes responses
	// on an already-connected TCP handle. No-op (returns an error) on a
	// UDP handle.
	StartTCP(ctx context.Context) error

	// Detach releases the caller's reference; the handle is torn down
	// once its reference count reaches zero.
	Detach()
}
