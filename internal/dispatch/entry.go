package dispatch

import "net/netip"

// ResponseHandler is invoked once when a response matching an Entry's ID
// arrives, or with a non-nil err if the dispatch handle itself fails
// (socket error, read loop exit). payload is nil when err != nil.
type ResponseHandler func(err error, payload []byte)

// ResponseOptions configures AddResponse. RequestedID lets a caller using
// the FIXED_ID option register a specific message ID (already burned into
// the wire buffer) instead of having one allocated.
type ResponseOptions struct {
	RequestedID *uint16
}

// Entry is a reservation binding a 16-bit DNS message ID within a dispatch
// handle to a response callback; it exists only while a response is
// outstanding.
type Entry struct {
	ID   uint16
	Dest netip.AddrPort

	handler ResponseHandler
}

// ErrIDInUse is returned by AddResponse when RequestedID is already
// registered on the handle.
type idInUseError struct{}

func (idInUseError) Error() string { return "dispatch: requested message ID already in use" }

// ErrIDInUse is the sentinel returned by AddResponse on a FIXED_ID
// collision; create_raw's contract is to retry once with a fresh TCP
// dispatch on this specific error.
var ErrIDInUse error = idInUseError{}
