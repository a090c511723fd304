package wire

import (
	"encoding/binary"
	"fmt"
)

// Header is a DNS message header (RFC 1035 Section 4.1.1). Always 12 bytes
// on the wire.
type Header struct {
	ID      uint16
	Flags   uint16
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// HeaderSize is the fixed size of a DNS header in bytes.
const HeaderSize = 12

// Marshal serializes the header to wire format (big-endian, 12 bytes).
func (h Header) Marshal() []byte {
	b := make([]byte, HeaderSize)
	binary.BigEndian.PutUint16(b[0:2], h.ID)
	binary.BigEndian.PutUint16(b[2:4], h.Flags)
	binary.BigEndian.PutUint16(b[4:6], h.QDCount)
	binary.BigEndian.PutUint16(b[6:8], h.ANCount)
	binary.BigEndian.PutUint16(b[8:10], h.NSCount)
	binary.BigEndian.PutUint16(b[10:12], h.ARCount)
	return b
}

// ParseHeader parses a DNS header at *off, advancing it by HeaderSize.
func ParseHeader(msg []byte, off *int) (Header, error) {
	if *off+HeaderSize > len(msg) {
		return Header{}, fmt.Errorf("%w: unexpected EOF while reading DNS header", ErrDNSError)
	}
	h := Header{
		ID:      binary.BigEndian.Uint16(msg[*off : *off+2]),
		Flags:   binary.BigEndian.Uint16(msg[*off+2 : *off+4]),
		QDCount: binary.BigEndian.Uint16(msg[*off+4 : *off+6]),
		ANCount: binary.BigEndian.Uint16(msg[*off+6 : *off+8]),
		NSCount: binary.BigEndian.Uint16(msg[*off+8 : *off+10]),
		ARCount: binary.BigEndian.Uint16(msg[*off+10 : *off+12]),
	}
	*off += HeaderSize
	return h, nil
}

// MessageID reads the big-endian transaction ID from the first two bytes of
// a wire buffer without fully parsing the header.
func MessageID(msg []byte) (uint16, error) {
	if len(msg) < 2 {
		return 0, fmt.Errorf("%w: buffer smaller than DNS message ID field", ErrDNSError)
	}
	return binary.BigEndian.Uint16(msg[0:2]), nil
}

// SetMessageID overwrites the first two bytes of a wire buffer with id,
// big-endian. Used by CreateRaw when FIXED_ID is absent and the dispatcher
// assigns a fresh ID.
func SetMessageID(msg []byte, id uint16) error {
	if len(msg) < 2 {
		return fmt.Errorf("%w: buffer smaller than DNS message ID field", ErrDNSError)
	}
	binary.BigEndian.PutUint16(msg[0:2], id)
	return nil
}
