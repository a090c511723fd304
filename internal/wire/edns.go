package wire

import (
	"encoding/binary"

	"github.com/jroosing/hydrareq/internal/helpers"
)

// EDNS constants (RFC 6891).
const (
	DefaultUDPPayloadSize     = 512
	EDNSDefaultUDPPayloadSize = 1232
	EDNSMaxUDPPayloadSize     = 4096
	EDNSMinUDPPayloadSize     = 512
)

// EDNSOption is one option TLV in an OPT record's RDATA.
type EDNSOption struct {
	Code uint16
	Data []byte
}

const ednsOptionHeaderLen = 4

// Marshal serializes an EDNS option to wire format.
func (o EDNSOption) Marshal() []byte {
	b := make([]byte, 4+len(o.Data))
	binary.BigEndian.PutUint16(b[0:2], o.Code)
	binary.BigEndian.PutUint16(b[2:4], helpers.ClampIntToUint16(len(o.Data)))
	copy(b[4:], o.Data)
	return b
}

// ParseEDNSOptions extracts option TLVs from OPT RDATA. A truncated option
// ends parsing early rather than erroring, matching permissive EDNS parsing
// practice.
func ParseEDNSOptions(rdata []byte) []EDNSOption {
	opts := make([]EDNSOption, 0, 2)
	for i := 0; i < len(rdata); {
		if len(rdata)-i < ednsOptionHeaderLen {
			break
		}
		code := binary.BigEndian.Uint16(rdata[i : i+2])
		ln := int(binary.BigEndian.Uint16(rdata[i+2 : i+4]))
		i += ednsOptionHeaderLen
		if i+ln > len(rdata) {
			break
		}
		data := make([]byte, ln)
		copy(data, rdata[i:i+ln])
		opts = append(opts, EDNSOption{Code: code, Data: data})
		i += ln
	}
	return opts
}

// MarshalEDNSOptions serializes a slice of options back to RDATA.
func MarshalEDNSOptions(opts []EDNSOption) []byte {
	if len(opts) == 0 {
		return nil
	}
	size := 0
	for _, o := range opts {
		size += ednsOptionHeaderLen + len(o.Data)
	}
	out := make([]byte, 0, size)
	for _, o := range opts {
		out = append(out, o.Marshal()...)
	}
	return out
}

// OPTRecord is the EDNS pseudo-record (RFC 6891): NAME is always root,
// CLASS carries the sender's UDP payload size, and TTL packs the extended
// RCODE, version, and DO flag.
//
//	+---+---+---+---+---+---+---+---+---+---+---+---+---+---+---+---+
//	|         EXTENDED-RCODE        |            VERSION            |
//	+---+---+---+---+---+---+---+---+---+---+---+---+---+---+---+---+
//	| DO|                    Z (reserved)                           |
//	+---+---+---+---+---+---+---+---+---+---+---+---+---+---+---+---+
type OPTRecord struct {
	UDPPayloadSize uint16
	ExtendedRCode  uint8
	Version        uint8
	DNSSECOk       bool
	Options        []EDNSOption
}

// CreateOPT creates an OPT record advertising udpPayloadSize, clamped to the
// valid EDNS range.
func CreateOPT(udpPayloadSize int) OPTRecord {
	sz := helpers.ClampInt(udpPayloadSize, EDNSMinUDPPayloadSize, 65535)
	return OPTRecord{UDPPayloadSize: helpers.ClampIntToUint16(sz)}
}

// Marshal serializes the OPT record to wire format.
func (o OPTRecord) Marshal() []byte {
	ttl := packOPTTTL(o.ExtendedRCode, o.Version, o.DNSSECOk)
	rdata := MarshalEDNSOptions(o.Options)

	b := make([]byte, 0, 11+len(rdata))
	b = append(b, 0) // root name
	fixed := make([]byte, 10)
	binary.BigEndian.PutUint16(fixed[0:2], uint16(TypeOPT))
	binary.BigEndian.PutUint16(fixed[2:4], o.UDPPayloadSize)
	binary.BigEndian.PutUint32(fixed[4:8], ttl)
	binary.BigEndian.PutUint16(fixed[8:10], helpers.ClampIntToUint16(len(rdata)))
	b = append(b, fixed...)
	b = append(b, rdata...)
	return b
}

func packOPTTTL(extRCode, version uint8, dnssecOk bool) uint32 {
	ttl := uint32(extRCode)<<24 | uint32(version)<<16
	if dnssecOk {
		ttl |= 1 << 15
	}
	return ttl
}

// ExtractOPT finds and parses an OPT record among additionals, or nil.
func ExtractOPT(additionals []Record) *OPTRecord {
	for _, r := range additionals {
		if r.Type() != TypeOPT {
			continue
		}
		opaque, ok := r.(*OpaqueRecord)
		if !ok {
			continue
		}
		h := opaque.Header()
		o := OPTRecord{
			UDPPayloadSize: uint16(h.Class),
			ExtendedRCode:  helpers.ClampUint32ToUint8((h.TTL >> 24) & 0xFF),
			Version:        helpers.ClampUint32ToUint8((h.TTL >> 16) & 0xFF),
			DNSSECOk:       ((h.TTL >> 15) & 0x1) == 1,
			Options:        ParseEDNSOptions(opaque.Data),
		}
		return &o
	}
	return nil
}

// ClientMaxUDPSize returns the requester's advertised UDP payload size, or
// DefaultUDPPayloadSize if no OPT record is present.
func ClientMaxUDPSize(p Packet) int {
	if opt := ExtractOPT(p.Additionals); opt != nil {
		if opt.UDPPayloadSize < DefaultUDPPayloadSize {
			return DefaultUDPPayloadSize
		}
		return int(opt.UDPPayloadSize)
	}
	return DefaultUDPPayloadSize
}

// IsTruncated reports whether a wire response has the TC flag set.
func IsTruncated(responseBytes []byte) bool {
	if len(responseBytes) < 4 {
		return false
	}
	flags := binary.BigEndian.Uint16(responseBytes[2:4])
	return (flags & TCFlag) != 0
}
