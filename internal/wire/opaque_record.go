package wire

import "fmt"

// OpaqueRecord carries raw RDATA for record types this codec does not
// interpret (TXT, SOA, MX, OPT, and any unrecognized type).
type OpaqueRecord struct {
	H    RRHeader
	T    RecordType
	Data []byte
}

func NewOpaqueRecord(h RRHeader, rt RecordType, data []byte) *OpaqueRecord {
	return &OpaqueRecord{H: h, T: rt, Data: data}
}

func (r *OpaqueRecord) Type() RecordType { return r.T }

func (r *OpaqueRecord) Header() RRHeader { return r.H }

func (r *OpaqueRecord) SetHeader(h RRHeader) { r.H = h }

func (r *OpaqueRecord) MarshalRData() ([]byte, error) {
	return r.Data, nil
}

// ParseOpaqueRData parses raw RDATA for TXT, OPT, and unrecognized types.
func ParseOpaqueRData(msg []byte, off *int, rdlen int, rt RecordType) (*OpaqueRecord, error) {
	if *off+rdlen > len(msg) {
		return nil, fmt.Errorf("%w: unexpected EOF reading opaque record", ErrDNSError)
	}
	b := make([]byte, rdlen)
	copy(b, msg[*off:*off+rdlen])
	*off += rdlen
	return &OpaqueRecord{T: rt, Data: b}, nil
}
