package wire

import (
	"encoding/binary"
	"fmt"
)

// Record is a DNS resource record. Each concrete type (IPRecord,
// NameRecord, OpaqueRecord) owns its own RDATA shape; Record only exposes
// what the packet-level codec needs to marshal and parse any of them
// uniformly.
type Record interface {
	Type() RecordType
	Header() RRHeader
	SetHeader(RRHeader)
	MarshalRData() ([]byte, error)
}

// MarshalRecord serializes a Record to wire format: name, type, class,
// TTL, rdlength, rdata. The OPT pseudo-record's NAME is always root and its
// CLASS/TTL fields carry UDP size and extended-RCODE bits rather than a
// true class/TTL — OPTRecord.Marshal handles that case directly and is
// never passed through this path.
func MarshalRecord(r Record) ([]byte, error) {
	h := r.Header()
	nameWire, err := EncodeName(h.Name)
	if err != nil {
		return nil, err
	}
	rdata, err := r.MarshalRData()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nameWire)+10+len(rdata))
	out = append(out, nameWire...)
	fixed := make([]byte, 10)
	binary.BigEndian.PutUint16(fixed[0:2], uint16(r.Type()))
	binary.BigEndian.PutUint16(fixed[2:4], uint16(h.Class))
	binary.BigEndian.PutUint32(fixed[4:8], h.TTL)
	binary.BigEndian.PutUint16(fixed[8:10], uint16(len(rdata)))
	out = append(out, fixed...)
	out = append(out, rdata...)
	return out, nil
}

// ParseRecord parses one resource record at *off, dispatching on type to
// build the concrete Record implementation, and advances *off past it.
func ParseRecord(msg []byte, off *int) (Record, error) {
	name, err := DecodeName(msg, off)
	if err != nil {
		return nil, err
	}
	if *off+10 > len(msg) {
		return nil, fmt.Errorf("%w: unexpected EOF while reading DNS record", ErrDNSError)
	}
	rrType := RecordType(binary.BigEndian.Uint16(msg[*off : *off+2]))
	rrClass := RecordClass(binary.BigEndian.Uint16(msg[*off+2 : *off+4]))
	ttl := binary.BigEndian.Uint32(msg[*off+4 : *off+8])
	rdlen := int(binary.BigEndian.Uint16(msg[*off+8 : *off+10]))
	*off += 10
	start := *off
	if start+rdlen > len(msg) {
		return nil, fmt.Errorf("%w: unexpected EOF while reading DNS record rdata", ErrDNSError)
	}

	h := RRHeader{Name: name, Class: rrClass, TTL: ttl}

	var rec Record
	switch rrType {
	case TypeA, TypeAAAA:
		rec, err = ParseIPRData(msg, off, rdlen)
	case TypeCNAME, TypeNS, TypePTR:
		rec, err = ParseNameRData(msg, off, start, rdlen, rrType)
	default:
		rec, err = ParseOpaqueRData(msg, off, rdlen, rrType)
	}
	if err != nil {
		return nil, err
	}
	rec.SetHeader(h)
	return rec, nil
}
