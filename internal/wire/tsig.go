package wire

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
)

// TSIGKey is a shared transaction-signature key (RFC 8945). Only
// hmac-sha256 is supported; that is the algorithm modern resolvers default
// to and the only one this codec needs to exercise.
type TSIGKey struct {
	Name      string
	Algorithm string
	Secret    []byte
}

const tsigAlgHMACSHA256 = "hmac-sha256."

func newHMAC(key TSIGKey) (hash.Hash, error) {
	switch key.Algorithm {
	case "", tsigAlgHMACSHA256:
		return hmac.New(sha256.New, key.Secret), nil
	default:
		return nil, fmt.Errorf("%w: unsupported TSIG algorithm %q", ErrDNSError, key.Algorithm)
	}
}

// TSIGRecord is the parsed form of a TSIG resource record appended to a
// signed message's additional section.
type TSIGRecord struct {
	KeyName    string
	Algorithm  string
	TimeSigned uint64 // 48-bit
	Fudge      uint16
	MAC        []byte
	OriginalID uint16
	Error      RCode
	OtherData  []byte
}

// marshalVariables serializes the TSIG variables covered by the MAC
// (RFC 8945 Section 4.2), excluding the MAC itself.
func (t TSIGRecord) marshalVariables() ([]byte, error) {
	name, err := EncodeName(t.KeyName)
	if err != nil {
		return nil, err
	}
	alg, err := EncodeName(t.Algorithm)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(name)+len(alg)+16)
	buf = append(buf, name...)
	buf = append(buf, 0, 255) // CLASS ANY
	buf = append(buf, 0, 0, 0, 0) // TTL 0
	buf = append(buf, alg...)

	timeBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(timeBuf, t.TimeSigned)
	buf = append(buf, timeBuf[2:]...) // 48-bit time signed

	fudge := make([]byte, 2)
	binary.BigEndian.PutUint16(fudge, t.Fudge)
	buf = append(buf, fudge...)

	errOther := make([]byte, 4)
	binary.BigEndian.PutUint16(errOther[0:2], uint16(t.Error))
	binary.BigEndian.PutUint16(errOther[2:4], uint16(len(t.OtherData)))
	buf = append(buf, errOther...)
	buf = append(buf, t.OtherData...)
	return buf, nil
}

// computeMAC computes the TSIG MAC over priorMAC (empty for a query, the
// query's MAC for a response) followed by the message bytes (with the
// TSIG record itself excluded) and the TSIG variables.
func computeMAC(key TSIGKey, priorMAC, message []byte, rec TSIGRecord) ([]byte, error) {
	h, err := newHMAC(key)
	if err != nil {
		return nil, err
	}
	if len(priorMAC) > 0 {
		lenBuf := make([]byte, 2)
		binary.BigEndian.PutUint16(lenBuf, uint16(len(priorMAC)))
		h.Write(lenBuf)
		h.Write(priorMAC)
	}
	h.Write(message)
	vars, err := rec.marshalVariables()
	if err != nil {
		return nil, err
	}
	h.Write(vars)
	return h.Sum(nil), nil
}

// SignQuery renders msg, appends a TSIG record keyed by key, and returns
// the final rendered bytes plus the query MAC (needed later to verify the
// response, per RFC 8945 Section 5.3's MAC-chaining).
func SignQuery(msg Packet, key TSIGKey, opts RenderOptions, timeSigned uint64, fudge uint16) ([]byte, []byte, error) {
	unsigned, err := Render(msg, RenderOptions{Case: opts.Case, TCP: true})
	if err != nil && err != ErrUseTCP {
		return nil, nil, err
	}
	// Strip the 2-byte TCP length prefix added above; the caller decides
	// framing once the final (signed) size is known.
	if len(unsigned) >= 2 {
		unsigned = unsigned[2:]
	}

	rec := TSIGRecord{
		KeyName:    key.Name,
		Algorithm:  tsigAlgHMACSHA256,
		TimeSigned: timeSigned,
		Fudge:      fudge,
		OriginalID: msg.Header.ID,
	}
	mac, err := computeMAC(key, nil, unsigned, rec)
	if err != nil {
		return nil, nil, err
	}
	rec.MAC = mac

	signed := appendTSIGRecord(unsigned, rec)
	if !opts.TCP && len(signed) > 512 {
		return nil, nil, ErrUseTCP
	}
	if opts.TCP {
		framed := make([]byte, 2, 2+len(signed))
		binary.BigEndian.PutUint16(framed, uint16(len(signed)))
		framed = append(framed, signed...)
		return framed, mac, nil
	}
	return signed, mac, nil
}

// appendTSIGRecord appends a TSIG RR (root-relative KeyName, TYPE=TSIG,
// CLASS=ANY, TTL=0) to message and bumps ARCOUNT. TSIG records are never
// name-compressed (RFC 8945 Section 2.3).
func appendTSIGRecord(message []byte, rec TSIGRecord) []byte {
	name, _ := EncodeName(rec.KeyName)
	alg, _ := EncodeName(rec.Algorithm)

	rdata := make([]byte, 0, len(alg)+32+len(rec.MAC)+len(rec.OtherData))
	rdata = append(rdata, alg...)
	timeBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(timeBuf, rec.TimeSigned)
	rdata = append(rdata, timeBuf[2:]...)
	fudge := make([]byte, 2)
	binary.BigEndian.PutUint16(fudge, rec.Fudge)
	rdata = append(rdata, fudge...)
	macLen := make([]byte, 2)
	binary.BigEndian.PutUint16(macLen, uint16(len(rec.MAC)))
	rdata = append(rdata, macLen...)
	rdata = append(rdata, rec.MAC...)
	origID := make([]byte, 2)
	binary.BigEndian.PutUint16(origID, rec.OriginalID)
	rdata = append(rdata, origID...)
	errOther := make([]byte, 4)
	binary.BigEndian.PutUint16(errOther[0:2], uint16(rec.Error))
	binary.BigEndian.PutUint16(errOther[2:4], uint16(len(rec.OtherData)))
	rdata = append(rdata, errOther...)
	rdata = append(rdata, rec.OtherData...)

	out := make([]byte, len(message), len(message)+len(name)+10+len(rdata))
	copy(out, message)
	out = append(out, name...)
	fixed := make([]byte, 10)
	binary.BigEndian.PutUint16(fixed[0:2], uint16(TypeTSIG))
	binary.BigEndian.PutUint16(fixed[2:4], uint16(255)) // CLASS ANY
	binary.BigEndian.PutUint16(fixed[8:10], uint16(len(rdata)))
	out = append(out, fixed...)
	out = append(out, rdata...)

	if len(out) >= HeaderSize {
		ar := binary.BigEndian.Uint16(out[10:12])
		binary.BigEndian.PutUint16(out[10:12], ar+1)
	}
	return out
}

// VerifyResponse recomputes the MAC over a response (excluding its TSIG
// record) chained from the query's MAC, and compares it against the
// TSIG record's carried MAC.
func VerifyResponse(responseWire []byte, key TSIGKey, queryMAC []byte) error {
	p, err := ParsePacket(responseWire)
	if err != nil {
		return err
	}
	var tsigIdx = -1
	for i, r := range p.Additionals {
		if r.Type() == TypeTSIG {
			tsigIdx = i
			break
		}
	}
	if tsigIdx < 0 {
		return fmt.Errorf("%w: response has no TSIG record", ErrDNSError)
	}
	opaque, ok := p.Additionals[tsigIdx].(*OpaqueRecord)
	if !ok {
		return fmt.Errorf("%w: malformed TSIG record", ErrDNSError)
	}
	rec, stripped, err := parseTSIGRData(opaque, p, responseWire)
	if err != nil {
		return err
	}

	want, err := computeMAC(key, queryMAC, stripped, TSIGRecord{
		KeyName:    rec.KeyName,
		Algorithm:  rec.Algorithm,
		TimeSigned: rec.TimeSigned,
		Fudge:      rec.Fudge,
		OriginalID: rec.OriginalID,
		Error:      rec.Error,
		OtherData:  rec.OtherData,
	})
	if err != nil {
		return err
	}
	if !hmac.Equal(want, rec.MAC) {
		return fmt.Errorf("%w: TSIG verification failed", ErrDNSError)
	}
	return nil
}

// parseTSIGRData decodes a TSIG RR's RDATA and returns the message bytes
// with the TSIG record itself stripped and ARCOUNT decremented, as
// required to recompute its covering MAC.
func parseTSIGRData(rr *OpaqueRecord, p Packet, original []byte) (TSIGRecord, []byte, error) {
	data := rr.Data
	off := 0
	alg, err := DecodeName(data, &off)
	if err != nil {
		return TSIGRecord{}, nil, err
	}
	if off+10 > len(data) {
		return TSIGRecord{}, nil, fmt.Errorf("%w: truncated TSIG RDATA", ErrDNSError)
	}
	timeSigned := uint64(binary.BigEndian.Uint16(data[off:off+2]))<<32 | uint64(binary.BigEndian.Uint32(data[off+2:off+6]))
	off += 6
	fudge := binary.BigEndian.Uint16(data[off : off+2])
	off += 2
	macLen := int(binary.BigEndian.Uint16(data[off : off+2]))
	off += 2
	if off+macLen > len(data) {
		return TSIGRecord{}, nil, fmt.Errorf("%w: truncated TSIG MAC", ErrDNSError)
	}
	mac := data[off : off+macLen]
	off += macLen
	if off+6 > len(data) {
		return TSIGRecord{}, nil, fmt.Errorf("%w: truncated TSIG trailer", ErrDNSError)
	}
	origID := binary.BigEndian.Uint16(data[off : off+2])
	rerr := RCode(binary.BigEndian.Uint16(data[off+2 : off+4]))
	otherLen := int(binary.BigEndian.Uint16(data[off+4 : off+6]))
	off += 6
	var otherData []byte
	if otherLen > 0 && off+otherLen <= len(data) {
		otherData = data[off : off+otherLen]
	}

	rec := TSIGRecord{
		KeyName:    rr.Header().Name,
		Algorithm:  alg,
		TimeSigned: timeSigned,
		Fudge:      fudge,
		MAC:        mac,
		OriginalID: origID,
		Error:      rerr,
		OtherData:  otherData,
	}

	stripped := stripLastAdditional(original, len(p.Additionals))
	return rec, stripped, nil
}

// stripLastAdditional removes the final additional record (the TSIG RR)
// from a rendered message and decrements ARCOUNT, reconstructing the bytes
// that were originally covered by the MAC. Re-renders the preceding
// sections rather than byte-slicing, since a compressed message's TSIG RR
// has no independently knowable start offset without re-walking it.
func stripLastAdditional(original []byte, additionalCount int) []byte {
	p, err := ParsePacket(original)
	if err != nil || len(p.Additionals) == 0 {
		return original
	}
	p.Additionals = p.Additionals[:len(p.Additionals)-1]
	out, err := p.Marshal()
	if err != nil {
		return original
	}
	return out
}
