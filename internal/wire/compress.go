package wire

import (
	"encoding/binary"
	"strings"
)

// RenderOptions controls Render's behavior (mirrors the create_via factory's
// CASE and TCP option flags).
type RenderOptions struct {
	// Case enables case-sensitive name compression: two names differing
	// only in case are not treated as the same suffix for compression
	// purposes. Corresponds to the CASE option.
	Case bool
	// TCP forces the 2-byte length prefix and skips the 512-byte UDP
	// size check (the caller already decided on TCP).
	TCP bool
}

// compressionContext maps previously-rendered names (and name suffixes) to
// their byte offset in the message, so later occurrences can be replaced
// with a 2-byte pointer instead of being re-encoded in full.
type compressionContext struct {
	offsets map[string]int
	caseSen bool
}

func newCompressionContext(caseSensitive bool) *compressionContext {
	return &compressionContext{offsets: make(map[string]int), caseSen: caseSensitive}
}

func (c *compressionContext) key(name string) string {
	if c.caseSen {
		return name
	}
	return strings.ToLower(name)
}

// encode appends name to buf using compression where a suffix has already
// been seen, recording any new suffixes (up to the 14-bit pointer range)
// for future reuse. Returns the updated buffer.
func (c *compressionContext) encode(buf []byte, name string) ([]byte, error) {
	labels := splitLabels(name)

	for i := 0; i < len(labels); i++ {
		suffix := strings.Join(labels[i:], ".")
		if off, ok := c.offsets[c.key(suffix)]; ok && off <= 0x3FFF {
			ptr := make([]byte, 2)
			binary.BigEndian.PutUint16(ptr, uint16(0xC000|off))
			return append(buf, ptr...), nil
		}
	}

	// No reusable suffix: write every remaining label, recording each
	// suffix's offset as we go (for names that fit the pointer range).
	for i := 0; i < len(labels); i++ {
		suffix := strings.Join(labels[i:], ".")
		if len(buf) <= 0x3FFF {
			if _, ok := c.offsets[c.key(suffix)]; !ok {
				c.offsets[c.key(suffix)] = len(buf)
			}
		}
		label := labels[i]
		if len(label) > 63 {
			return nil, errLabelTooLong(label)
		}
		buf = append(buf, byte(len(label)))
		buf = append(buf, label...)
	}
	buf = append(buf, 0)
	return buf, nil
}

func errLabelTooLong(label string) error {
	return &labelTooLongError{label: label}
}

type labelTooLongError struct{ label string }

func (e *labelTooLongError) Error() string {
	return "dns wire: DNS label too long: " + e.label
}

func (e *labelTooLongError) Unwrap() error { return ErrDNSError }

func renderQuestion(buf []byte, cc *compressionContext, q Question) ([]byte, error) {
	buf, err := cc.encode(buf, NormalizeNameForRender(q.Name, cc.caseSen))
	if err != nil {
		return nil, err
	}
	fixed := make([]byte, 4)
	binary.BigEndian.PutUint16(fixed[0:2], uint16(q.Type))
	binary.BigEndian.PutUint16(fixed[2:4], uint16(q.Class))
	return append(buf, fixed...), nil
}

func renderRecord(buf []byte, cc *compressionContext, r Record) ([]byte, error) {
	h := r.Header()
	buf, err := cc.encode(buf, NormalizeNameForRender(h.Name, cc.caseSen))
	if err != nil {
		return nil, err
	}
	rdata, err := r.MarshalRData()
	if err != nil {
		return nil, err
	}
	fixed := make([]byte, 10)
	binary.BigEndian.PutUint16(fixed[0:2], uint16(r.Type()))
	binary.BigEndian.PutUint16(fixed[2:4], uint16(h.Class))
	binary.BigEndian.PutUint32(fixed[4:8], h.TTL)
	binary.BigEndian.PutUint16(fixed[8:10], uint16(len(rdata)))
	buf = append(buf, fixed...)
	buf = append(buf, rdata...)
	return buf, nil
}

// NormalizeNameForRender lowercases name unless caseSensitive is requested,
// mirroring how the CASE option suppresses normalization during rendering.
func NormalizeNameForRender(name string, caseSensitive bool) string {
	if caseSensitive {
		return trimDot(name)
	}
	return NormalizeName(name)
}

// Render serializes msg into wire format with name compression, per the
// create_via message-rendering contract: Question, Answer, Authority,
// Additional in that order; a result over the 65535-byte DNS maximum is
// ErrFormErr. If the
// rendered message exceeds 512 bytes and opts.TCP is not set, Render
// returns ErrUseTCP so the caller can promote to TCP and re-render; when
// opts.TCP is set the result is framed with the 2-byte length prefix.
func Render(msg Packet, opts RenderOptions) ([]byte, error) {
	h := Header{
		ID:      msg.Header.ID,
		Flags:   msg.Header.Flags,
		QDCount: uint16(len(msg.Questions)),
		ANCount: uint16(len(msg.Answers)),
		NSCount: uint16(len(msg.Authorities)),
		ARCount: uint16(len(msg.Additionals)),
	}

	buf := make([]byte, 0, 512)
	buf = append(buf, h.Marshal()...)

	cc := newCompressionContext(opts.Case)

	var err error
	for _, q := range msg.Questions {
		buf, err = renderQuestion(buf, cc, q)
		if err != nil {
			return nil, err
		}
	}
	for _, section := range [][]Record{msg.Answers, msg.Authorities, msg.Additionals} {
		for _, rr := range section {
			buf, err = renderRecord(buf, cc, rr)
			if err != nil {
				return nil, err
			}
		}
	}

	if len(buf) > 65535 {
		return nil, ErrFormErr
	}

	if !opts.TCP && len(buf) > 512 {
		return nil, ErrUseTCP
	}

	if opts.TCP {
		framed := make([]byte, 2, 2+len(buf))
		binary.BigEndian.PutUint16(framed, uint16(len(buf)))
		framed = append(framed, buf...)
		return framed, nil
	}
	return buf, nil
}
