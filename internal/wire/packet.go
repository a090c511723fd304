package wire

// MaxQuestions and MaxRRPerSection bound how many entries ParsePacket will
// pre-allocate for from header counts, so a small buffer with an inflated
// count field can't force an oversized allocation.
const (
	MaxQuestions    = 4
	MaxRRPerSection = 100
)

// Packet is a complete DNS message (RFC 1035 Section 4): a header plus the
// four sections.
type Packet struct {
	Header      Header
	Questions   []Question
	Answers     []Record
	Authorities []Record
	Additionals []Record
}

// Marshal serializes the packet without name compression — used to parse
// and re-check responses, not for query rendering (see Render for that).
func (p Packet) Marshal() ([]byte, error) {
	h := Header{
		ID:      p.Header.ID,
		Flags:   p.Header.Flags,
		QDCount: uint16(len(p.Questions)),
		ANCount: uint16(len(p.Answers)),
		NSCount: uint16(len(p.Authorities)),
		ARCount: uint16(len(p.Additionals)),
	}

	estimatedSize := HeaderSize + len(p.Questions)*50 + (len(p.Answers)+len(p.Authorities)+len(p.Additionals))*100
	out := make([]byte, 0, estimatedSize)
	out = append(out, h.Marshal()...)
	for _, q := range p.Questions {
		qb, err := q.Marshal()
		if err != nil {
			return nil, err
		}
		out = append(out, qb...)
	}
	for _, section := range [][]Record{p.Answers, p.Authorities, p.Additionals} {
		for _, rr := range section {
			b, err := MarshalRecord(rr)
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		}
	}
	return out, nil
}

// ParsePacket parses a complete wire message.
func ParsePacket(msg []byte) (Packet, error) {
	off := 0
	h, err := ParseHeader(msg, &off)
	if err != nil {
		return Packet{}, err
	}

	p := Packet{Header: h}

	limit := func(count uint16, cap int) int {
		if int(count) > cap {
			return cap
		}
		return int(count)
	}

	p.Questions = make([]Question, 0, limit(h.QDCount, MaxQuestions))
	for range h.QDCount {
		q, err := ParseQuestion(msg, &off)
		if err != nil {
			return Packet{}, err
		}
		p.Questions = append(p.Questions, q)
	}

	sections := []struct {
		count uint16
		dst   *[]Record
	}{
		{h.ANCount, &p.Answers},
		{h.NSCount, &p.Authorities},
		{h.ARCount, &p.Additionals},
	}
	for _, s := range sections {
		*s.dst = make([]Record, 0, limit(s.count, MaxRRPerSection))
		for range s.count {
			rr, err := ParseRecord(msg, &off)
			if err != nil {
				return Packet{}, err
			}
			*s.dst = append(*s.dst, rr)
		}
	}
	return p, nil
}
