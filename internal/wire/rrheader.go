package wire

// RRHeader carries the fields common to every resource record — name,
// class, and TTL — factored out of the type-specific record structs so
// each Record implementation only needs to know its own RDATA shape.
//
// This type is referenced throughout the original codec (edns.go's
// ExtractOPT, ip_record.go, name_record.go, opaque_record.go) but was
// never actually defined there; the record-as-interface design those
// files assume is completed here rather than copied from a definition
// that does not exist (see DESIGN.md).
type RRHeader struct {
	Name  string
	Class RecordClass
	TTL   uint32
}

// NewRRHeader constructs an RRHeader.
func NewRRHeader(name string, class RecordClass, ttl uint32) RRHeader {
	return RRHeader{Name: name, Class: class, TTL: ttl}
}
