package wire

import "time"

// Codec is the MessageCodec capability reqengine consumes: render a
// structured message to wire bytes (with compression and, when a key is
// supplied, a TSIG signature), and parse/verify a response. It is an
// interface so request-engine tests can substitute a fake that skips real
// compression or signing.
//
// GetQueryTSIG/SetQueryTSIG in the original design are folded into
// SignQuery's returned queryMAC: the caller (reqengine) saves that MAC on
// the Request the way the original saves it on the message, and passes it
// back into VerifyTSIG when the response arrives.
type Codec interface {
	Render(msg Packet, opts RenderOptions) ([]byte, error)
	Parse(raw []byte) (Packet, error)
	SignQuery(msg Packet, key TSIGKey, opts RenderOptions) (wire []byte, queryMAC []byte, err error)
	VerifyTSIG(response []byte, key TSIGKey, queryMAC []byte) error
}

// StandardCodec is the default Codec, backed by Render/ParsePacket/TSIG in
// this package.
type StandardCodec struct{}

// NewStandardCodec constructs the default codec.
func NewStandardCodec() *StandardCodec { return &StandardCodec{} }

func (StandardCodec) Render(msg Packet, opts RenderOptions) ([]byte, error) {
	return Render(msg, opts)
}

func (StandardCodec) Parse(raw []byte) (Packet, error) {
	return ParsePacket(raw)
}

func (StandardCodec) SignQuery(msg Packet, key TSIGKey, opts RenderOptions) ([]byte, []byte, error) {
	now := uint64(time.Now().Unix())
	const defaultFudge = 300
	return SignQuery(msg, key, opts, now, defaultFudge)
}

func (StandardCodec) VerifyTSIG(response []byte, key TSIGKey, queryMAC []byte) error {
	return VerifyResponse(response, key, queryMAC)
}
