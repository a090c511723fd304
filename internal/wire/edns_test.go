package wire_test

import (
	"testing"

	"github.com/jroosing/hydrareq/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOPTRecordRoundTrip(t *testing.T) {
	opt := wire.CreateOPT(4096)
	opt.DNSSECOk = true
	opt.Options = []wire.EDNSOption{{Code: 10, Data: []byte("cookie-data")}}

	b := opt.Marshal()

	off := 0
	rr, err := wire.ParseRecord(b, &off)
	require.NoError(t, err)
	assert.Equal(t, wire.TypeOPT, rr.Type())

	parsed := wire.ExtractOPT([]wire.Record{rr})
	require.NotNil(t, parsed)
	assert.Equal(t, uint16(4096), parsed.UDPPayloadSize)
	assert.True(t, parsed.DNSSECOk)
	require.Len(t, parsed.Options, 1)
	assert.Equal(t, []byte("cookie-data"), parsed.Options[0].Data)
}

func TestClientMaxUDPSizeDefault(t *testing.T) {
	p := wire.Packet{}
	assert.Equal(t, wire.DefaultUDPPayloadSize, wire.ClientMaxUDPSize(p))
}

func TestClientMaxUDPSizeFromOPT(t *testing.T) {
	opt := wire.CreateOPT(1232)
	rr, _ := wire.ParseRecord(opt.Marshal(), new(int))
	p := wire.Packet{Additionals: []wire.Record{rr}}
	assert.Equal(t, 1232, wire.ClientMaxUDPSize(p))
}

func TestIsTruncated(t *testing.T) {
	h := wire.Header{Flags: wire.TCFlag}
	assert.True(t, wire.IsTruncated(h.Marshal()))

	h2 := wire.Header{}
	assert.False(t, wire.IsTruncated(h2.Marshal()))
}
